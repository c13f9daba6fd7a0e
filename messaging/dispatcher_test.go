package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	sendErr  map[string]error
	statuses map[string][]string
	bodies   map[string]string
	polls    int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sendErr:  make(map[string]error),
		statuses: make(map[string][]string),
		bodies:   make(map[string]string),
	}
}

func (f *fakeProvider) Send(_ context.Context, to, body string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[to]; err != nil {
		return "", "", err
	}
	f.bodies[to] = body
	return "SM" + to, "queued", nil
}

func (f *fakeProvider) Status(_ context.Context, sid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	seq := f.statuses[sid]
	if len(seq) == 0 {
		return "queued", nil
	}
	status := seq[0]
	if len(seq) > 1 {
		f.statuses[sid] = seq[1:]
	}
	return status, nil
}

func fastOptions() Options {
	return Options{DeliveryTimeout: time.Second, PollInterval: time.Millisecond}
}

func TestAlertBody(t *testing.T) {
	assert.Equal(t,
		"EMERGENCY ALERT: Help needed at Latitude: 12.9716, Longitude: 77.5946! View location: https://www.google.com/maps?q=12.9716,77.5946",
		AlertBody(12.9716, 77.5946))
}

func TestDispatchSimulatedWithoutProvider(t *testing.T) {
	d := NewDispatcher(nil, fastOptions())
	assert.True(t, d.Simulated())

	report, err := d.Dispatch(context.Background(), Alert{Latitude: 1, Longitude: 2, Contacts: []string{"+15550001111"}})
	require.NoError(t, err)
	assert.True(t, report.Simulated)
	assert.False(t, report.AllDelivered)
	assert.Equal(t, MessageSimulated, report.Message)
	assert.NotEmpty(t, report.AlertID)
	require.Len(t, report.Deliveries, 1)
	assert.Equal(t, "simulated", report.Deliveries[0].Status)
}

func TestDispatchAllDelivered(t *testing.T) {
	provider := newFakeProvider()
	provider.statuses["SM+15550001111"] = []string{"sent", "delivered"}
	provider.statuses["SM+15550002222"] = []string{"delivered"}

	report, err := NewDispatcher(provider, fastOptions()).Dispatch(context.Background(), Alert{
		Latitude: 12.9716, Longitude: 77.5946, Contacts: []string{"+15550001111", "+15550002222"},
	})
	require.NoError(t, err)
	assert.False(t, report.Simulated)
	assert.True(t, report.AllDelivered)
	assert.Equal(t, MessageProcessed, report.Message)
	assert.Equal(t, "SM+15550001111", report.Deliveries[0].SID)
	assert.Equal(t, "delivered", report.Deliveries[1].Status)
	assert.Equal(t, AlertBody(12.9716, 77.5946), provider.bodies["+15550002222"])
}

func TestDispatchReportsFailures(t *testing.T) {
	provider := newFakeProvider()
	provider.sendErr["+15550003333"] = errors.New("invalid 'To' number")
	provider.statuses["SM+15550001111"] = []string{"delivered"}

	report, err := NewDispatcher(provider, fastOptions()).Dispatch(context.Background(), Alert{
		Contacts: []string{"+15550001111", "+15550003333"},
	})
	require.NoError(t, err)
	assert.False(t, report.AllDelivered)
	assert.Equal(t, "delivered", report.Deliveries[0].Status)
	assert.Contains(t, report.Deliveries[1].Error, "invalid 'To' number")
	assert.Empty(t, report.Deliveries[1].SID)
}

func TestDispatchUndeliveredIsNotDelivered(t *testing.T) {
	provider := newFakeProvider()
	provider.statuses["SM+15550001111"] = []string{"undelivered"}

	report, err := NewDispatcher(provider, fastOptions()).Dispatch(context.Background(), Alert{
		Contacts: []string{"+15550001111"},
	})
	require.NoError(t, err)
	assert.False(t, report.AllDelivered)
	assert.Equal(t, "undelivered", report.Deliveries[0].Status)
}

func TestDispatchBoundedWait(t *testing.T) {
	provider := newFakeProvider()
	provider.statuses["SM+15550001111"] = []string{"sending", "sent"}

	d := NewDispatcher(provider, Options{DeliveryTimeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	start := time.Now()
	report, err := d.Dispatch(context.Background(), Alert{Contacts: []string{"+15550001111"}})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "sent", report.Deliveries[0].Status)
	assert.False(t, report.AllDelivered)
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	provider := newFakeProvider()
	provider.statuses["SM+15550001111"] = []string{"delivered"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewDispatcher(provider, fastOptions()).Dispatch(ctx, Alert{Contacts: []string{"+15550001111"}})
	require.NoError(t, err)
	assert.True(t, report.AllDelivered)
}

func TestDispatchRejectsInvalidAlerts(t *testing.T) {
	d := NewDispatcher(newFakeProvider(), fastOptions())
	for _, alert := range []Alert{
		{Contacts: nil},
		{Contacts: []string{" "}},
		{Latitude: 91, Contacts: []string{"+15550001111"}},
		{Longitude: -181, Contacts: []string{"+15550001111"}},
	} {
		_, err := d.Dispatch(context.Background(), alert)
		assert.True(t, errors.Is(err, ErrInvalidRequest), "alert %+v", alert)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal("delivered"))
	assert.True(t, IsTerminal("failed"))
	assert.False(t, IsTerminal("sent"))
	assert.False(t, IsTerminal("queued"))
}
