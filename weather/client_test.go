package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentTitleCasesAndCaches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		assert.Equal(t, "Mumbai", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Write([]byte(`{"name":"Mumbai","weather":[{"description":"light rain"}],"main":{"temp":27.4}}`))
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test-key", BaseURL: server.URL})
	report, err := client.Current(context.Background(), " Mumbai ")
	require.NoError(t, err)
	assert.Equal(t, Report{City: "Mumbai", Condition: "Light Rain", Temperature: 27.4}, report)

	again, err := client.Current(context.Background(), "MUMBAI")
	require.NoError(t, err)
	assert.Equal(t, report, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCurrentCityNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}))
	defer server.Close()

	_, err := NewClient(Options{APIKey: "k", BaseURL: server.URL}).Current(context.Background(), "Atlantis")
	assert.True(t, errors.Is(err, ErrCityNotFound))
}

func TestCurrentUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer server.Close()

	_, err := NewClient(Options{APIKey: "bad", BaseURL: server.URL}).Current(context.Background(), "Pune")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestCurrentRequiresKeyAndCity(t *testing.T) {
	_, err := NewClient(Options{}).Current(context.Background(), "Pune")
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = NewClient(Options{APIKey: "k"}).Current(context.Background(), "  ")
	assert.Error(t, err)
}
