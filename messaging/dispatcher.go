package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"herhealth/logging"
)

var ErrInvalidRequest = errors.New("invalid sos request")

const (
	MessageProcessed = "SOS alert processed"
	MessageSimulated = "SOS alert simulated (messaging credentials missing)"
)

// Alert is an emergency request for one location.
type Alert struct {
	Latitude  float64
	Longitude float64
	Contacts  []string
}

// Delivery is the outcome for one recipient: either a message sid and its
// last known status, or the send error.
type Delivery struct {
	Contact string `json:"contact"`
	SID     string `json:"sid,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Report struct {
	AlertID      string     `json:"alert_id"`
	Message      string     `json:"message"`
	Deliveries   []Delivery `json:"sent_messages"`
	Simulated    bool       `json:"simulated"`
	AllDelivered bool       `json:"all_delivered"`
}

type Options struct {
	// DeliveryTimeout bounds how long each recipient's status is polled.
	DeliveryTimeout time.Duration
	PollInterval    time.Duration
	MaxParallel     int
}

// Dispatcher fans an alert out to every contact and waits, for a bounded
// time, for each message to reach a final status. A nil provider makes
// every dispatch a simulation.
type Dispatcher struct {
	provider Provider
	opts     Options
	log      *zap.SugaredLogger
}

func NewDispatcher(provider Provider, opts Options) *Dispatcher {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 8
	}
	return &Dispatcher{provider: provider, opts: opts, log: logging.ComponentLogger("messaging")}
}

func (d *Dispatcher) Simulated() bool {
	return d.provider == nil
}

func MapsLink(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", lat, lon)
}

func AlertBody(lat, lon float64) string {
	return fmt.Sprintf("EMERGENCY ALERT: Help needed at Latitude: %v, Longitude: %v! View location: %s",
		lat, lon, MapsLink(lat, lon))
}

func (a Alert) validate() error {
	if a.Latitude < -90 || a.Latitude > 90 {
		return errors.Mark(errors.Newf("latitude %v out of range", a.Latitude), ErrInvalidRequest)
	}
	if a.Longitude < -180 || a.Longitude > 180 {
		return errors.Mark(errors.Newf("longitude %v out of range", a.Longitude), ErrInvalidRequest)
	}
	if len(a.Contacts) == 0 {
		return errors.Mark(errors.New("at least one emergency contact is required"), ErrInvalidRequest)
	}
	for _, c := range a.Contacts {
		if strings.TrimSpace(c) == "" {
			return errors.Mark(errors.New("emergency contact must not be empty"), ErrInvalidRequest)
		}
	}
	return nil
}

// Dispatch sends the alert. Per-recipient failures are reported in the
// result, not returned. The caller's cancellation is ignored once the
// request is valid so an alert is never abandoned half sent.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) (Report, error) {
	if err := alert.validate(); err != nil {
		return Report{}, err
	}
	report := Report{AlertID: uuid.NewString(), Deliveries: make([]Delivery, len(alert.Contacts))}
	log := d.log.With(logging.FieldAlertID, report.AlertID)

	if d.provider == nil {
		for i, contact := range alert.Contacts {
			log.Infow("would send alert (simulation only)", "contact", contact)
			report.Deliveries[i] = Delivery{Contact: contact, Status: "simulated"}
		}
		report.Message = MessageSimulated
		report.Simulated = true
		return report, nil
	}

	ctx = context.WithoutCancel(ctx)
	body := AlertBody(alert.Latitude, alert.Longitude)

	var g errgroup.Group
	g.SetLimit(d.opts.MaxParallel)
	for i, contact := range alert.Contacts {
		i, contact := i, contact
		g.Go(func() error {
			report.Deliveries[i] = d.deliver(ctx, log, contact, body)
			return nil
		})
	}
	_ = g.Wait()

	report.Message = MessageProcessed
	report.AllDelivered = allDelivered(report.Deliveries)
	log.Infow("sos alert dispatched", "recipients", len(alert.Contacts), "all_delivered", report.AllDelivered)
	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, log *zap.SugaredLogger, contact, body string) Delivery {
	sid, status, err := d.provider.Send(ctx, contact, body)
	if err != nil {
		log.Errorw("failed to send alert", "contact", contact, logging.FieldError, err)
		return Delivery{Contact: contact, Error: err.Error()}
	}
	log.Infow("alert queued", "contact", contact, "sid", sid, logging.FieldStatus, status)
	status = d.awaitStatus(ctx, log, sid, status)
	return Delivery{Contact: contact, SID: sid, Status: status}
}

// awaitStatus polls until the status is terminal or the delivery timeout
// passes, and returns the last status seen.
func (d *Dispatcher) awaitStatus(ctx context.Context, log *zap.SugaredLogger, sid, status string) string {
	ctx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	defer cancel()
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for !IsTerminal(status) {
		select {
		case <-ctx.Done():
			log.Warnw("delivery status still pending at deadline", "sid", sid, logging.FieldStatus, status)
			return status
		case <-ticker.C:
			latest, err := d.provider.Status(ctx, sid)
			if err != nil {
				log.Warnw("failed to fetch delivery status", "sid", sid, logging.FieldError, err)
				continue
			}
			status = latest
		}
	}
	return status
}

// allDelivered is true only when every recipient confirmed delivery.
func allDelivered(deliveries []Delivery) bool {
	if len(deliveries) == 0 {
		return false
	}
	for _, d := range deliveries {
		if d.Error != "" || d.Status != StatusDelivered {
			return false
		}
	}
	return true
}
