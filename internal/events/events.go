package events

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	BookingCreated       Type = "booking.created"
	BookingStatusChanged Type = "booking.status_changed"
	QuoteSent            Type = "quote.sent"
	QuoteAccepted        Type = "quote.accepted"
	QuoteRejected        Type = "quote.rejected"
	PaymentRecorded      Type = "payment.recorded"
	ReceiptIssued        Type = "receipt.issued"
)

// Event is a fact that has already been committed.
type Event struct {
	ID         string      `json:"id"`
	Type       Type        `json:"type"`
	BookingID  string      `json:"booking_id"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func New(t Type, bookingID string, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		BookingID:  bookingID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Emitter accepts events after commit. Emit never blocks the caller.
type Emitter interface {
	Emit(e Event)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

type Topics struct {
	BookingStatus string
	Quote         string
	Payment       string
	Receipt       string
}

func (t Topics) For(typ Type) string {
	switch {
	case strings.HasPrefix(string(typ), "booking."):
		return t.BookingStatus
	case strings.HasPrefix(string(typ), "quote."):
		return t.Quote
	case strings.HasPrefix(string(typ), "payment."):
		return t.Payment
	case strings.HasPrefix(string(typ), "receipt."):
		return t.Receipt
	}
	return t.BookingStatus
}

// Dispatcher queues events in a buffered channel and publishes them from one
// worker. A full buffer drops the event; publish failures are logged only.
type Dispatcher struct {
	queue     chan Event
	publisher Publisher
	topics    Topics
	timeout   time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(p Publisher, topics Topics, buffer int, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		queue:     make(chan Event, buffer),
		publisher: p,
		topics:    topics,
		timeout:   5 * time.Second,
		logger:    log,
		metrics:   m,
		done:      make(chan struct{}),
	}
}

func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("EVENTS", fmt.Sprintf("Dispatcher closed, dropping %s for %s", e.Type, e.BookingID))
		d.metrics.EventDropped()
		return
	}
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("EVENTS", fmt.Sprintf("Event buffer full, dropping %s for %s", e.Type, e.BookingID))
		d.metrics.EventDropped()
	}
}

// Start runs the worker until Close drains the queue.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for e := range d.queue {
			d.publish(e)
		}
	}()
}

func (d *Dispatcher) publish(e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		d.logger.Error("EVENTS", fmt.Sprintf("Failed to marshal %s: %v", e.Type, err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	topic := d.topics.For(e.Type)
	if err := d.publisher.Publish(ctx, topic, e.BookingID, value); err != nil {
		d.logger.Error("EVENTS", fmt.Sprintf("Failed to publish %s for %s to %s: %v", e.Type, e.BookingID, topic, err))
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) {}

// Fanout emits every event to each of its emitters in order.
type Fanout []Emitter

func (f Fanout) Emit(e Event) {
	for _, em := range f {
		em.Emit(e)
	}
}
