// Package sse streams committed booking events to connected browsers.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-booking/internal/events"
	"net/http"
	"sync"
	"time"
)

const clientBuffer = 16

// Broker fans events out to the clients watching a booking. It is an
// events.Emitter; a slow client misses events rather than blocking the emitter.
type Broker struct {
	mu      sync.RWMutex
	clients map[string][]chan events.Event
}

func NewBroker() *Broker {
	return &Broker{clients: make(map[string][]chan events.Event)}
}

// Subscribe registers a client for bookingID until ctx is done, then closes the channel.
func (b *Broker) Subscribe(ctx context.Context, bookingID string) <-chan events.Event {
	ch := make(chan events.Event, clientBuffer)

	b.mu.Lock()
	b.clients[bookingID] = append(b.clients[bookingID], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(bookingID, ch)
	}()
	return ch
}

func (b *Broker) Emit(e events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.clients[e.BookingID] {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Broker) remove(bookingID string, ch chan events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients := b.clients[bookingID]
	for i, c := range clients {
		if c == ch {
			b.clients[bookingID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.clients[bookingID]) == 0 {
		delete(b.clients, bookingID)
	}
}

// ClientCount returns the number of clients watching bookingID.
func (b *Broker) ClientCount(bookingID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[bookingID])
}

// Stream writes bookingID's events to w as server-sent events until the request
// ends. A comment line goes out every keepAlive to hold proxies open.
func (b *Broker) Stream(w http.ResponseWriter, r *http.Request, bookingID string, keepAlive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	ch := b.Subscribe(ctx, bookingID)

	fmt.Fprintf(w, "event: connected\ndata: {\"booking_id\":%q}\n\n", bookingID)
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
