package sse

import (
	"bufio"
	"context"
	"ms-booking/internal/events"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversPerBooking(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	mine := b.Subscribe(ctx, "bk-1")
	other := b.Subscribe(ctx, "bk-2")
	assert.Equal(t, 1, b.ClientCount("bk-1"))

	b.Emit(events.New(events.QuoteSent, "bk-1", nil))

	select {
	case e := <-mine:
		assert.Equal(t, events.QuoteSent, e.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Len(t, other, 0)

	cancel()
	assert.Eventually(t, func() bool { return b.ClientCount("bk-1") == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-mine
	assert.False(t, open)
}

func TestBrokerDropsForSlowClients(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "bk-1")
	for i := 0; i < clientBuffer+5; i++ {
		b.Emit(events.New(events.PaymentRecorded, "bk-1", nil))
	}
	assert.Len(t, ch, clientBuffer)
}

func TestStreamWritesServerSentEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.Stream(w, r, "bk-9", time.Hour)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return b.ClientCount("bk-9") == 1 }, time.Second, 5*time.Millisecond)
	b.Emit(events.New(events.BookingStatusChanged, "bk-9", map[string]string{"to": "vendor_reviewed"}))

	var got []string
	for len(got) < 5 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		got = append(got, line)
	}
	stream := strings.Join(got, "")
	assert.Contains(t, stream, "event: booking.status_changed\n")
	assert.Contains(t, stream, `"to":"vendor_reviewed"`)
}
