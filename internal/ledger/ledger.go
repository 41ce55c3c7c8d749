// Package ledger keeps the quote, payment and receipt trail of a booking and the
// financial fields derived from it. Every mutation runs under the booking lock in
// one transaction; events go out only after commit.
package ledger

import (
	"context"
	"ms-booking/internal/booking"
	"ms-booking/internal/events"
	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"
	"ms-booking/internal/receipt"
	"time"
)

type Store interface {
	InsertQuote(ctx context.Context, q *models.Quote) error
	UpdateQuoteStatus(ctx context.Context, q *models.Quote) error
	GetActiveQuote(ctx context.Context, bookingID string) (*models.Quote, error)
	GetLatestQuote(ctx context.Context, bookingID string) (*models.Quote, error)
	ListQuotes(ctx context.Context, bookingID string) ([]models.Quote, error)
	MaxQuoteVersion(ctx context.Context, bookingID string) (int, error)

	InsertPayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByExternalRef(ctx context.Context, ref string) (*models.Payment, error)
	ListPayments(ctx context.Context, bookingID string) ([]models.Payment, error)
	RefundedAmount(ctx context.Context, paymentID string) (int64, error)

	InsertReceipt(ctx context.Context, r *models.Receipt) error
	GetReceipt(ctx context.Context, number string) (*models.Receipt, error)
	GetReceiptByPayment(ctx context.Context, paymentID string) (*models.Receipt, error)
	ListReceipts(ctx context.Context, bookingID string) ([]models.Receipt, error)
}

// Bookings is the part of the lifecycle service the ledger drives.
type Bookings interface {
	WithBooking(ctx context.Context, bookingID string, fn func(ctx context.Context) error) error
	Load(ctx context.Context, bookingID string) (*models.Booking, error)
	Save(ctx context.Context, b *models.Booking) error
	Authorize(ctx context.Context, b *models.Booking, p models.Principal) error
	ApplyTransition(ctx context.Context, b *models.Booking, target models.BookingStatus, p models.Principal, message, reason string) (*models.StatusHistory, error)
	Announce(entry *models.StatusHistory)
	Now() time.Time
}

var _ Bookings = (*booking.Service)(nil)

type Ledger struct {
	store    Store
	bookings Bookings
	emitter  events.Emitter
	numberer *receipt.Numberer
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewLedger(store Store, bookings Bookings, emitter events.Emitter, m *metrics.Metrics, log *logger.Logger) *Ledger {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &Ledger{
		store:    store,
		bookings: bookings,
		emitter:  emitter,
		numberer: receipt.NewNumberer(),
		metrics:  m,
		logger:   log,
	}
}

// Progress is total_paid as a percentage of total, rounded half up and clamped
// to [0,100]. An unset or zero total gives 0.
func Progress(paid, total int64) int {
	if total <= 0 || paid <= 0 {
		return 0
	}
	if paid >= total {
		return 100
	}
	return int((paid*200 + total) / (total * 2))
}

// applyTotals recomputes the derived financial fields of b.
func applyTotals(b *models.Booking) {
	if !b.HasTotal() {
		b.RemainingBalance = 0
		b.PaymentProgress = 0
		return
	}
	total := b.Total()
	b.RemainingBalance = total - b.TotalPaid
	if b.RemainingBalance < 0 {
		b.RemainingBalance = 0
	}
	b.PaymentProgress = Progress(b.TotalPaid, total)
}

func (l *Ledger) announce(entries []*models.StatusHistory) {
	for _, e := range entries {
		l.bookings.Announce(e)
	}
}
