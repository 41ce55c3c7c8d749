package ledger

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/booking"
	"ms-booking/internal/events"
	"ms-booking/internal/models"
	"ms-booking/internal/storage"
	"strings"

	"github.com/google/uuid"
)

func validateItems(items []models.LineItemRequest) (int64, error) {
	if len(items) == 0 {
		return 0, ErrEmptyQuote
	}
	var total int64
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return 0, &LineItemError{Index: i, Reason: "name is required"}
		}
		if it.Price < 0 {
			return 0, &LineItemError{Index: i, Reason: "price must not be negative"}
		}
		total += it.Price
	}
	return total, nil
}

func sameItems(q *models.Quote, items []models.LineItemRequest) bool {
	if q == nil || len(q.Items) != len(items) {
		return false
	}
	for i, it := range items {
		have := q.Items[i]
		if have.Name != strings.TrimSpace(it.Name) || have.Description != it.Description || have.UnitPrice != it.Price {
			return false
		}
	}
	return true
}

func (l *Ledger) activeQuote(ctx context.Context, bookingID string) (*models.Quote, error) {
	q, err := l.store.GetActiveQuote(ctx, bookingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return q, err
}

// SendQuote attaches a new itemized quote from the booking's vendor, superseding
// any active one, and moves the booking to quote_sent. Sending the same items
// again while the quote is pending returns the booking unchanged.
func (l *Ledger) SendQuote(ctx context.Context, bookingID, rawVendorRef string, items []models.LineItemRequest) (*models.Booking, error) {
	total, err := validateItems(items)
	if err != nil {
		return nil, err
	}
	p := models.Principal{Role: models.ActorVendor, ID: strings.TrimSpace(rawVendorRef)}

	var (
		b       *models.Booking
		quote   *models.Quote
		entries []*models.StatusHistory
		sent    bool
	)
	err = l.bookings.WithBooking(ctx, bookingID, func(ctx context.Context) error {
		var err error
		b, err = l.bookings.Load(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := l.bookings.Authorize(ctx, b, p); err != nil {
			return err
		}

		active, err := l.activeQuote(ctx, b.ID)
		if err != nil {
			return err
		}
		switch b.Status {
		case models.StatusInquiry, models.StatusVendorReviewed:
		case models.StatusQuoteSent:
			if sameItems(active, items) {
				quote = active
				return nil
			}
		default:
			return booking.Check(b.Status, models.StatusQuoteSent, p.Role)
		}
		if total < b.TotalPaid {
			return &OverpaymentError{Total: total, Paid: b.TotalPaid}
		}

		now := l.bookings.Now()
		if active != nil {
			active.Status = models.QuoteSuperseded
			active.SupersededAt = now
			if err := l.store.UpdateQuoteStatus(ctx, active); err != nil {
				return fmt.Errorf("supersede quote %s: %w", active.ID, err)
			}
		}
		version, err := l.store.MaxQuoteVersion(ctx, b.ID)
		if err != nil {
			return err
		}

		quote = &models.Quote{
			ID:        uuid.NewString(),
			BookingID: b.ID,
			Version:   version + 1,
			VendorID:  b.VendorID,
			Status:    models.QuoteActive,
			Currency:  b.Currency,
			Total:     total,
			CreatedAt: now,
		}
		for i, it := range items {
			quote.Items = append(quote.Items, models.QuoteLineItem{
				Position:    i + 1,
				Name:        strings.TrimSpace(it.Name),
				Description: it.Description,
				UnitPrice:   it.Price,
			})
		}
		if err := l.store.InsertQuote(ctx, quote); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}

		b.TotalAmount = &total
		applyTotals(b)

		if b.Status == models.StatusInquiry {
			entry, err := l.bookings.ApplyTransition(ctx, b, models.StatusVendorReviewed, p, "Reviewed with quote", "")
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		entry, err := l.bookings.ApplyTransition(ctx, b, models.StatusQuoteSent, p, fmt.Sprintf("Quote v%d sent", quote.Version), "")
		if err != nil {
			return err
		}
		if entry != nil {
			entries = append(entries, entry)
		}
		sent = true
		return l.bookings.Save(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if sent {
		l.announce(entries)
		l.logger.LogLedger("QUOTE_SENT", b.ID, fmt.Sprintf("v%d total %d %s (%d items)", quote.Version, quote.Total, quote.Currency, len(quote.Items)))
		l.emitter.Emit(events.New(events.QuoteSent, b.ID, quote))
	}
	b.ActiveQuote = quote
	return booking.Decorate(b), nil
}

// AcceptQuote freezes the pending quote and moves the booking to quote_accepted.
func (l *Ledger) AcceptQuote(ctx context.Context, bookingID, clientID, message string) (*models.Booking, error) {
	return l.decide(ctx, bookingID, clientID, true, message, "")
}

// RejectQuote closes the pending quote with the client's reason.
func (l *Ledger) RejectQuote(ctx context.Context, bookingID, clientID, reason string) (*models.Booking, error) {
	return l.decide(ctx, bookingID, clientID, false, "", reason)
}

func (l *Ledger) decide(ctx context.Context, bookingID, clientID string, accept bool, message, reason string) (*models.Booking, error) {
	p := models.Principal{Role: models.ActorClient, ID: strings.TrimSpace(clientID)}
	target, quoteStatus := models.StatusQuoteRejected, models.QuoteRejected
	if accept {
		target, quoteStatus = models.StatusQuoteAccepted, models.QuoteAccepted
	}

	var (
		b     *models.Booking
		quote *models.Quote
		entry *models.StatusHistory
	)
	err := l.bookings.WithBooking(ctx, bookingID, func(ctx context.Context) error {
		var err error
		b, err = l.bookings.Load(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := l.bookings.Authorize(ctx, b, p); err != nil {
			return err
		}

		// a retried decision returns the decided quote
		if b.Status == target {
			latest, err := l.store.GetLatestQuote(ctx, b.ID)
			if err == nil && latest.Status == quoteStatus {
				quote = latest
				return nil
			}
		}

		quote, err = l.activeQuote(ctx, b.ID)
		if err != nil {
			return err
		}
		if quote == nil || b.Status != models.StatusQuoteSent {
			return ErrNoActiveQuote
		}

		now := l.bookings.Now()
		quote.Status = quoteStatus
		if accept {
			quote.AcceptedAt = now
			quote.ClientNote = message
		} else {
			quote.RejectedAt = now
			quote.RejectReason = reason
		}
		if err := l.store.UpdateQuoteStatus(ctx, quote); err != nil {
			return fmt.Errorf("update quote %s: %w", quote.ID, err)
		}

		entry, err = l.bookings.ApplyTransition(ctx, b, target, p, message, reason)
		if err != nil {
			return err
		}
		return l.bookings.Save(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if entry != nil {
		l.announce([]*models.StatusHistory{entry})
		typ := events.QuoteRejected
		if accept {
			typ = events.QuoteAccepted
		}
		l.logger.LogLedger(strings.ToUpper(string(quoteStatus)), b.ID, fmt.Sprintf("quote v%d by client %s", quote.Version, p.ID))
		l.emitter.Emit(events.New(typ, b.ID, quote))
	}
	b.ActiveQuote = quote
	return booking.Decorate(b), nil
}

// GetQuote returns the active quote, or the most recent one when none is active.
func (l *Ledger) GetQuote(ctx context.Context, bookingID string) (*models.Quote, error) {
	if _, err := l.bookings.Load(ctx, bookingID); err != nil {
		return nil, err
	}
	q, err := l.activeQuote(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if q != nil {
		return q, nil
	}
	q, err = l.store.GetLatestQuote(ctx, bookingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrQuoteNotFound
	}
	return q, err
}

// ListQuotes returns every quote of a booking, oldest version first.
func (l *Ledger) ListQuotes(ctx context.Context, bookingID string) ([]models.Quote, error) {
	if _, err := l.bookings.Load(ctx, bookingID); err != nil {
		return nil, err
	}
	return l.store.ListQuotes(ctx, bookingID)
}
