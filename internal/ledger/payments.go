package ledger

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/booking"
	"ms-booking/internal/events"
	"ms-booking/internal/models"
	"ms-booking/internal/receipt"
	"ms-booking/internal/storage"
	"strings"
	"time"

	"github.com/google/uuid"
)

const recordAttempts = 3

var systemActor = models.Principal{Role: models.ActorSystem}

func normalize(in models.PaymentInput) (models.PaymentInput, error) {
	in.BookingID = strings.TrimSpace(in.BookingID)
	in.ExternalRef = strings.TrimSpace(in.ExternalRef)
	in.Method = strings.TrimSpace(in.Method)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.RefundOf = strings.TrimSpace(in.RefundOf)

	if in.Amount <= 0 {
		return in, ErrInvalidAmount
	}
	if !in.Type.Valid() {
		return in, fmt.Errorf("%w: unknown payment type %q", ErrInvalidPayment, in.Type)
	}
	if in.BookingID == "" || in.ExternalRef == "" {
		return in, fmt.Errorf("%w: booking_id and external_ref are required", ErrInvalidPayment)
	}
	if in.Type == models.PaymentRefund && in.RefundOf == "" {
		return in, ErrMissingRefundReference
	}
	if in.Method == "" {
		in.Method = "manual"
	}
	return in, nil
}

// RecordPayment applies one payment to a booking and issues its receipt. The
// payment, receipt and booking totals commit together. A second call with the
// same external reference returns the first result with Replayed set.
func (l *Ledger) RecordPayment(ctx context.Context, in models.PaymentInput) (*models.PaymentResult, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	if res, err := l.replay(ctx, in); res != nil || err != nil {
		return res, err
	}

	var result *models.PaymentResult
	for attempt := 0; attempt < recordAttempts; attempt++ {
		result, err = l.record(ctx, in)
		if err == nil || !storage.IsUniqueViolation(err) {
			break
		}
		// a concurrent writer took the external ref or the receipt number
		if res, rerr := l.replay(ctx, in); res != nil || rerr != nil {
			return res, rerr
		}
		l.logger.Warn("LEDGER", fmt.Sprintf("Receipt number collision for %s, retrying", in.ExternalRef))
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// replay returns the recorded result for in.ExternalRef, or nil when it is new.
func (l *Ledger) replay(ctx context.Context, in models.PaymentInput) (*models.PaymentResult, error) {
	existing, err := l.store.GetPaymentByExternalRef(ctx, in.ExternalRef)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.BookingID != in.BookingID {
		return nil, fmt.Errorf("%w: %s belongs to booking %s", ErrExternalRefConflict, in.ExternalRef, existing.BookingID)
	}
	r, err := l.store.GetReceiptByPayment(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("load receipt for payment %s: %w", existing.ID, err)
	}
	b, err := l.bookings.Load(ctx, existing.BookingID)
	if err != nil {
		return nil, err
	}
	l.metrics.IdempotentReplay()
	l.logger.LogLedger("PAYMENT_REPLAY", existing.BookingID, fmt.Sprintf("external ref %s already recorded as %s", in.ExternalRef, existing.ID))
	return &models.PaymentResult{Payment: existing, Receipt: r, Booking: booking.Decorate(b), Replayed: true}, nil
}

func (l *Ledger) record(ctx context.Context, in models.PaymentInput) (*models.PaymentResult, error) {
	var (
		result  *models.PaymentResult
		entries []*models.StatusHistory
	)
	err := l.bookings.WithBooking(ctx, in.BookingID, func(ctx context.Context) error {
		res, err := l.replay(ctx, in)
		if err != nil {
			return err
		}
		if res != nil {
			result = res
			return nil
		}

		b, err := l.bookings.Load(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if in.Currency != "" && in.Currency != b.Currency {
			return fmt.Errorf("%w: %s payment on %s booking", ErrCurrencyMismatch, in.Currency, b.Currency)
		}

		if in.Type == models.PaymentRefund {
			if err := l.applyRefund(ctx, b, in); err != nil {
				return err
			}
		} else {
			if booking.Terminal(b.Status) {
				return fmt.Errorf("%w: booking is %s", ErrBookingClosed, b.Status)
			}
			if b.HasTotal() && b.TotalPaid+in.Amount > b.Total() {
				return &OverpaymentError{Total: b.Total(), Paid: b.TotalPaid, Amount: in.Amount}
			}
			b.TotalPaid += in.Amount
			if in.Type == models.PaymentDeposit {
				b.DownpaymentAmount += in.Amount
			}
		}
		applyTotals(b)

		now := l.bookings.Now()
		payment := &models.Payment{
			ID:          uuid.NewString(),
			BookingID:   b.ID,
			Amount:      in.Amount,
			Currency:    b.Currency,
			Method:      in.Method,
			Type:        in.Type,
			ExternalRef: in.ExternalRef,
			RefundOf:    in.RefundOf,
			CreatedAt:   now,
		}
		if err := l.store.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if !b.EventPassed(now) {
			entries, err = l.advance(ctx, b, in.Type)
			if err != nil {
				return err
			}
		}
		if err := l.bookings.Save(ctx, b); err != nil {
			return err
		}

		r := l.IssueReceipt(payment, b, now)
		if err := l.store.InsertReceipt(ctx, r); err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}
		result = &models.PaymentResult{Payment: payment, Receipt: r, Booking: booking.Decorate(b)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Replayed {
		return result, nil
	}

	l.announce(entries)
	l.metrics.Payment(string(result.Payment.Type))
	l.metrics.ReceiptIssued()
	l.logger.LogLedger("PAYMENT", result.Payment.BookingID, fmt.Sprintf("%s %d %s via %s, receipt %s, paid %d of %d",
		result.Payment.Type, result.Payment.Amount, result.Payment.Currency, result.Payment.Method,
		result.Receipt.Number, result.Booking.TotalPaid, result.Booking.Total()))
	l.emitter.Emit(events.New(events.PaymentRecorded, result.Payment.BookingID, result.Payment))
	l.emitter.Emit(events.New(events.ReceiptIssued, result.Payment.BookingID, result.Receipt))
	return result, nil
}

func (l *Ledger) applyRefund(ctx context.Context, b *models.Booking, in models.PaymentInput) error {
	original, err := l.store.GetPayment(ctx, in.RefundOf)
	if errors.Is(err, storage.ErrNotFound) {
		return &RefundError{PaymentID: in.RefundOf, Requested: in.Amount}
	}
	if err != nil {
		return err
	}
	if original.BookingID != b.ID || original.Type == models.PaymentRefund {
		return &RefundError{PaymentID: in.RefundOf, Requested: in.Amount}
	}
	refunded, err := l.store.RefundedAmount(ctx, original.ID)
	if err != nil {
		return err
	}
	refundable := original.Amount - refunded
	if in.Amount > refundable || in.Amount > b.TotalPaid {
		return &RefundError{PaymentID: original.ID, Refundable: refundable, Requested: in.Amount}
	}
	b.TotalPaid -= in.Amount
	if original.Type == models.PaymentDeposit {
		b.DownpaymentAmount = max(b.DownpaymentAmount-in.Amount, 0)
	}
	return nil
}

// advance moves b along the payment states after a payment of type t. Deposits
// stop at downpayment_confirmed; balance and full payments go on to
// final_payment_due once nothing remains.
func (l *Ledger) advance(ctx context.Context, b *models.Booking, t models.PaymentType) ([]*models.StatusHistory, error) {
	if t == models.PaymentRefund {
		return nil, nil
	}
	var entries []*models.StatusHistory
	step := func(target models.BookingStatus, message string) error {
		entry, err := l.bookings.ApplyTransition(ctx, b, target, systemActor, message, "")
		if entry != nil {
			entries = append(entries, entry)
		}
		return err
	}

	if b.Status == models.StatusQuoteAccepted {
		if err := step(models.StatusDownpaymentPending, "Payment received"); err != nil {
			return nil, err
		}
	}
	if b.Status == models.StatusDownpaymentPending {
		if err := step(models.StatusDownpaymentConfirmed, fmt.Sprintf("%s payment confirmed", t)); err != nil {
			return nil, err
		}
	}
	if t != models.PaymentDeposit && b.Status == models.StatusDownpaymentConfirmed && b.HasTotal() && b.RemainingBalance == 0 {
		if err := step(models.StatusFinalPaymentDue, "Paid in full"); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// IssueReceipt snapshots p against b's running totals. The receipt number comes
// from the in-process numberer; the caller persists the result.
func (l *Ledger) IssueReceipt(p *models.Payment, b *models.Booking, now time.Time) *models.Receipt {
	return receipt.Snapshot(p, b, l.numberer.Next(now), now)
}

func (l *Ledger) ListPayments(ctx context.Context, bookingID string) ([]models.Payment, error) {
	if _, err := l.bookings.Load(ctx, bookingID); err != nil {
		return nil, err
	}
	return l.store.ListPayments(ctx, bookingID)
}

func (l *Ledger) ListReceipts(ctx context.Context, bookingID string) ([]models.Receipt, error) {
	if _, err := l.bookings.Load(ctx, bookingID); err != nil {
		return nil, err
	}
	return l.store.ListReceipts(ctx, bookingID)
}

func (l *Ledger) GetReceipt(ctx context.Context, number string) (*models.Receipt, error) {
	r, err := l.store.GetReceipt(ctx, strings.TrimSpace(number))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	return r, err
}

// FindPayment looks a payment up by its gateway reference.
func (l *Ledger) FindPayment(ctx context.Context, externalRef string) (*models.Payment, error) {
	p, err := l.store.GetPaymentByExternalRef(ctx, strings.TrimSpace(externalRef))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}
