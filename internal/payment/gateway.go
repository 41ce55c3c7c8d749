// Package payment connects external payment gateways to the ledger: Stripe
// payment intents and webhooks, and gateway events arriving over Kafka.
package payment

import (
	"context"
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/booking"
	"ms-booking/internal/ledger"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrNothingDue = apperr.New("NOTHING_DUE", http.StatusConflict, "booking has no outstanding balance")

const (
	metaBookingID   = "booking_id"
	metaPaymentType = "payment_type"
)

// Ledger is the part of the ledger the gateway integrations call.
type Ledger interface {
	RecordPayment(ctx context.Context, in models.PaymentInput) (*models.PaymentResult, error)
	FindPayment(ctx context.Context, externalRef string) (*models.Payment, error)
}

type Bookings interface {
	Get(ctx context.Context, id string) (*models.Booking, error)
	Authorize(ctx context.Context, b *models.Booking, p models.Principal) error
}

// IntentAPI creates Stripe payment intents.
type IntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Intent struct {
	ID           string             `json:"payment_intent_id"`
	ClientSecret string             `json:"client_secret"`
	Amount       int64              `json:"amount"`
	Currency     string             `json:"currency"`
	Type         models.PaymentType `json:"payment_type"`
}

// Gateway opens Stripe payment intents for booking payments. The payment itself
// is recorded when the webhook confirms it.
type Gateway struct {
	intents  IntentAPI
	bookings Bookings
	logger   *logger.Logger
}

// NewStripeGateway builds a Gateway on the Stripe API client.
func NewStripeGateway(secretKey string, bookings Bookings, log *logger.Logger) (*Gateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return NewGateway(sc.PaymentIntents, bookings, log), nil
}

func NewGateway(intents IntentAPI, bookings Bookings, log *logger.Logger) *Gateway {
	return &Gateway{intents: intents, bookings: bookings, logger: log}
}

// CreateIntent opens an intent for a payment of type t. Balance and full
// payments default to the remaining balance; deposits need an explicit amount.
func (g *Gateway) CreateIntent(ctx context.Context, bookingID string, p models.Principal, t models.PaymentType, amount int64) (*Intent, error) {
	if t == models.PaymentRefund || !t.Valid() {
		return nil, fmt.Errorf("%w: cannot open an intent for %q", ledger.ErrInvalidPayment, t)
	}
	if p.Role != models.ActorClient && p.Role != models.ActorAdmin {
		return nil, booking.ErrUnauthorizedActor
	}
	b, err := g.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := g.bookings.Authorize(ctx, b, p); err != nil {
		return nil, err
	}
	if booking.Terminal(b.Status) {
		return nil, fmt.Errorf("%w: booking is %s", ledger.ErrBookingClosed, b.Status)
	}
	if !b.HasTotal() || b.RemainingBalance == 0 {
		return nil, ErrNothingDue
	}
	if amount == 0 && t != models.PaymentDeposit {
		amount = b.RemainingBalance
	}
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if amount > b.RemainingBalance {
		return nil, &ledger.OverpaymentError{Total: b.Total(), Paid: b.TotalPaid, Amount: amount}
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(b.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(metaBookingID, b.ID)
	params.AddMetadata(metaPaymentType, string(t))
	params.AddMetadata("booking_reference", b.Reference)

	pi, err := g.intents.New(params)
	if err != nil {
		g.logger.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for booking %s: %v", b.ID, err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	g.logger.LogLedger("INTENT", b.ID, fmt.Sprintf("payment intent %s for %s %d %s", pi.ID, t, amount, b.Currency))
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: amount, Currency: b.Currency, Type: t}, nil
}
