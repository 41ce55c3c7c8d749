package payment

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/booking"
	"ms-booking/internal/ledger"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test"

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) RecordPayment(ctx context.Context, in models.PaymentInput) (*models.PaymentResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*models.PaymentResult)
	return res, args.Error(1)
}

func (m *mockLedger) FindPayment(ctx context.Context, externalRef string) (*models.Payment, error) {
	args := m.Called(ctx, externalRef)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func recorded(ref string) *models.PaymentResult {
	return &models.PaymentResult{
		Payment: &models.Payment{ID: "pay-1", ExternalRef: ref},
		Receipt: &models.Receipt{Number: "OR-20261016-000001"},
	}
}

func signedRequest(t *testing.T, payload string, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func eventJSON(typ, object string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, typ, object)
}

const intentObject = `{"id":"pi_123","object":"payment_intent","amount":1500000,"amount_received":1500000,
"currency":"php","payment_method_types":["card"],"metadata":{"booking_id":"bk-1","payment_type":"deposit"}}`

func TestWebhookRecordsSucceededIntent(t *testing.T) {
	l := new(mockLedger)
	l.On("RecordPayment", mock.Anything, models.PaymentInput{
		BookingID:   "bk-1",
		Amount:      1500000,
		Type:        models.PaymentDeposit,
		Method:      "stripe:card",
		Currency:    "PHP",
		ExternalRef: "pi_123",
	}).Return(recorded("pi_123"), nil).Once()

	h := NewWebhookHandler(l, testSecret, logger.Discard())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventJSON("payment_intent.succeeded", intentObject), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	l.AssertExpectations(t)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	l := new(mockLedger)
	h := NewWebhookHandler(l, testSecret, logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventJSON("payment_intent.succeeded", intentObject), "whsec_other"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid webhook signature")
	l.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything)
}

func TestWebhookWithoutSecret(t *testing.T) {
	h := NewWebhookHandler(new(mockLedger), "", logger.Discard())
	err := h.Handle(signedRequest(t, eventJSON("payment_intent.succeeded", intentObject), testSecret))

	var we *WebhookError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "configuration", we.Category)
	assert.Equal(t, http.StatusInternalServerError, we.StatusCode)
}

func TestWebhookAcknowledgesRefusedPayment(t *testing.T) {
	l := new(mockLedger)
	l.On("RecordPayment", mock.Anything, mock.Anything).
		Return(nil, &ledger.OverpaymentError{Total: 100, Paid: 100, Amount: 1500000}).Once()

	h := NewWebhookHandler(l, testSecret, logger.Discard())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventJSON("payment_intent.succeeded", intentObject), testSecret))

	assert.Equal(t, http.StatusOK, rec.Code)
	l.AssertExpectations(t)
}

func TestWebhookStoreFailureAsksForRetry(t *testing.T) {
	l := new(mockLedger)
	l.On("RecordPayment", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	h := NewWebhookHandler(l, testSecret, logger.Discard())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventJSON("payment_intent.succeeded", intentObject), testSecret))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookRecordsSucceededRefund(t *testing.T) {
	l := new(mockLedger)
	l.On("FindPayment", mock.Anything, "pi_123").
		Return(&models.Payment{ID: "pay-1", BookingID: "bk-1", Method: "stripe:card"}, nil).Once()
	l.On("RecordPayment", mock.Anything, models.PaymentInput{
		BookingID:   "bk-1",
		Amount:      500000,
		Type:        models.PaymentRefund,
		Method:      "stripe:card",
		Currency:    "PHP",
		ExternalRef: "re_9",
		RefundOf:    "pay-1",
	}).Return(recorded("re_9"), nil).Once()

	refund := `{"id":"re_9","object":"refund","amount":500000,"currency":"php","status":"succeeded","payment_intent":"pi_123"}`
	h := NewWebhookHandler(l, testSecret, logger.Discard())
	require.NoError(t, h.Handle(signedRequest(t, eventJSON("refund.created", refund), testSecret)))
	l.AssertExpectations(t)
}

func TestWebhookWaitsForPendingRefund(t *testing.T) {
	l := new(mockLedger)
	refund := `{"id":"re_9","object":"refund","amount":500000,"currency":"php","status":"pending","payment_intent":"pi_123"}`
	h := NewWebhookHandler(l, testSecret, logger.Discard())

	require.NoError(t, h.Handle(signedRequest(t, eventJSON("refund.updated", refund), testSecret)))
	l.AssertNotCalled(t, "FindPayment", mock.Anything, mock.Anything)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	l := new(mockLedger)
	h := NewWebhookHandler(l, testSecret, logger.Discard())

	require.NoError(t, h.Handle(signedRequest(t, eventJSON("customer.created", `{"id":"cus_1","object":"customer"}`), testSecret)))
	l.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything)
}

func TestGatewayConsumerRecordsMessage(t *testing.T) {
	l := new(mockLedger)
	l.On("RecordPayment", mock.Anything, models.PaymentInput{
		BookingID:   "bk-7",
		Amount:      2500000,
		Type:        models.PaymentBalance,
		Method:      "gcash",
		Currency:    "PHP",
		ExternalRef: "gc-77",
	}).Return(recorded("gc-77"), nil).Once()

	c := NewGatewayConsumer(l, logger.Discard())
	err := c.Handle(context.Background(), kafkago.Message{
		Topic: "wedding.payment.gateway",
		Key:   []byte("bk-7"),
		Value: []byte(`{"amount":2500000,"type":"balance","method":"gcash","currency":"PHP","external_ref":"gc-77"}`),
	})
	require.NoError(t, err)
	l.AssertExpectations(t)
}

func TestGatewayConsumerDropsBadMessages(t *testing.T) {
	l := new(mockLedger)
	l.On("RecordPayment", mock.Anything, mock.Anything).Return(nil, ledger.ErrInvalidAmount).Once()
	c := NewGatewayConsumer(l, logger.Discard())

	assert.NoError(t, c.Handle(context.Background(), kafkago.Message{Value: []byte("{not json")}))
	assert.NoError(t, c.Handle(context.Background(), kafkago.Message{Value: []byte(`{"booking_id":"bk-1","amount":0}`)}))
	l.AssertExpectations(t)
}

func TestGatewayConsumerReturnsStoreErrors(t *testing.T) {
	l := new(mockLedger)
	l.On("RecordPayment", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()
	c := NewGatewayConsumer(l, logger.Discard())

	err := c.Handle(context.Background(), kafkago.Message{Value: []byte(`{"booking_id":"bk-1","amount":10,"type":"full","external_ref":"x"}`)})
	assert.ErrorContains(t, err, "db down")
}

type fakeIntents struct {
	params *stripe.PaymentIntentParams
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	return &stripe.PaymentIntent{ID: "pi_new", ClientSecret: "pi_new_secret"}, nil
}

type fakeBookings struct {
	b *models.Booking
}

func (f *fakeBookings) Get(ctx context.Context, id string) (*models.Booking, error) {
	if f.b == nil || f.b.ID != id {
		return nil, booking.ErrBookingNotFound
	}
	return f.b, nil
}

func (f *fakeBookings) Authorize(ctx context.Context, b *models.Booking, p models.Principal) error {
	if p.Role == models.ActorClient && p.ID != b.ClientID {
		return booking.ErrUnauthorizedActor
	}
	return nil
}

func acceptedBooking() *models.Booking {
	total := int64(7500000)
	return &models.Booking{
		ID:               "bk-1",
		Reference:        "WB-2026-001",
		ClientID:         "client-1",
		Status:           models.StatusQuoteAccepted,
		Currency:         "PHP",
		TotalAmount:      &total,
		TotalPaid:        1500000,
		RemainingBalance: 6000000,
	}
}

func TestCreateIntentDefaultsToRemainingBalance(t *testing.T) {
	intents := &fakeIntents{}
	g := NewGateway(intents, &fakeBookings{b: acceptedBooking()}, logger.Discard())
	client := models.Principal{Role: models.ActorClient, ID: "client-1"}

	in, err := g.CreateIntent(context.Background(), "bk-1", client, models.PaymentBalance, 0)
	require.NoError(t, err)
	assert.Equal(t, "pi_new", in.ID)
	assert.Equal(t, "pi_new_secret", in.ClientSecret)
	assert.Equal(t, int64(6000000), in.Amount)

	require.NotNil(t, intents.params)
	assert.Equal(t, int64(6000000), *intents.params.Amount)
	assert.Equal(t, "php", *intents.params.Currency)
	assert.Equal(t, "bk-1", intents.params.Metadata["booking_id"])
	assert.Equal(t, "balance", intents.params.Metadata["payment_type"])
}

func TestCreateIntentRejections(t *testing.T) {
	client := models.Principal{Role: models.ActorClient, ID: "client-1"}
	g := NewGateway(&fakeIntents{}, &fakeBookings{b: acceptedBooking()}, logger.Discard())
	ctx := context.Background()

	_, err := g.CreateIntent(ctx, "bk-1", client, models.PaymentDeposit, 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = g.CreateIntent(ctx, "bk-1", client, models.PaymentBalance, 6000001)
	assert.ErrorIs(t, err, ledger.ErrOverpaymentAttempt)

	_, err = g.CreateIntent(ctx, "bk-1", client, models.PaymentRefund, 100)
	assert.ErrorIs(t, err, ledger.ErrInvalidPayment)

	_, err = g.CreateIntent(ctx, "bk-1", models.Principal{Role: models.ActorClient, ID: "client-2"}, models.PaymentFull, 0)
	assert.ErrorIs(t, err, booking.ErrUnauthorizedActor)

	_, err = g.CreateIntent(ctx, "bk-404", client, models.PaymentFull, 0)
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)

	paid := acceptedBooking()
	paid.TotalPaid, paid.RemainingBalance = 7500000, 0
	g = NewGateway(&fakeIntents{}, &fakeBookings{b: paid}, logger.Discard())
	_, err = g.CreateIntent(ctx, "bk-1", client, models.PaymentBalance, 0)
	assert.ErrorIs(t, err, ErrNothingDue)

	closed := acceptedBooking()
	closed.Status = models.StatusCancelled
	g = NewGateway(&fakeIntents{}, &fakeBookings{b: closed}, logger.Discard())
	_, err = g.CreateIntent(ctx, "bk-1", client, models.PaymentBalance, 0)
	assert.ErrorIs(t, err, ledger.ErrBookingClosed)
}
