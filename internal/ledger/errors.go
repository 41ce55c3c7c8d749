package ledger

import (
	"fmt"
	"ms-booking/internal/apperr"
	"net/http"
)

var (
	ErrEmptyQuote                   = apperr.New("EMPTY_QUOTE", http.StatusBadRequest, "quote must have at least one line item")
	ErrInvalidLineItem              = apperr.New("INVALID_LINE_ITEM", http.StatusBadRequest, "invalid line item")
	ErrNoActiveQuote                = apperr.New("NO_ACTIVE_QUOTE", http.StatusConflict, "booking has no pending quote")
	ErrQuoteNotFound                = apperr.New("QUOTE_NOT_FOUND", http.StatusNotFound, "quote not found")
	ErrInvalidAmount                = apperr.New("INVALID_AMOUNT", http.StatusBadRequest, "amount must be greater than zero")
	ErrInvalidPayment               = apperr.New("INVALID_PAYMENT", http.StatusBadRequest, "invalid payment")
	ErrOverpaymentAttempt           = apperr.New("OVERPAYMENT_ATTEMPT", http.StatusUnprocessableEntity, "payment exceeds the booking total")
	ErrInsufficientRefundableAmount = apperr.New("INSUFFICIENT_REFUNDABLE_AMOUNT", http.StatusUnprocessableEntity, "refund exceeds the unrefunded amount")
	ErrMissingRefundReference       = apperr.New("MISSING_REFUND_REFERENCE", http.StatusBadRequest, "refund must reference a prior payment")
	ErrBookingClosed                = apperr.New("BOOKING_CLOSED", http.StatusConflict, "booking no longer accepts payments")
	ErrCurrencyMismatch             = apperr.New("CURRENCY_MISMATCH", http.StatusBadRequest, "payment currency does not match the booking")
	ErrExternalRefConflict          = apperr.New("EXTERNAL_REF_CONFLICT", http.StatusConflict, "external reference already used by another booking")
	ErrReceiptNotFound              = apperr.New("RECEIPT_NOT_FOUND", http.StatusNotFound, "receipt not found")
	ErrPaymentNotFound              = apperr.New("PAYMENT_NOT_FOUND", http.StatusNotFound, "payment not found")
)

type LineItemError struct {
	Index  int
	Reason string
}

func (e *LineItemError) Error() string {
	return fmt.Sprintf("line item %d: %s", e.Index+1, e.Reason)
}

func (e *LineItemError) Unwrap() error {
	return ErrInvalidLineItem
}

// OverpaymentError reports the amounts that would push total_paid past the total.
type OverpaymentError struct {
	Total  int64
	Paid   int64
	Amount int64
}

func (e *OverpaymentError) Error() string {
	if e.Amount == 0 {
		return fmt.Sprintf("quote total %d is below the %d already paid", e.Total, e.Paid)
	}
	return fmt.Sprintf("payment of %d exceeds remaining balance %d", e.Amount, e.Total-e.Paid)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpaymentAttempt
}

type RefundError struct {
	PaymentID  string
	Refundable int64
	Requested  int64
}

func (e *RefundError) Error() string {
	return fmt.Sprintf("refund of %d against payment %s exceeds refundable %d", e.Requested, e.PaymentID, e.Refundable)
}

func (e *RefundError) Unwrap() error {
	return ErrInsufficientRefundableAmount
}
