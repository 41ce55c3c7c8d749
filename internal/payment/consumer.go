package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"net/http"

	kafkago "github.com/segmentio/kafka-go"
)

// GatewayMessage is a settled payment published by an upstream gateway service.
type GatewayMessage struct {
	BookingID   string             `json:"booking_id"`
	Amount      int64              `json:"amount"`
	Type        models.PaymentType `json:"type"`
	Method      string             `json:"method"`
	Currency    string             `json:"currency"`
	ExternalRef string             `json:"external_ref"`
	RefundOf    string             `json:"refund_of,omitempty"`
}

type GatewayConsumer struct {
	ledger Ledger
	logger *logger.Logger
}

func NewGatewayConsumer(l Ledger, log *logger.Logger) *GatewayConsumer {
	return &GatewayConsumer{ledger: l, logger: log}
}

// Handle records one gateway message. Malformed or refused messages are logged
// and dropped; store failures are returned to the consumer loop.
func (c *GatewayConsumer) Handle(ctx context.Context, msg kafkago.Message) error {
	var m GatewayMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		c.logger.Error("KAFKA", fmt.Sprintf("Dropping malformed gateway message at offset %d: %v", msg.Offset, err))
		return nil
	}
	if m.BookingID == "" {
		m.BookingID = string(msg.Key)
	}

	res, err := c.ledger.RecordPayment(ctx, models.PaymentInput{
		BookingID:   m.BookingID,
		Amount:      m.Amount,
		Type:        m.Type,
		Method:      m.Method,
		Currency:    m.Currency,
		ExternalRef: m.ExternalRef,
		RefundOf:    m.RefundOf,
	})
	if err != nil {
		if apperr.Status(err) < http.StatusInternalServerError {
			c.logger.Error("KAFKA", fmt.Sprintf("Ledger refused gateway payment %s: %v", m.ExternalRef, err))
			return nil
		}
		return fmt.Errorf("record gateway payment %s: %w", m.ExternalRef, err)
	}
	c.logger.LogKafka("CONSUMED", msg.Topic, fmt.Sprintf("payment %s replayed=%t receipt %s", m.ExternalRef, res.Replayed, res.Receipt.Number))
	return nil
}
