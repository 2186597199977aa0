// Package event defines the wire contracts exchanged between the gateway,
// the authorization worker, and the webhook dispatcher.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topic names shared by every component of the pipeline.
const (
	// TopicPaymentRequests carries PaymentRequest events from the gateway to the worker.
	TopicPaymentRequests = "payment-requests"
	// TopicPaymentOutcomes carries PaymentOutcome events from the worker to the dispatcher.
	TopicPaymentOutcomes = "payment-outcomes"
)

// Status is the final authorization result of a transaction.
type Status string

const (
	// StatusSuccess indicates the authorization succeeded.
	StatusSuccess Status = "Success"
	// StatusFailure indicates the authorization was declined.
	StatusFailure Status = "Failure"
)

// PaymentRequest is the immutable event minted by the gateway for each
// authenticated submission. The transaction id is generated once at ingress
// and every downstream entity carries it unchanged.
type PaymentRequest struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CardNumber    string          `json:"cardNumber"`
	WebhookURL    string          `json:"webhookUrl"`
	// APIKey is the caller's raw credential, carried through for the audit
	// record embedded in the transaction log.
	APIKey string `json:"apiKey"`
}

// Validate checks the caller-supplied fields of a request.
func (r PaymentRequest) Validate() error {
	if r.OrderID == "" {
		return ErrOrderIDRequired
	}
	if !r.Amount.IsPositive() {
		return ErrAmountNotPositive
	}
	if r.Currency == "" {
		return ErrCurrencyRequired
	}
	if r.CardNumber == "" {
		return ErrCardNumberRequired
	}
	if r.WebhookURL == "" {
		return ErrWebhookURLRequired
	}

	return nil
}

// PaymentOutcome is the durable result of authorization, published once per
// successfully processed request. The webhook URL is copied through so the
// dispatcher needs no lookup.
type PaymentOutcome struct {
	TransactionID uuid.UUID `json:"transactionId"`
	OrderID       string    `json:"orderId"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	WebhookURL    string    `json:"webhookUrl"`
}

// WebhookPayload is the JSON body POSTed to the caller's webhook URL.
type WebhookPayload struct {
	TransactionID     uuid.UUID `json:"transactionId"`
	OrderID           string    `json:"orderId"`
	Status            Status    `json:"status"`
	FailureReason     string    `json:"failureReason,omitempty"`
	DeliveryTimestamp time.Time `json:"deliveryTimestamp"`
}

// DecodePaymentRequest deserializes a payment-requests payload.
func DecodePaymentRequest(data []byte) (PaymentRequest, error) {
	var req PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return PaymentRequest{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return req, nil
}

// DecodePaymentOutcome deserializes a payment-outcomes payload.
func DecodePaymentOutcome(data []byte) (PaymentOutcome, error) {
	var outcome PaymentOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return PaymentOutcome{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return outcome, nil
}
