package event

import "errors"

var (
	// ErrOrderIDRequired is returned when the order id is empty.
	ErrOrderIDRequired = errors.New("event: order id is required")
	// ErrAmountNotPositive is returned when the amount is zero or negative.
	ErrAmountNotPositive = errors.New("event: amount must be positive")
	// ErrCurrencyRequired is returned when the currency is empty.
	ErrCurrencyRequired = errors.New("event: currency is required")
	// ErrCardNumberRequired is returned when the card reference is empty.
	ErrCardNumberRequired = errors.New("event: card number is required")
	// ErrWebhookURLRequired is returned when the webhook URL is empty.
	ErrWebhookURLRequired = errors.New("event: webhook url is required")
	// ErrMalformedEvent is returned when an event payload cannot be deserialized.
	ErrMalformedEvent = errors.New("event: malformed payload")
)
