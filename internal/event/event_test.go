package event

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func validRequest() PaymentRequest {
	return PaymentRequest{
		TransactionID: uuid.New(),
		OrderID:       "ORD-1",
		Amount:        decimal.NewFromFloat(100.00),
		Currency:      "USD",
		CardNumber:    "4111-1111-1111-1111",
		WebhookURL:    "https://merchant.test/hook",
		APIKey:        "key123",
	}
}

func TestPaymentRequestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PaymentRequest)
		err    error
	}{
		{
			name:   "missing order id",
			mutate: func(r *PaymentRequest) { r.OrderID = "" },
			err:    ErrOrderIDRequired,
		},
		{
			name:   "zero amount",
			mutate: func(r *PaymentRequest) { r.Amount = decimal.Zero },
			err:    ErrAmountNotPositive,
		},
		{
			name:   "negative amount",
			mutate: func(r *PaymentRequest) { r.Amount = decimal.NewFromInt(-5) },
			err:    ErrAmountNotPositive,
		},
		{
			name:   "missing currency",
			mutate: func(r *PaymentRequest) { r.Currency = "" },
			err:    ErrCurrencyRequired,
		},
		{
			name:   "missing card number",
			mutate: func(r *PaymentRequest) { r.CardNumber = "" },
			err:    ErrCardNumberRequired,
		},
		{
			name:   "missing webhook url",
			mutate: func(r *PaymentRequest) { r.WebhookURL = "" },
			err:    ErrWebhookURLRequired,
		},
		{
			name:   "valid",
			mutate: func(*PaymentRequest) {},
			err:    nil,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := req.Validate()
			if tc.err == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.err != nil && err != tc.err {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestDecodePaymentRequestRoundTrip(t *testing.T) {
	want := validRequest()
	data := []byte(`{"transactionId":"` + want.TransactionID.String() + `",` +
		`"orderId":"ORD-1","amount":"100","currency":"USD",` +
		`"cardNumber":"4111-1111-1111-1111","webhookUrl":"https://merchant.test/hook",` +
		`"apiKey":"key123"}`)

	got, err := DecodePaymentRequest(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TransactionID != want.TransactionID {
		t.Fatalf("transaction id mismatch: %s != %s", got.TransactionID, want.TransactionID)
	}
	if !got.Amount.Equal(want.Amount) {
		t.Fatalf("amount mismatch: %s != %s", got.Amount, want.Amount)
	}
}

func TestDecodePaymentRequestMalformed(t *testing.T) {
	if _, err := DecodePaymentRequest([]byte(`{`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected malformed event error, got %v", err)
	}
}

func TestDecodePaymentOutcomeMalformed(t *testing.T) {
	if _, err := DecodePaymentOutcome([]byte(`not json`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected malformed event error, got %v", err)
	}
}
