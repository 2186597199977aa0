// Package gateway exposes the HTTP ingress of the payment pipeline. It
// authenticates callers, mints transaction ids, and hands requests to the
// stream for asynchronous processing.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/cashflow/payment-gateway/internal/apikeys"
	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/stream"
)

const (
	apiKeyHeader = "X-API-Key"

	msgMissingKey = "API Key is missing."
	msgInvalidKey = "Invalid API Key."
)

// PendingStatus is the status reported to callers on acceptance. The actual
// outcome arrives later on the caller's webhook URL.
const PendingStatus = "Pending"

// SubmissionResponse is the 202 body returned for an accepted payment.
type SubmissionResponse struct {
	TransactionID uuid.UUID `json:"transactionId"`
	Status        string    `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Config defines handler behavior.
type Config struct {
	// NewID overrides transaction id minting for deterministic tests.
	NewID  func() uuid.UUID
	Logger stream.Logger
}

func (c Config) withDefaults() Config {
	if c.NewID == nil {
		c.NewID = uuid.New
	}
	if c.Logger == nil {
		c.Logger = stream.NopLogger{}
	}

	return c
}

// Option configures the handler.
type Option func(*Config)

// WithNewID sets the transaction id source.
func WithNewID(newID func() uuid.UUID) Option {
	return func(c *Config) {
		c.NewID = newID
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger stream.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Handler serves the payment submission API.
type Handler struct {
	keys      apikeys.Store
	publisher stream.Publisher
	cfg       Config
}

// NewHandler constructs a Handler.
func NewHandler(keys apikeys.Store, publisher stream.Publisher, opts ...Option) *Handler {
	if keys == nil {
		panic("gateway: nil key store")
	}
	if publisher == nil {
		panic("gateway: nil publisher")
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Handler{keys: keys, publisher: publisher, cfg: cfg.withDefaults()}
}

// Routes returns the gateway's HTTP mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments", h.submitPayment)
	mux.HandleFunc("GET /healthz", h.health)

	return mux
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// submitPayment authenticates the caller, validates the body, and publishes
// the request event. The 202 is written only after the broker acknowledges
// the publish, so an accepted transaction is durably queued.
func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key := r.Header.Get(apiKeyHeader)
	if key == "" {
		writeError(w, http.StatusUnauthorized, msgMissingKey)

		return
	}

	if _, err := h.keys.Lookup(ctx, key); err != nil {
		if errors.Is(err, apikeys.ErrUnknownKey) {
			writeError(w, http.StatusUnauthorized, msgInvalidKey)

			return
		}
		h.cfg.Logger.Error("api key lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	var req event.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")

		return
	}

	req.TransactionID = h.cfg.NewID()
	req.APIKey = key

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		h.cfg.Logger.Error("encode request event failed", "transaction", req.TransactionID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}
	if _, err := h.publisher.Publish(ctx, event.TopicPaymentRequests, payload); err != nil {
		h.cfg.Logger.Error("publish failed", "transaction", req.TransactionID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	h.cfg.Logger.Info("payment accepted", "transaction", req.TransactionID, "order", req.OrderID)

	writeJSON(w, http.StatusAccepted, SubmissionResponse{
		TransactionID: req.TransactionID,
		Status:        PendingStatus,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
