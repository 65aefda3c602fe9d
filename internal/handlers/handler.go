package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/chat"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/queue"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat   *chat.Service
	store  store.DataStore
	queue  queue.Queue
	redis  *redis.Client // nil when running without Redis
	prober HealthProber  // nil when no provider probe is configured
	logger zerolog.Logger
}

// HealthProber is the provider-side health check: a synthetic
// generation round-trip.
type HealthProber interface {
	HealthCheck(ctx context.Context) error
}

// NewHandler creates a new Handler with the given collaborators.
func NewHandler(svc *chat.Service, st store.DataStore, q queue.Queue, rdb *redis.Client, prober HealthProber, logger zerolog.Logger) *Handler {
	return &Handler{chat: svc, store: st, queue: q, redis: rdb, prober: prober, logger: logger}
}

// envelope is the uniform response shape.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON sends a success envelope with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	h.write(w, status, envelope{Success: true, Data: data})
}

// Error sends an error envelope with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.write(w, status, envelope{Success: false, Message: message})
}

func (h *Handler) write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("encoding response failed")
	}
}

// fail maps service errors onto status codes. Sentinel errors carry
// their own caller-facing text; everything else is an opaque 500.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrQuotaExceeded):
		h.Error(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, models.ErrQueueUnavailable):
		h.Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// decode reads a JSON request body into dst.
func (h *Handler) decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
