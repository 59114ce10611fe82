package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/middleware"
	"github.com/guildledger/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// Response is the envelope of every successful reply.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

// decodeJSON reads exactly one JSON object into dst and validates it. It writes the
// error response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// actor returns the authenticated account id or writes a 401.
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return id, ok
}

// accountParam resolves {accountId}, where "me" names the caller.
func accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "accountId")
	if id == "" || id == "me" {
		return actor(w, r)
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("query parameter %s must be a non-negative integer", name)
	}
	return n, nil
}

// writeError maps service errors onto HTTP statuses. Storage failures are logged and
// reported without detail.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var cooldown *services.CooldownError
	switch {
	case errors.As(err, &cooldown):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(cooldown.Remaining.Seconds()))))
		services.SendErrorResponse(w, err.Error(), http.StatusTooManyRequests, nil)
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidAccount),
		errors.Is(err, services.ErrUnknownLevel),
		errors.Is(err, services.ErrLevelNotRaised):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrForbidden):
		services.SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, services.ErrUnknownItem),
		errors.Is(err, services.ErrUnknownJob),
		errors.Is(err, services.ErrRequestNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, services.ErrAlreadyClaimed):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrInsufficientItems),
		errors.Is(err, services.ErrLevelNotReached),
		errors.Is(err, services.ErrInvalidTarget):
		services.SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)
	case errors.Is(err, services.ErrUnavailable):
		services.SendErrorResponse(w, err.Error(), http.StatusServiceUnavailable, nil)
	default:
		log.Error("request failed", zap.Error(err))
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
