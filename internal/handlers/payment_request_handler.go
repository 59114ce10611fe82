package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/services"
)

type CreatePaymentRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0,lte=1000000000000"`
	Note   string `json:"note,omitempty" validate:"max=100"`
}

type PayRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type PaymentRequestHandler struct {
	service   *services.PaymentRequestService
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewPaymentRequestHandler(service *services.PaymentRequestService, log *zap.Logger) *PaymentRequestHandler {
	return &PaymentRequestHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// Create issues a single-use payment request with a QR image
// @Summary Create payment request
// @Description Returns a code and a base64 PNG QR image the payer can scan.
// @Tags Payment Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreatePaymentRequest true "Requested amount"
// @Success 201 {object} Response{data=services.PaymentRequest}
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /payment-requests [post]
func (h *PaymentRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	payeeID, ok := actor(w, r)
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	pr, err := h.service.Create(r.Context(), payeeID, req.Amount, req.Note)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// Get looks up a live payment request
// @Summary Get payment request
// @Tags Payment Requests
// @Produce json
// @Security BearerAuth
// @Param code path string true "Request code"
// @Success 200 {object} Response{data=services.PaymentRequest}
// @Failure 404 {object} services.ErrorResponse
// @Router /payment-requests/{code} [get]
func (h *PaymentRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	pr, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// Pay settles a payment request from the caller's balance
// @Summary Pay payment request
// @Tags Payment Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PayRequest true "Request code"
// @Success 200 {object} Response{data=services.Result}
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /payment-requests/pay [post]
func (h *PaymentRequestHandler) Pay(w http.ResponseWriter, r *http.Request) {
	payerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req PayRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, _, err := h.service.Pay(r.Context(), payerID, req.Code)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Cancel withdraws a payment request
// @Summary Cancel payment request
// @Tags Payment Requests
// @Produce json
// @Security BearerAuth
// @Param code path string true "Request code"
// @Success 200 {object} Response
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /payment-requests/{code} [delete]
func (h *PaymentRequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	payeeID, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), payeeID, chi.URLParam(r, "code")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
