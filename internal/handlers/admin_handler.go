package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/services"
)

type AmountRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0,lte=1000000000000"`
}

type GrantItemRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int64  `json:"quantity" validate:"required,gte=1,lte=1000"`
}

type SetLevelRequest struct {
	Level int `json:"level" validate:"required,gte=1"`
}

// AdminHandler exposes AdminService. Authorization happens in the service.
type AdminHandler struct {
	admin     *services.AdminService
	authz     services.Authorizer
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewAdminHandler(admin *services.AdminService, authz services.Authorizer, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		authz:     authz,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// Credit adds earnings to an account
// @Summary Admin credit
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param request body AmountRequest true "Amount"
// @Success 200 {object} Response{data=services.Result}
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/credit [post]
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.admin.Credit(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"), req.Amount)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Debit removes credits from an account
// @Summary Admin debit
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param request body AmountRequest true "Amount"
// @Success 200 {object} Response{data=services.Result}
// @Failure 403 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/debit [post]
func (h *AdminHandler) Debit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.admin.Debit(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"), req.Amount)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GrantItem gives items to an account
// @Summary Admin grant item
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param request body GrantItemRequest true "Item and quantity"
// @Success 200 {object} Response{data=services.Result}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/items [post]
func (h *AdminHandler) GrantItem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req GrantItemRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.admin.GrantItem(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"), req.ItemID, req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RemoveItem takes every unit of an item
// @Summary Admin remove item
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param itemId path string true "Item ID"
// @Success 200 {object} Response{data=services.Result}
// @Failure 403 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/items/{itemId} [delete]
func (h *AdminHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	result, err := h.admin.RemoveItem(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"), chi.URLParam(r, "itemId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClearInventory empties an inventory
// @Summary Admin clear inventory
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} Response{data=services.Result}
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/inventory [delete]
func (h *AdminHandler) ClearInventory(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	result, err := h.admin.ClearInventory(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SetLevel raises an account to a level
// @Summary Admin set level
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param request body SetLevelRequest true "Target level"
// @Success 200 {object} Response{data=services.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/level [post]
func (h *AdminHandler) SetLevel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req SetLevelRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.admin.SetLevel(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"), req.Level)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Reset zeroes an account's balance and inventory
// @Summary Admin reset account
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} Response{data=services.Result}
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/reset [post]
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	result, err := h.admin.Reset(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AccountStats returns the admin view of an account
// @Summary Admin account stats
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} Response{data=services.AccountStats}
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/accounts/{accountId}/stats [get]
func (h *AdminHandler) AccountStats(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	stats, err := h.admin.AccountStats(r.Context(), h.authz, actorID, chi.URLParam(r, "accountId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// EconomyStats summarizes the whole economy
// @Summary Admin economy stats
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=models.EconomyStats}
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/stats [get]
func (h *AdminHandler) EconomyStats(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	stats, err := h.admin.EconomyStats(r.Context(), h.authz, actorID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
