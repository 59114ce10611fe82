package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/services"
)

type EarnRequest struct {
	AccountID string `json:"account_id" validate:"required,max=64"`
	Amount    int64  `json:"amount" validate:"required,gt=0,lte=1000000000000"`
	Reason    string `json:"reason,omitempty" validate:"max=64"`
}

type WorkRequest struct {
	JobID string `json:"job_id" validate:"required"`
}

type GambleRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0,lte=1000000000000"`
}

type TransferRequest struct {
	ToAccountID string `json:"to_account_id" validate:"required,max=64"`
	Amount      int64  `json:"amount" validate:"required,gt=0,lte=1000000000000"`
}

type ClaimRewardRequest struct {
	Level int `json:"level" validate:"required,gte=1"`
}

type UseItemRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

type EconomyHandler struct {
	economy   *services.EconomyService
	activity  *services.ActivityService
	authz     services.Authorizer
	validator *services.ValidationHelper
	// boardSize is the leaderboard length when the caller does not ask for one.
	boardSize int
	log       *zap.Logger
}

func NewEconomyHandler(economy *services.EconomyService, activity *services.ActivityService, authz services.Authorizer, boardSize int, log *zap.Logger) *EconomyHandler {
	if boardSize <= 0 {
		boardSize = 10
	}
	return &EconomyHandler{
		economy:   economy,
		activity:  activity,
		authz:     authz,
		validator: services.NewValidationHelper(),
		boardSize: boardSize,
		log:       log,
	}
}

// GetAccount returns an account's balance and level
// @Summary Get account
// @Description Balance, lifetime earnings and level of an account. Use "me" for the caller.
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID or me"
// @Success 200 {object} Response{data=models.Account}
// @Failure 401 {object} services.ErrorResponse
// @Router /accounts/{accountId} [get]
func (h *EconomyHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	acc, err := h.economy.Account(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// Progress returns level progress
// @Summary Level progress
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID or me"
// @Success 200 {object} Response{data=services.Progress}
// @Router /accounts/{accountId}/progress [get]
func (h *EconomyHandler) Progress(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	p, err := h.economy.Progress(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Transactions lists ledger rows, newest first
// @Summary Transaction history
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID or me"
// @Param limit query int false "Page size (max 100)"
// @Param before query int false "Return rows older than this row id"
// @Success 200 {object} Response{data=[]models.Transaction}
// @Failure 400 {object} services.ErrorResponse
// @Router /accounts/{accountId}/transactions [get]
func (h *EconomyHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	before, err := queryInt(r, "before", 0)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	txs, err := h.economy.Transactions(r.Context(), accountID, int(limit), before)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Inventory lists held items
// @Summary Inventory
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID or me"
// @Success 200 {object} Response{data=[]services.InventoryEntry}
// @Router /accounts/{accountId}/inventory [get]
func (h *EconomyHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	items, err := h.economy.Inventory(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Rewards lists claimed and pending level rewards
// @Summary Level rewards
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID or me"
// @Success 200 {object} Response{data=services.RewardStatus}
// @Router /accounts/{accountId}/rewards [get]
func (h *EconomyHandler) Rewards(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountParam(w, r)
	if !ok {
		return
	}
	status, err := h.economy.RewardStatus(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Cooldowns lists the caller's active cooldowns in seconds
// @Summary Active cooldowns
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=map[string]int64}
// @Router /accounts/me/cooldowns [get]
func (h *EconomyHandler) Cooldowns(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	active, err := h.activity.Cooldowns(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make(map[string]int64, len(active))
	for action, remaining := range active {
		out[action] = int64(remaining.Round(time.Second) / time.Second)
	}
	writeJSON(w, http.StatusOK, out)
}

// Earn credits earnings to any account
// @Summary Credit earnings
// @Description Requires the earn capability.
// @Tags Economy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EarnRequest true "Earn request"
// @Success 200 {object} Response{data=services.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /economy/earn [post]
func (h *EconomyHandler) Earn(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.authz.Authorize(r.Context(), actorID, services.CapabilityEarn); err != nil {
		writeError(w, h.log, err)
		return
	}

	var req EarnRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.economy.Earn(r.Context(), req.AccountID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Daily collects the daily reward
// @Summary Daily reward
// @Tags Economy
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=services.ActivityResult}
// @Failure 429 {object} services.ErrorResponse
// @Router /economy/daily [post]
func (h *EconomyHandler) Daily(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	result, err := h.activity.Daily(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Work works a job
// @Summary Work a job
// @Tags Economy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body WorkRequest true "Job to work"
// @Success 200 {object} Response{data=services.ActivityResult}
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /economy/work [post]
func (h *EconomyHandler) Work(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	var req WorkRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.activity.Work(r.Context(), accountID, req.JobID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Crime attempts a crime
// @Summary Commit a crime
// @Tags Economy
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=services.ActivityResult}
// @Failure 429 {object} services.ErrorResponse
// @Router /economy/crime [post]
func (h *EconomyHandler) Crime(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	result, err := h.activity.Crime(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Gamble stakes credits on a coin flip
// @Summary Gamble
// @Tags Economy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GambleRequest true "Stake"
// @Success 200 {object} Response{data=services.ActivityResult}
// @Failure 422 {object} services.ErrorResponse
// @Router /economy/gamble [post]
func (h *EconomyHandler) Gamble(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	var req GambleRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.activity.Gamble(r.Context(), accountID, req.Amount)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Transfer sends credits to another account
// @Summary Transfer credits
// @Tags Economy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TransferRequest true "Transfer"
// @Success 200 {object} Response{data=services.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /economy/transfer [post]
func (h *EconomyHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.economy.Transfer(r.Context(), accountID, req.ToAccountID, req.Amount)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClaimReward claims one level reward
// @Summary Claim a level reward
// @Tags Economy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ClaimRewardRequest true "Level to claim"
// @Success 200 {object} Response{data=services.Result}
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /economy/rewards/claim [post]
func (h *EconomyHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	var req ClaimRewardRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.economy.ClaimLevelReward(r.Context(), accountID, req.Level)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClaimAllRewards claims every pending level reward
// @Summary Claim all pending level rewards
// @Tags Economy
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=services.Result}
// @Failure 409 {object} services.ErrorResponse
// @Router /economy/rewards/claim-all [post]
func (h *EconomyHandler) ClaimAllRewards(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	result, err := h.economy.ClaimPendingRewards(r.Context(), accountID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UseItem uses an owned item
// @Summary Use an item
// @Tags Inventory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UseItemRequest true "Item to use"
// @Success 200 {object} Response{data=services.ActivityResult}
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /inventory/use [post]
func (h *EconomyHandler) UseItem(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	var req UseItemRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	result, err := h.activity.UseItem(r.Context(), accountID, req.ItemID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Leaderboard ranks accounts
// @Summary Leaderboard
// @Tags Economy
// @Produce json
// @Security BearerAuth
// @Param by query string false "balance, earned or level"
// @Param limit query int false "Number of rows"
// @Success 200 {object} Response{data=[]models.LeaderboardEntry}
// @Router /leaderboard [get]
func (h *EconomyHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	by := r.URL.Query().Get("by")
	switch by {
	case "", services.RankByBalance, services.RankByEarned, services.RankByLevel:
	default:
		services.SendErrorResponse(w, "by must be one of balance, earned, level", http.StatusBadRequest, nil)
		return
	}
	limit, err := queryInt(r, "limit", int64(h.boardSize))
	if err != nil || limit > 100 {
		services.SendErrorResponse(w, "limit must be between 0 and 100", http.StatusBadRequest, nil)
		return
	}

	entries, err := h.economy.Leaderboard(r.Context(), by, int(limit))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
