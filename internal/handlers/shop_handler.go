package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/models"
	"github.com/guildledger/backend/internal/services"
)

type BuyRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int64  `json:"quantity" validate:"omitempty,gte=1,lte=1000"`
}

type ShopHandler struct {
	economy   *services.EconomyService
	validator *services.ValidationHelper
	log       *zap.Logger
}

func NewShopHandler(economy *services.EconomyService, log *zap.Logger) *ShopHandler {
	return &ShopHandler{
		economy:   economy,
		validator: services.NewValidationHelper(),
		log:       log,
	}
}

// ListItems lists the shop catalog
// @Summary Shop catalog
// @Tags Shop
// @Produce json
// @Security BearerAuth
// @Param type query string false "consumable, tool, upgrade, badge or collectible"
// @Success 200 {object} Response{data=[]models.ShopItem}
// @Router /shop [get]
func (h *ShopHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	itemType := r.URL.Query().Get("type")
	switch itemType {
	case "", models.ItemConsumable, models.ItemTool, models.ItemUpgrade, models.ItemBadge, models.ItemCollectible:
	default:
		services.SendErrorResponse(w, "Unknown item type", http.StatusBadRequest, nil)
		return
	}
	writeJSON(w, http.StatusOK, h.economy.Catalog().Items(itemType))
}

// GetItem returns one catalog item
// @Summary Shop item
// @Tags Shop
// @Produce json
// @Security BearerAuth
// @Param itemId path string true "Item ID"
// @Success 200 {object} Response{data=models.ShopItem}
// @Failure 404 {object} services.ErrorResponse
// @Router /shop/items/{itemId} [get]
func (h *ShopHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, ok := h.economy.Catalog().Item(chi.URLParam(r, "itemId"))
	if !ok {
		writeError(w, h.log, services.ErrUnknownItem)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Buy purchases catalog items
// @Summary Buy items
// @Tags Shop
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BuyRequest true "Purchase; quantity defaults to 1"
// @Success 200 {object} Response{data=services.Result}
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /shop/buy [post]
func (h *ShopHandler) Buy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := actor(w, r)
	if !ok {
		return
	}
	var req BuyRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.economy.Purchase(r.Context(), accountID, req.ItemID, req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListJobs lists the available jobs
// @Summary Jobs
// @Tags Shop
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Job}
// @Router /jobs [get]
func (h *ShopHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.economy.Catalog().Jobs())
}

// Milestones lists the titled level rewards
// @Summary Level milestones
// @Tags Shop
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.RewardEntry}
// @Router /rewards/milestones [get]
func (h *ShopHandler) Milestones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.economy.Rewards().Milestones())
}
