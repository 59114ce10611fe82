package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/database"
	"github.com/guildledger/backend/internal/middleware"
	"github.com/guildledger/backend/internal/models"
	"github.com/guildledger/backend/internal/services"
)

const (
	testSecret = "test-secret"
	adminID    = "9000"
)

type testServer struct {
	router  chi.Router
	economy *services.EconomyService
}

func newTestServer(t *testing.T, health func(context.Context) error) *testServer {
	t.Helper()
	log := zap.NewNop()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "economy.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog, err := services.DefaultCatalog()
	require.NoError(t, err)
	rewards := services.NewRewardTable()
	ledger := services.NewLedgerService(db, database.SQLite(), rewards.LevelFor, log)
	economy := services.NewEconomyService(ledger, rewards, catalog, nil, log)
	cooldowns := services.NewSQLCooldownStore(db, database.SQLite())
	activity := services.NewActivityService(economy, cooldowns, nil, services.DefaultActivityConfig(), log)
	authz := services.NewAllowlistAuthorizer([]string{adminID})

	router := NewRouter(RouterConfig{
		Economy:   NewEconomyHandler(economy, activity, authz, 10, log),
		Shop:      NewShopHandler(economy, log),
		Admin:     NewAdminHandler(services.NewAdminService(economy, nil, log), authz, log),
		Payments:  NewPaymentRequestHandler(services.NewPaymentRequestService(nil, economy, time.Minute, log), log),
		JWTSecret: testSecret,
		Health:    health,
		Log:       log,
	})
	return &testServer{router: router, economy: economy}
}

func (s *testServer) do(t *testing.T, actorID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		token, err := middleware.GenerateToken(testSecret, actorID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")

	down := newTestServer(t, func(context.Context) error { return errors.New("connection refused") })
	rr = down.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "unhealthy")
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(t, "", http.MethodGet, "/api/v1/accounts/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetAccountMe(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.economy.Earn(context.Background(), "42", 150, "seed")
	require.NoError(t, err)

	rr := s.do(t, "42", http.MethodGet, "/api/v1/accounts/me", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var acc models.Account
	decodeData(t, rr, &acc)
	assert.Equal(t, "42", acc.ID)
	assert.Equal(t, int64(150), acc.Balance)
	assert.Equal(t, 1, acc.Level)

	// other accounts are readable by id, unknown ones read as empty
	rr = s.do(t, "7", http.MethodGet, "/api/v1/accounts/42", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, "7", http.MethodGet, "/api/v1/accounts/nobody", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeData(t, rr, &acc)
	assert.Zero(t, acc.Balance)
}

func TestTransferStatuses(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.economy.Earn(context.Background(), "1", 100, "seed")
	require.NoError(t, err)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"ok", TransferRequest{ToAccountID: "2", Amount: 40}, http.StatusOK},
		{"insufficient funds", TransferRequest{ToAccountID: "2", Amount: 1000}, http.StatusUnprocessableEntity},
		{"self transfer", TransferRequest{ToAccountID: "1", Amount: 10}, http.StatusUnprocessableEntity},
		{"missing amount", map[string]any{"to_account_id": "2"}, http.StatusBadRequest},
		{"amount above cap", TransferRequest{ToAccountID: "2", Amount: 1_000_000_000_001}, http.StatusBadRequest},
		{"unknown field", map[string]any{"to_account_id": "2", "amount": 5, "memo": "x"}, http.StatusBadRequest},
		{"malformed", `{"to_account_id":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, "1", http.MethodPost, "/api/v1/economy/transfer", tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}

	acc, err := s.economy.Account(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, int64(40), acc.Balance)
}

func TestValidationDetails(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(t, "1", http.MethodPost, "/api/v1/economy/gamble", map[string]any{"amount": -5})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp services.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Details, "amount")
}

func TestClaimRewardStatuses(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.economy.Earn(context.Background(), "1", 150, "seed")
	require.NoError(t, err)

	rr := s.do(t, "1", http.MethodPost, "/api/v1/economy/rewards/claim", ClaimRewardRequest{Level: 1})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, "1", http.MethodPost, "/api/v1/economy/rewards/claim", ClaimRewardRequest{Level: 1})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, "1", http.MethodPost, "/api/v1/economy/rewards/claim", ClaimRewardRequest{Level: 5})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, "1", http.MethodPost, "/api/v1/economy/rewards/claim", ClaimRewardRequest{Level: 601})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, "1", http.MethodGet, "/api/v1/accounts/me/rewards", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status services.RewardStatus
	decodeData(t, rr, &status)
	assert.Equal(t, []int{1}, status.Claimed)
	assert.Empty(t, status.Pending)
}

func TestDailyCooldown(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, "1", http.MethodPost, "/api/v1/economy/daily", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, "1", http.MethodPost, "/api/v1/economy/daily", nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, int((24 * time.Hour).Seconds()))

	rr = s.do(t, "1", http.MethodGet, "/api/v1/accounts/me/cooldowns", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var active map[string]int64
	decodeData(t, rr, &active)
	assert.Contains(t, active, services.ActionDaily)
}

func TestWorkStatuses(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, "1", http.MethodPost, "/api/v1/economy/work", WorkRequest{JobID: "astronaut"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, "1", http.MethodPost, "/api/v1/economy/work", WorkRequest{JobID: "moderator"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestShop(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.economy.Earn(context.Background(), "1", 100, "seed")
	require.NoError(t, err)

	rr := s.do(t, "1", http.MethodGet, "/api/v1/shop?type=consumable", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var items []models.ShopItem
	decodeData(t, rr, &items)
	require.NotEmpty(t, items)
	for _, item := range items {
		assert.Equal(t, models.ItemConsumable, item.Type)
	}

	rr = s.do(t, "1", http.MethodGet, "/api/v1/shop?type=weapon", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, "1", http.MethodGet, "/api/v1/shop/items/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, "1", http.MethodPost, "/api/v1/shop/buy", BuyRequest{ItemID: "coffee"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, "1", http.MethodPost, "/api/v1/shop/buy", BuyRequest{ItemID: "coffee", Quantity: 10})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, "1", http.MethodGet, "/api/v1/accounts/me/inventory", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var inv []services.InventoryEntry
	decodeData(t, rr, &inv)
	require.Len(t, inv, 1)
	assert.Equal(t, "coffee", inv[0].ItemID)
	assert.Equal(t, int64(1), inv[0].Quantity)
}

func TestEarnRequiresCapability(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, "1", http.MethodPost, "/api/v1/economy/earn", EarnRequest{AccountID: "1", Amount: 500})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/economy/earn", EarnRequest{AccountID: "1", Amount: math.MaxInt64})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/economy/earn", EarnRequest{AccountID: "1", Amount: 500, Reason: "message"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result services.Result
	decodeData(t, rr, &result)
	assert.Equal(t, int64(500), result.Account.Balance)
	assert.Equal(t, 1, result.Account.Level)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, "1", http.MethodPost, "/api/v1/admin/accounts/1/credit", AmountRequest{Amount: 100})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/admin/accounts/1/credit", AmountRequest{Amount: 100})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/admin/accounts/1/credit", AmountRequest{Amount: math.MaxInt64})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/admin/accounts/1/debit", AmountRequest{Amount: 500})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/admin/accounts/1/items", GrantItemRequest{ItemID: "pizza", Quantity: 2})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, adminID, http.MethodDelete, "/api/v1/admin/accounts/1/items/coffee", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/admin/accounts/1/level", SetLevelRequest{Level: 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/admin/accounts/1/level", SetLevelRequest{Level: 2})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, adminID, http.MethodGet, "/api/v1/admin/accounts/1/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats services.AccountStats
	decodeData(t, rr, &stats)
	assert.Equal(t, 3, stats.Account.Level)
	assert.Equal(t, int64(2), stats.ItemCount)

	rr = s.do(t, adminID, http.MethodPost, "/api/v1/admin/accounts/1/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	acc, err := s.economy.Account(context.Background(), "1")
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)

	rr = s.do(t, adminID, http.MethodGet, "/api/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var eco models.EconomyStats
	decodeData(t, rr, &eco)
	assert.Equal(t, int64(1), eco.Accounts)
	assert.Zero(t, eco.ItemsInCirculation)
}

func TestPaymentRequestsWithoutRedis(t *testing.T) {
	s := newTestServer(t, nil)
	rr := s.do(t, "1", http.MethodPost, "/api/v1/payment-requests", CreatePaymentRequest{Amount: 10})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestLeaderboard(t *testing.T) {
	s := newTestServer(t, nil)
	for id, amount := range map[string]int64{"a": 300, "b": 100, "c": 200} {
		_, err := s.economy.Earn(context.Background(), id, amount, "seed")
		require.NoError(t, err)
	}

	rr := s.do(t, "a", http.MethodGet, "/api/v1/leaderboard?by=balance&limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var board []models.LeaderboardEntry
	decodeData(t, rr, &board)
	require.Len(t, board, 2)
	assert.Equal(t, "a", board[0].AccountID)
	assert.Equal(t, "c", board[1].AccountID)

	rr = s.do(t, "a", http.MethodGet, "/api/v1/leaderboard?by=karma", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, "a", http.MethodGet, "/api/v1/leaderboard?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteErrorHidesStorageFailures(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, zap.NewNop(), errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "pq:")
}
