package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/guildledger/backend/docs"
	mW "github.com/guildledger/backend/internal/middleware"
)

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Economy   *EconomyHandler
	Shop      *ShopHandler
	Admin     *AdminHandler
	Payments  *PaymentRequestHandler
	JWTSecret string
	// Health reports storage reachability; nil means always healthy.
	Health func(ctx context.Context) error
	Log    *zap.Logger
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mW.RequestLogger(cfg.Log))
	r.Use(chimw.Recoverer)
	r.Use(mW.SecurityHeaders)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				cfg.Log.Warn("health check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.Auth(cfg.JWTSecret))

		r.Get("/accounts/me/cooldowns", cfg.Economy.Cooldowns)
		r.Get("/accounts/{accountId}", cfg.Economy.GetAccount)
		r.Get("/accounts/{accountId}/progress", cfg.Economy.Progress)
		r.Get("/accounts/{accountId}/transactions", cfg.Economy.Transactions)
		r.Get("/accounts/{accountId}/inventory", cfg.Economy.Inventory)
		r.Get("/accounts/{accountId}/rewards", cfg.Economy.Rewards)

		r.Post("/economy/earn", cfg.Economy.Earn)
		r.Post("/economy/daily", cfg.Economy.Daily)
		r.Post("/economy/work", cfg.Economy.Work)
		r.Post("/economy/crime", cfg.Economy.Crime)
		r.Post("/economy/gamble", cfg.Economy.Gamble)
		r.Post("/economy/transfer", cfg.Economy.Transfer)
		r.Post("/economy/rewards/claim", cfg.Economy.ClaimReward)
		r.Post("/economy/rewards/claim-all", cfg.Economy.ClaimAllRewards)
		r.Post("/inventory/use", cfg.Economy.UseItem)
		r.Get("/leaderboard", cfg.Economy.Leaderboard)

		r.Get("/shop", cfg.Shop.ListItems)
		r.Get("/shop/items/{itemId}", cfg.Shop.GetItem)
		r.Post("/shop/buy", cfg.Shop.Buy)
		r.Get("/jobs", cfg.Shop.ListJobs)
		r.Get("/rewards/milestones", cfg.Shop.Milestones)

		r.Post("/payment-requests", cfg.Payments.Create)
		r.Post("/payment-requests/pay", cfg.Payments.Pay)
		r.Get("/payment-requests/{code}", cfg.Payments.Get)
		r.Delete("/payment-requests/{code}", cfg.Payments.Cancel)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/stats", cfg.Admin.EconomyStats)
			r.Get("/accounts/{accountId}/stats", cfg.Admin.AccountStats)
			r.Post("/accounts/{accountId}/credit", cfg.Admin.Credit)
			r.Post("/accounts/{accountId}/debit", cfg.Admin.Debit)
			r.Post("/accounts/{accountId}/items", cfg.Admin.GrantItem)
			r.Delete("/accounts/{accountId}/items/{itemId}", cfg.Admin.RemoveItem)
			r.Delete("/accounts/{accountId}/inventory", cfg.Admin.ClearInventory)
			r.Post("/accounts/{accountId}/level", cfg.Admin.SetLevel)
			r.Post("/accounts/{accountId}/reset", cfg.Admin.Reset)
		})
	})

	return r
}
