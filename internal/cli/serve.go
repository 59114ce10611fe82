package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guildledger/backend/internal/audit"
	"github.com/guildledger/backend/internal/database"
	"github.com/guildledger/backend/internal/handlers"
	"github.com/guildledger/backend/internal/services"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("skip-migrations", false, "Do not apply pending migrations on startup")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	skipMigrations, _ := cmd.Flags().GetBool("skip-migrations")

	if cfg.JWT.SecretKey == "" {
		return errors.New("jwt.secret_key (JWT_SECRET_KEY) must be set")
	}

	db, dialect, err := database.InitDB(cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if !skipMigrations {
		if err := database.Migrate(db, dialect, log); err != nil {
			return err
		}
	}

	redisClient := database.InitRedis(cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	catalog, err := services.DefaultCatalog()
	if err != nil {
		return err
	}
	rewards := services.NewRewardTable()
	auditLog := audit.NewLogger(log)

	ledger := services.NewLedgerService(db, dialect, rewards.LevelFor, log)
	economy := services.NewEconomyService(ledger, rewards, catalog, auditLog, log)
	cooldowns := services.NewCooldownStore(redisClient, db, dialect)
	activity := services.NewActivityService(economy, cooldowns, nil, activityConfig(), log)
	payments := services.NewPaymentRequestService(redisClient, economy, cfg.Economy.PaymentRequestTTL, log)
	admin := services.NewAdminService(economy, auditLog, log)
	authz := services.NewAllowlistAuthorizer(cfg.Admin.UserIDs)

	if len(cfg.Admin.UserIDs) == 0 {
		log.Warn("no admin user ids configured, admin routes will reject every caller")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Economy:   handlers.NewEconomyHandler(economy, activity, authz, cfg.Economy.LeaderboardSize, log),
		Shop:      handlers.NewShopHandler(economy, log),
		Admin:     handlers.NewAdminHandler(admin, authz, log),
		Payments:  handlers.NewPaymentRequestHandler(payments, log),
		JWTSecret: cfg.JWT.SecretKey,
		Health:    db.PingContext,
		Log:       log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	log.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	log.Info("Server stopped")
	return nil
}

// activityConfig overlays the configured economy rules on the built-in defaults.
func activityConfig() services.ActivityConfig {
	ac := services.DefaultActivityConfig()
	if cfg.Economy.DailyBase > 0 {
		ac.DailyBase = cfg.Economy.DailyBase
	}
	if cfg.Economy.DailyLevelBonus > 0 {
		ac.DailyLevelBonus = cfg.Economy.DailyLevelBonus
	}
	if cfg.Economy.DailyCooldown > 0 {
		ac.DailyCooldown = cfg.Economy.DailyCooldown
	}
	if cfg.Economy.CrimeCooldown > 0 {
		ac.CrimeCooldown = cfg.Economy.CrimeCooldown
	}
	if cfg.Economy.WorkLevelBonus > 0 {
		ac.WorkLevelBonus = cfg.Economy.WorkLevelBonus
	}
	return ac
}
