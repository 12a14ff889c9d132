package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raspaplay/wallet-api/internal/config"
	"github.com/raspaplay/wallet-api/internal/gateway"
	"github.com/raspaplay/wallet-api/internal/handler"
	"github.com/raspaplay/wallet-api/internal/logging"
	"github.com/raspaplay/wallet-api/internal/middleware"
	"github.com/raspaplay/wallet-api/internal/repository"
	"github.com/raspaplay/wallet-api/internal/service/account"
	"github.com/raspaplay/wallet-api/internal/service/affiliate"
	"github.com/raspaplay/wallet-api/internal/service/commission"
	"github.com/raspaplay/wallet-api/internal/service/deposit"
	"github.com/raspaplay/wallet-api/internal/service/postback"
	"github.com/raspaplay/wallet-api/internal/service/rollover"
	"github.com/raspaplay/wallet-api/internal/service/withdrawal"
	"github.com/raspaplay/wallet-api/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("wallet-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Repositories.
	accounts := repository.NewAccountRepository(db)
	ledger := repository.NewLedgerRepository(db)
	deposits := repository.NewDepositRepository(db)
	withdrawals := repository.NewWithdrawalRepository(db)
	commissions := repository.NewCommissionRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	webhookEvents := repository.NewWebhookEventRepository(db)
	postbacks := repository.NewPostbackRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)
	audit := repository.NewAuditRepository(db)

	settingsProvider := settings.NewCachedProvider(settingsRepo, time.Duration(cfg.SettingsTTLSeconds)*time.Second)
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayCallback, cfg.PublicIPLookupURL, settingsProvider)

	// Services.
	jwtExpiry := time.Duration(cfg.JWTExpiryH) * time.Hour
	accountSvc := account.NewService(accounts, ledger, db, cfg.JWTSecret, jwtExpiry)
	depositSvc := deposit.NewService(deposits, accounts, ledger, audit, gatewayClient, settingsProvider, db)
	withdrawalSvc := withdrawal.NewService(withdrawals, accounts, ledger, audit, gatewayClient, settingsProvider, db)
	commissionEngine := commission.NewEngine(accounts, commissions, settingsProvider, db)
	rolloverSvc := rollover.NewService(accounts, ledger, settingsProvider, db)
	reporter := affiliate.NewReporter(accounts, deposits, commissions)
	dispatcher := postback.NewDispatcher(postbacks, deposits, settingsProvider,
		time.Duration(cfg.PostbackIntervalS)*time.Second, cfg.PostbackBatchSize)

	// Handlers.
	authHandler := handler.NewAuthHandler(accountSvc)
	accountHandler := handler.NewAccountHandler(accountSvc, reporter)
	depositHandler := handler.NewDepositHandler(depositSvc)
	withdrawalHandler := handler.NewWithdrawalHandler(withdrawalSvc)
	webhookHandler := handler.NewWebhookHandler(
		depositSvc, commissionEngine, dispatcher, withdrawalSvc,
		webhookEvents, audit, settingsProvider,
	)
	adminHandler := handler.NewAdminHandler(withdrawalSvc, rolloverSvc, reporter, settingsRepo, settingsProvider)
	healthHandler := handler.NewHealthHandler(db)

	authed := middleware.Auth(cfg.JWTSecret)
	idem := middleware.Idempotency(idempotency)
	admin := func(h http.Handler) http.Handler { return authed(middleware.RequireAdmin(h)) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("GET /api/v1/accounts/me", authed(http.HandlerFunc(accountHandler.Me)))
	mux.Handle("GET /api/v1/accounts/me/ledger", authed(http.HandlerFunc(accountHandler.Ledger)))
	mux.Handle("GET /api/v1/accounts/me/affiliate", authed(http.HandlerFunc(accountHandler.AffiliateReport)))
	mux.Handle("POST /api/v1/accounts/me/commissions/claim", authed(idem(http.HandlerFunc(accountHandler.ClaimCommission))))

	mux.Handle("POST /api/v1/deposits", authed(idem(http.HandlerFunc(depositHandler.Create))))
	mux.Handle("POST /api/v1/withdrawals", authed(idem(http.HandlerFunc(withdrawalHandler.Create))))
	mux.Handle("GET /api/v1/withdrawals", authed(http.HandlerFunc(withdrawalHandler.List)))
	mux.Handle("POST /api/v1/withdrawals/{id}/cancel", authed(http.HandlerFunc(withdrawalHandler.Cancel)))

	mux.HandleFunc("POST /api/v1/webhooks/deposit", webhookHandler.ReceiveDeposit)
	mux.HandleFunc("POST /api/v1/webhooks/payout", webhookHandler.ReceivePayout)

	mux.Handle("POST /api/v1/admin/withdrawals/{id}/approve", admin(http.HandlerFunc(adminHandler.ApproveWithdrawal)))
	mux.Handle("POST /api/v1/admin/withdrawals/{id}/reject", admin(http.HandlerFunc(adminHandler.RejectWithdrawal)))
	mux.Handle("POST /api/v1/admin/rollover/recompute", admin(http.HandlerFunc(adminHandler.RecomputeRollover)))
	mux.Handle("GET /api/v1/admin/affiliates/{id}/report", admin(http.HandlerFunc(adminHandler.AffiliateReport)))
	mux.Handle("GET /api/v1/admin/settings", admin(http.HandlerFunc(adminHandler.GetSettings)))
	mux.Handle("PUT /api/v1/admin/settings", admin(http.HandlerFunc(adminHandler.UpdateSettings)))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	go dispatcher.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
