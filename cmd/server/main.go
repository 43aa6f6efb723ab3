package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"smartbank/internal/config"
	"smartbank/internal/db"
	"smartbank/internal/handlers"
	"smartbank/internal/logger"
	"smartbank/internal/money"
	"smartbank/internal/services"
	"smartbank/internal/store"
	"smartbank/internal/websocket"
)

func main() {
	cfg := config.Load()
	logg, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logg.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	dailyLimit, err := money.Parse(cfg.DefaultDailyLimit)
	if err != nil {
		logg.Fatal("invalid DEFAULT_DAILY_LIMIT", zap.String("value", cfg.DefaultDailyLimit), zap.Error(err))
	}
	mockMax, err := money.Parse(cfg.MockDepositMax)
	if err != nil {
		logg.Fatal("invalid MOCK_DEPOSIT_MAX", zap.String("value", cfg.MockDepositMax), zap.Error(err))
	}
	numbers, err := services.NewSnowflakeNumbers(cfg.NodeID)
	if err != nil {
		logg.Fatal("invalid NODE_ID", zap.Int64("node_id", cfg.NodeID), zap.Error(err))
	}

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	transactions := store.NewTransactionStore(database)
	ledgerStore := store.NewLedgerStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database, logg)
	hub := websocket.NewHub()
	policy := services.NewPolicy(cfg.Location())

	ledger := services.NewLedgerService(txRunner, accounts, transactions, audit, hub, numbers, policy, logg, services.LedgerOptions{
		DefaultDailyLimit: dailyLimit,
		MockDepositMax:    mockMax,
	})
	composer := services.NewComposer(accounts, transactions, ledgerStore, users)
	kyc := services.NewKycService(txRunner, users, audit, logg)

	handler := handlers.New(txRunner, cfg, logg, handlers.Stores{
		Users:        users,
		Accounts:     accounts,
		Transactions: transactions,
		Ledger:       ledgerStore,
		Admin:        admin,
		Audit:        audit,
	}, handlers.Services{
		Ledger:   ledger,
		Composer: composer,
		Kyc:      kyc,
		Policy:   policy,
	}, websocket.NewServer(hub, cfg.Origins(), logg))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler.Routes(), "smartbank"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info("smartbank API listening",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.AppEnv),
			zap.Bool("require_kyc", cfg.RequireKYC),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server error", zap.Error(err))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(ctx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}
