package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markethub/walletd/internal/audit"
	"github.com/markethub/walletd/internal/config"
	"github.com/markethub/walletd/internal/database"
	"github.com/markethub/walletd/internal/events"
	"github.com/markethub/walletd/internal/handlers"
	"github.com/markethub/walletd/internal/logger"
	mW "github.com/markethub/walletd/internal/middleware"
	"github.com/markethub/walletd/internal/services"
)

func main() {
	config.Init()
	log := logger.New()

	ledgerCfg := config.LoadLedgerConfig()
	serverCfg := config.LoadServerConfig()

	db := database.InitDatabase()
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if redisClient != nil {
		publisher = events.NewRedisPublisher(redisClient, log)
	}

	auditLog := audit.NewLogger(log)
	txlog := services.NewTransactionLog(db, log)
	engine := services.NewBalanceEngine(db, txlog, ledgerCfg, log)
	coordinator := services.NewTransferCoordinator(engine, publisher, auditLog, ledgerCfg, log)
	ledger := services.NewLedgerService(engine, txlog, coordinator, publisher, auditLog, ledgerCfg, log)
	walletHandler := handlers.NewWalletHandler(ledger)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Post("/wallet/deposit", walletHandler.Deposit)
			r.Post("/wallet/withdraw", walletHandler.Withdraw)
			r.Post("/wallet/transfer", walletHandler.Transfer)
			r.Post("/wallet/reverse", walletHandler.Reverse)
			r.Get("/wallet/transactions", walletHandler.History)
			r.Get("/wallet/stats", walletHandler.Stats)
		})
	})

	server := &http.Server{
		Addr:         ":" + serverCfg.Port,
		Handler:      r,
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		IdleTimeout:  serverCfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("port", serverCfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
