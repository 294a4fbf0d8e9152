package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/paire/chat-billing/internal/api/http"
	appaudit "github.com/paire/chat-billing/internal/application/audit"
	appchat "github.com/paire/chat-billing/internal/application/chat"
	appledger "github.com/paire/chat-billing/internal/application/ledger"
	"github.com/paire/chat-billing/internal/config"
	"github.com/paire/chat-billing/internal/domain/audit"
	"github.com/paire/chat-billing/internal/domain/billing"
	"github.com/paire/chat-billing/internal/domain/session"
	"github.com/paire/chat-billing/internal/domain/wallet"
	"github.com/paire/chat-billing/internal/infrastructure/events"
	"github.com/paire/chat-billing/internal/infrastructure/keystore"
	"github.com/paire/chat-billing/internal/infrastructure/memory"
	"github.com/paire/chat-billing/internal/infrastructure/postgres"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx := context.Background()

	var (
		ledgerStore wallet.Ledger
		sessionRepo session.Repository
		profiles    billing.ProfileStore
		auditRepo   audit.Repository
	)
	if cfg.UseMemoryStore {
		store := memory.NewStore()
		ledgerStore = store
		sessionRepo = store
		profiles = store
		logger.Warn().Msg("running on the in-memory store; state is not durable")
	} else {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db error")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
			logger.Fatal().Err(err).Msg("migration error")
		}

		ledgerStore = postgres.NewLedgerRepository(pool)
		sessionRepo = postgres.NewSessionRepository(pool)
		profiles = postgres.NewProfileRepository(pool)
		auditRepo = postgres.NewAuditRepository(pool)
	}

	hub := events.NewHub()

	var auditSvc *appaudit.Service
	if auditRepo != nil {
		auditSvc = appaudit.NewService(auditRepo, auditSigningKey(cfg, logger), logger)
	}

	ledgerSvc := appledger.NewService(ledgerStore, hub, auditSvc, cfg.Pricing, logger)
	chatSvc := appchat.NewService(
		sessionRepo,
		ledgerSvc,
		profiles,
		appchat.AllowAllModeration{},
		appchat.NoTopUp{},
		hub,
		logger,
	)

	apiServer := httpapi.NewServer(chatSvc, ledgerSvc, hub, cfg.APIKeyHash, logger)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// idle session sweeper
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			closed, err := chatSvc.SweepIdle(context.Background(), cfg.IdleSessionTTL, cfg.SweepBatchSize)
			if err != nil {
				logger.Error().Err(err).Msg("idle sweep failed")
				continue
			}
			if closed > 0 {
				logger.Info().Int("closed", closed).Msg("idle sessions swept")
			}
		}
	}()

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

// auditSigningKey resolves the signing key for new audit entries. A rotating
// keystore (AUDIT_SIGNING_KEYS) wins over the single-key AUDIT_SIGNING_KEY.
func auditSigningKey(cfg *config.Config, logger zerolog.Logger) []byte {
	store, err := keystore.NewFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("keystore error")
	}
	if !store.Empty() {
		keyID, key, err := store.ActiveKey()
		if err != nil {
			logger.Fatal().Err(err).Msg("keystore error")
		}
		logger.Info().Str("keyId", keyID).Msg("audit signing key loaded")
		return key
	}
	return loadHexKey(cfg.AuditSigningKey)
}

func loadHexKey(hexStr string) []byte {
	if hexStr == "" {
		return nil
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil
	}
	return b
}
