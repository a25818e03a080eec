package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	_ "github.com/jackc/pgx/v5/stdlib"

	"leadcall-platform/internal/audit"
	"leadcall-platform/internal/auth"
	"leadcall-platform/internal/callog"
	"leadcall-platform/internal/config"
	"leadcall-platform/internal/crm"
	"leadcall-platform/internal/dialer"
	"leadcall-platform/internal/httpapi"
	"leadcall-platform/internal/idempotency"
	"leadcall-platform/internal/ivr"
	"leadcall-platform/internal/leads"
	"leadcall-platform/internal/reporting"
	"leadcall-platform/internal/telephony"
	"leadcall-platform/pkg/logger"
	"leadcall-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// Call journal: Postgres when configured, in-memory otherwise.
	var journal callog.Repository = callog.NewMemoryRepo()
	if cfg.DB.Enabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		pgRepo := callog.NewPostgresRepo(db)
		if err := pgRepo.EnsureSchema(rootCtx); err != nil {
			log.Error("call journal schema failed", "err", err)
			os.Exit(1)
		}
		journal = pgRepo
	} else {
		log.Warn("no database configured, call journal is in-memory")
	}

	// Idempotency guard: Redis survives restarts, memory does not.
	var rdb *redis.Client
	var guard idempotency.Guard
	if cfg.Redis.Enabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		guard = idempotency.NewRedisGuard(rdb, cfg.Idempotency.TTL)
	} else {
		memGuard := idempotency.NewMemoryGuard(cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries, cfg.Idempotency.SweepInterval, log)
		defer memGuard.Stop()
		guard = memGuard
		log.Warn("no redis configured, idempotency guard is in-memory")
	}

	// CRM client with single-flight token refresh.
	exchanger := crm.NewOAuthExchanger(cfg.CRM, nil)
	tokens := crm.NewTokenManager(exchanger, cfg.CRM.TokenBuffer, log)
	crmClient := crm.NewClient(cfg.CRM, tokens, nil, log)

	protector := leads.NewFieldProtector()
	detector := leads.NewDetector(crmClient, log)
	pipeline := leads.NewPipeline(detector, crmClient, protector, log)

	provider := buildProvider(cfg.Telephony, log)
	scheduler := dialer.NewScheduler(provider, journal, rdb, cfg.Dialer, cfg.Telephony, log)

	auditSvc := audit.NewService(audit.NewMemoryRepo())
	reports := reporting.NewService(journal)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:      authManager,
		Pipeline:  pipeline,
		Guard:     guard,
		Scheduler: scheduler,
		Tokens:    tokens,
		CRM:       crmClient,
		Protector: protector,
		IVR:       ivr.NewEngine(),
		Reports:   reports,
		Audit:     auditSvc,
		Telephony: cfg.Telephony,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", cfg.Telephony.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Stop accepting requests first, then stop the dialer so no webhook
	// or API call can arm a timer afterwards.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	scheduler.Shutdown()
}

func buildProvider(cfg config.TelephonyConfig, log *slog.Logger) telephony.CallProvider {
	switch cfg.Provider {
	case "twilio":
		return telephony.NewTwilioProvider(cfg.Twilio, nil)
	case "exotel":
		return telephony.NewExotelProvider(cfg.Exotel.AccountSID, cfg.Exotel.APIKey,
			cfg.Exotel.APIToken, cfg.Exotel.CallerID, cfg.Exotel.Subdomain, nil)
	default:
		log.Warn("no call provider configured, outbound dialing disabled")
		return nil
	}
}
