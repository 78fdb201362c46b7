package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"breederhub/internal/auth"
	"breederhub/internal/autoreply"
	"breederhub/internal/config"
	"breederhub/internal/domain"
	"breederhub/internal/events"
	"breederhub/internal/httpserver"
	"breederhub/internal/identity"
	"breederhub/internal/logger"
	"breederhub/internal/service"
	"breederhub/internal/sla"
	"breederhub/internal/store/postgres"
	"breederhub/internal/store/sqlite"
	"breederhub/internal/ws"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	db, repos, err := openStore(cfg)
	if err != nil {
		zl.Fatal("open store", zap.Error(err))
	}
	defer db.Close()

	tokenSvc := auth.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)

	// Organization-party resolution, optionally accelerated by Redis.
	resolver := identity.NewResolver(repos.Parties)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zl.Fatal("parse redis url", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		resolver = identity.NewCachedResolver(resolver, rdb, cfg.OrgCacheTTL, zl)
		zl.Info("org-party cache enabled", zap.Duration("ttl", cfg.OrgCacheTTL))
	}

	// Event publishing and auto-reply evaluation ride the same broker. With
	// no broker configured both become no-ops.
	var bus events.Publisher = events.Noop{}
	var autoReply autoreply.Evaluator = autoreply.Noop{}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQP(cfg.AMQPURL, cfg.AMQPExchange, zl)
		if err != nil {
			zl.Fatal("connect to broker", zap.Error(err))
		}
		bus = pub
		autoReply = autoreply.NewEventEvaluator(pub)
		zl.Info("event publishing enabled", zap.String("exchange", cfg.AMQPExchange))
	}
	defer bus.Close()

	// Live-update registries: staff keyed by party ID, portal contacts by
	// identity key.
	staffHub := ws.NewHub[int64]()
	portalHub := ws.NewHub[string]()

	tracker := sla.NewTracker(repos.SLAStats, sla.Thresholds{
		MinSamples:    cfg.BadgeMinSamples,
		MaxAvgSeconds: cfg.BadgeMaxAvgSeconds,
	}, zl)
	notifier := service.NewNotifier(staffHub, portalHub, repos.PortalAccounts, repos.AuditLog, zl)

	threadSvc := service.NewThreadService(repos.Threads, repos.Participants, zl)
	msgSvc := service.NewMessageService(
		repos.Threads,
		repos.Participants,
		repos.Messages,
		repos.SLAStats,
		repos.AuditLog,
		resolver,
		tracker,
		notifier,
		autoReply,
		bus,
		zl,
	)
	slaSvc := service.NewSLAService(repos.SLAStats, zl)

	// The auto-reply worker answers over the same exchange; its composed
	// replies come back as system messages.
	if cfg.AMQPURL != "" {
		consumer, err := events.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, msgSvc, zl)
		if err != nil {
			zl.Fatal("connect auto-reply consumer", zap.Error(err))
		}
		if err := consumer.Start(cfg.AMQPQueue); err != nil {
			zl.Fatal("start auto-reply consumer", zap.Error(err))
		}
		defer consumer.Close()
	}

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Threads:   threadSvc,
		Messages:  msgSvc,
		SLA:       slaSvc,
		Audit:     repos.AuditLog,
		Tokens:    tokenSvc,
		StaffHub:  staffHub,
		PortalHub: portalHub,
		Log:       zl,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("starting server", zap.String("addr", cfg.HTTPAddr()), zap.String("driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zl.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (*sql.DB, domain.Repositories, error) {
	if cfg.DBDriver == "postgres" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, domain.Repositories{}, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, domain.Repositories{}, err
		}
		return db, domain.Repositories{
			Threads:        postgres.NewThreadRepo(db),
			Participants:   postgres.NewParticipantRepo(db),
			Messages:       postgres.NewMessageRepo(db),
			Parties:        postgres.NewPartyRepo(db),
			SLAStats:       postgres.NewSLAStatsRepo(db),
			PortalAccounts: postgres.NewPortalAccountRepo(db),
			AuditLog:       postgres.NewAuditLogRepo(db),
		}, nil
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, domain.Repositories{}, err
	}
	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		return nil, domain.Repositories{}, err
	}
	return db, domain.Repositories{
		Threads:        sqlite.NewThreadRepo(db),
		Participants:   sqlite.NewParticipantRepo(db),
		Messages:       sqlite.NewMessageRepo(db),
		Parties:        sqlite.NewPartyRepo(db),
		SLAStats:       sqlite.NewSLAStatsRepo(db),
		PortalAccounts: sqlite.NewPortalAccountRepo(db),
		AuditLog:       sqlite.NewAuditLogRepo(db),
	}, nil
}
