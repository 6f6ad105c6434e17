package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trustgate/internal/audit"
	"trustgate/internal/auth"
	"trustgate/internal/billing"
	httpapi "trustgate/internal/http"
	"trustgate/internal/platform/config"
	"trustgate/internal/platform/httpserver"
	"trustgate/internal/platform/logger"
	"trustgate/internal/platform/postgres"
	platformredis "trustgate/internal/platform/redis"
	"trustgate/internal/provider"
	"trustgate/internal/scoring"
	vconfig "trustgate/internal/verification/config"
	vhandler "trustgate/internal/verification/handler"
	vmetrics "trustgate/internal/verification/metrics"
	"trustgate/internal/verification/notify"
	"trustgate/internal/verification/ports"
	"trustgate/internal/verification/service"
	"trustgate/internal/verification/store/balance"
	"trustgate/internal/verification/store/cache"
	"trustgate/internal/verification/store/quota"
)

// main wires dependencies and keeps the server lifecycle small. Empty
// DATABASE_URL / REDIS_URL select the in-memory single-node mode; business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	vcfg := vconfig.DefaultConfig()

	var (
		cacheStore   ports.CacheStore
		balanceStore ports.BalanceStore
		accountStore auth.AccountStore
	)
	if pool != nil {
		pgCache := cache.NewPostgres(pool, vcfg)
		pgBalance := balance.NewPostgres(pool)
		pgAccounts := auth.NewPostgresAccountStore(pool)
		for _, ensure := range []func(context.Context) error{
			pgCache.EnsureSchema, pgBalance.EnsureSchema, pgAccounts.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				log.Error("schema setup failed", "error", err)
				os.Exit(1)
			}
		}
		cacheStore, balanceStore, accountStore = pgCache, pgBalance, pgAccounts
	} else {
		cacheStore = cache.New(vcfg)
		balanceStore = balance.New()
		accountStore = auth.NewInMemoryAccountStore()
	}
	balances := balance.NewAccessor(balanceStore)

	var ledger ports.QuotaLedger
	var notifier interface {
		ports.ResultNotifier
		notify.Subscriber
	}
	if redisClient != nil {
		ledger = quota.NewRedis(redisClient.Client, vcfg)
		notifier = notify.NewRedis(redisClient.Client)
	} else {
		ledger = quota.New(vcfg)
		notifier = notify.NewMemory()
	}

	var auditStore audit.Store = audit.NewInMemoryStore()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaStore, err := audit.NewKafkaStore(cfg.KafkaBrokers, "trustgate.audit", log)
		if err != nil {
			log.Error("kafka connect failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = kafkaStore.Close(flushCtx)
		}()
		auditStore = kafkaStore
	}
	auditPublisher := audit.NewPublisher(auditStore)

	profiles := provider.NewClient(cfg.ProviderBaseURL, vcfg.ProviderTimeout, provider.WithLogger(log))

	verifySvc, err := service.New(cacheStore, ledger, balances, profiles, scoring.Score,
		service.WithConfig(vcfg),
		service.WithLogger(log),
		service.WithNotifier(notifier),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(vmetrics.New()),
	)
	if err != nil {
		log.Error("verification service init failed", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenService(cfg.JWTSigningKey, 24*time.Hour)
	authSvc, err := auth.New(accountStore, balances, tokens, auth.WithLogger(log))
	if err != nil {
		log.Error("auth service init failed", "error", err)
		os.Exit(1)
	}
	billingSvc, err := billing.New(balances, cfg.WebhookSecret, billing.WithLogger(log))
	if err != nil {
		log.Error("billing service init failed", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(
		vhandler.New(verifySvc, log, vhandler.WithSubscriber(notifier)),
		auth.NewHandler(authSvc, log),
		billing.NewHandler(billingSvc, log),
		tokens,
	)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting trustgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
