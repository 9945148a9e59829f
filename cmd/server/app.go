package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"transferai/internal/agreement/fetcher"
	agreementhandler "transferai/internal/agreement/handler"
	agreementmetrics "transferai/internal/agreement/metrics"
	"transferai/internal/agreement/pages"
	"transferai/internal/agreement/pdf"
	"transferai/internal/agreement/ports"
	"transferai/internal/agreement/resolver"
	agreementservice "transferai/internal/agreement/service"
	"transferai/internal/assist"
	"transferai/internal/chat"
	contentmetrics "transferai/internal/content/metrics"
	"transferai/internal/content/store/cached"
	contentmemory "transferai/internal/content/store/memory"
	contentpostgres "transferai/internal/content/store/postgres"
	coursemaphandler "transferai/internal/coursemap/handler"
	coursemapports "transferai/internal/coursemap/ports"
	coursemapservice "transferai/internal/coursemap/service"
	coursemapmemory "transferai/internal/coursemap/store/memory"
	coursemappostgres "transferai/internal/coursemap/store/postgres"
	"transferai/internal/identity"
	"transferai/internal/platform/config"
	"transferai/internal/platform/migrate"
	"transferai/internal/platform/postgres"
	redisclient "transferai/internal/platform/redis"
	httptransport "transferai/internal/transport/http"
	usagehandler "transferai/internal/usage/handler"
	usagemetrics "transferai/internal/usage/metrics"
	usagemodels "transferai/internal/usage/models"
	usageports "transferai/internal/usage/ports"
	usageservice "transferai/internal/usage/service"
	usagememory "transferai/internal/usage/store/memory"
	usagepostgres "transferai/internal/usage/store/postgres"
	usageredis "transferai/internal/usage/store/redis"
	"transferai/pkg/platform/audit"
	auditpublisher "transferai/pkg/platform/audit/publisher"
	"transferai/pkg/platform/audit/publishers/kafka"
	auditpg "transferai/pkg/platform/audit/store/postgres"
	"transferai/pkg/platform/circuit"
)

// app holds every long-lived dependency. Commands build only what they need
// through the lazy accessors; Close releases whatever was opened.
type app struct {
	cfg    config.Server
	logger *slog.Logger

	db    *sql.DB
	pool  *pgxpool.Pool
	redis *redisclient.Client
	audit audit.Publisher

	contentMetrics *contentmetrics.Metrics
	blobs          ports.ContentStore
	resolver       *resolver.Resolver
	agreements     *agreementservice.Service
	pages          *pages.Expander
	ledger         *usageservice.Ledger

	closers []func(context.Context) error
}

func newApp(cfg config.Server, logger *slog.Logger) *app {
	return &app{cfg: cfg, logger: logger}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) sqlDB(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	if a.cfg.Store.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := postgres.OpenDB(ctx, a.cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	return db, nil
}

// migrated opens the database and applies pending migrations.
func (a *app) migrated(ctx context.Context) (*sql.DB, error) {
	db, err := a.sqlDB(ctx)
	if err != nil {
		return nil, err
	}
	if err := migrate.Up(db); err != nil {
		return nil, err
	}
	return db, nil
}

func (a *app) pgxPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if _, err := a.migrated(ctx); err != nil {
		return nil, err
	}
	pool, err := postgres.OpenPool(ctx, a.cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
	return pool, nil
}

func (a *app) redisClient(ctx context.Context) (*redisclient.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redisclient.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("REDIS_URL is not set")
	}
	a.redis = client
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return client, nil
}

// auditPublisher returns the configured audit sinks, or nil when neither
// Kafka nor the audit table is enabled.
func (a *app) auditPublisher(ctx context.Context) (audit.Publisher, error) {
	if a.audit != nil {
		return a.audit, nil
	}
	var sinks audit.Fanout
	if len(a.cfg.Audit.KafkaBrokers) > 0 {
		if n := a.cfg.Audit.KafkaPartitions; n > 0 {
			if err := kafka.EnsureTopic(ctx, a.cfg.Audit.KafkaBrokers, a.cfg.Audit.KafkaTopic, int32(n)); err != nil {
				return nil, err
			}
		}
		p, err := kafka.Dial(a.cfg.Audit.KafkaBrokers, a.cfg.Audit.KafkaTopic, kafka.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		sinks = append(sinks, p)
	}
	if a.cfg.Audit.Store == config.BackendPostgres {
		db, err := a.migrated(ctx)
		if err != nil {
			return nil, err
		}
		p := auditpublisher.NewPublisher(auditpg.New(db),
			auditpublisher.WithAsyncBuffer(a.cfg.Audit.BufferSize),
			auditpublisher.WithLogger(a.logger),
		)
		a.closers = append(a.closers, p.Close)
		sinks = append(sinks, p)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		a.audit = sinks[0]
	default:
		a.audit = sinks
	}
	return a.audit, nil
}

func (a *app) contentStore(ctx context.Context) (ports.ContentStore, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}
	var backend cached.Backend
	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		backend = contentmemory.New()
	case config.BackendPostgres:
		pool, err := a.pgxPool(ctx)
		if err != nil {
			return nil, err
		}
		backend = contentpostgres.New(pool)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", a.cfg.Store.Backend)
	}
	a.contentMetrics = contentmetrics.New()
	a.blobs = cached.New(backend, a.cfg.Store.CacheSize, a.cfg.Store.CacheTTL, cached.WithMetrics(a.contentMetrics))
	return a.blobs, nil
}

func (a *app) nameResolver() (*resolver.Resolver, error) {
	if a.resolver != nil {
		return a.resolver, nil
	}
	client, err := assist.New(a.cfg.Assist.BaseURL, a.cfg.Assist.Timeout,
		assist.WithRateLimit(a.cfg.Assist.RateLimit, a.cfg.Assist.Burst),
		assist.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.resolver = resolver.New(client, resolver.WithLogger(a.logger))
	return a.resolver, nil
}

// pipeline builds the agreement service and the page expander, which share
// one content store and one metrics set.
func (a *app) pipeline(ctx context.Context) (*agreementservice.Service, *pages.Expander, error) {
	if a.agreements != nil {
		return a.agreements, a.pages, nil
	}
	store, err := a.contentStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	names, err := a.nameResolver()
	if err != nil {
		return nil, nil, err
	}
	publisher, err := a.auditPublisher(ctx)
	if err != nil {
		return nil, nil, err
	}

	render := a.cfg.Render
	chrome := fetcher.New(
		fetcher.WithTimeouts(render.NavigationTimeout, render.SelectorTimeout),
		fetcher.WithSettleDelay(render.SettleDelay),
		fetcher.WithExecPath(render.ChromePath),
		fetcher.WithConcurrency(render.Concurrency),
		fetcher.WithLogger(a.logger),
	)
	m := agreementmetrics.New()
	guarded := fetcher.NewGuarded(chrome, circuit.New("assist-render",
		circuit.WithFailureThreshold(render.CircuitThreshold),
		circuit.WithCooldown(render.CircuitCooldown),
	), m, a.logger)
	fitz := pdf.New()

	a.agreements = agreementservice.New(names, guarded, store, fitz,
		agreementservice.WithLogger(a.logger),
		agreementservice.WithMetrics(m),
		agreementservice.WithAuditPublisher(publisher),
		agreementservice.WithSiteURL(a.cfg.Assist.SiteURL),
		agreementservice.WithKeyDigest(a.cfg.FilenameKeyDigest),
		agreementservice.WithRenderTimeout(render.Timeout),
	)
	a.pages = pages.New(store, fitz,
		pages.WithLogger(a.logger),
		pages.WithMetrics(m),
		pages.WithAuditPublisher(publisher),
	)
	return a.agreements, a.pages, nil
}

func (a *app) usageStore(ctx context.Context) (usageports.Store, error) {
	switch a.cfg.Usage.Backend {
	case config.BackendMemory:
		return usagememory.New(), nil
	case config.BackendPostgres:
		db, err := a.migrated(ctx)
		if err != nil {
			return nil, err
		}
		return usagepostgres.New(db), nil
	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return usageredis.New(client.Client), nil
	default:
		return nil, fmt.Errorf("unknown USAGE_BACKEND %q", a.cfg.Usage.Backend)
	}
}

func (a *app) usageLedger(ctx context.Context) (*usageservice.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	store, err := a.usageStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.auditPublisher(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := usageservice.New(store,
		usageservice.WithLogger(a.logger),
		usageservice.WithMetrics(usagemetrics.New()),
		usageservice.WithAuditPublisher(publisher),
		usageservice.WithLimits(usagemodels.Limits{Free: a.cfg.Usage.FreeLimit, Premium: a.cfg.Usage.PremiumLimit}),
	)
	if err != nil {
		return nil, err
	}
	a.ledger = ledger
	return ledger, nil
}

// verifier accepts Google ID tokens and, when a secret is configured, local
// development tokens.
func (a *app) verifier(ctx context.Context) (identity.Verifier, error) {
	var chain identity.Chain
	if id := a.cfg.Identity.GoogleClientID; id != "" {
		g, err := identity.NewGoogle(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, g)
	}
	if secret := a.cfg.Identity.DevJWTSecret; secret != "" {
		dev, err := identity.NewDevJWT(secret)
		if err != nil {
			return nil, err
		}
		a.logger.Warn("development tokens are accepted; do not set DEV_JWT_SECRET in production")
		chain = append(chain, dev)
	}
	return chain, nil
}

// courseMaps follows STORE_BACKEND: saved maps live next to the documents.
func (a *app) courseMaps(ctx context.Context) (*coursemapservice.Service, error) {
	var store coursemapports.Store
	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		store = coursemapmemory.New()
	case config.BackendPostgres:
		pool, err := a.pgxPool(ctx)
		if err != nil {
			return nil, err
		}
		store = coursemappostgres.New(pool)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", a.cfg.Store.Backend)
	}
	publisher, err := a.auditPublisher(ctx)
	if err != nil {
		return nil, err
	}
	return coursemapservice.New(store,
		coursemapservice.WithLogger(a.logger),
		coursemapservice.WithAuditPublisher(publisher),
	)
}

// chatHandler is nil when no model key is configured.
func (a *app) chatHandler(images chat.ImageStore) (*chat.Handler, error) {
	c := a.cfg.Chat
	if c.OpenAIAPIKey == "" {
		a.logger.Info("OPENAI_API_KEY not set; chat endpoint disabled")
		return nil, nil
	}
	responder, err := chat.NewOpenAI(c.OpenAIAPIKey, c.BaseURL, c.Model)
	if err != nil {
		return nil, err
	}
	return chat.NewHandler(chat.NewService(responder, images, a.logger), a.logger), nil
}

// routerDeps assembles everything the HTTP surface mounts.
func (a *app) routerDeps(ctx context.Context) (*httptransport.Deps, error) {
	agreements, expander, err := a.pipeline(ctx)
	if err != nil {
		return nil, err
	}
	names, err := a.nameResolver()
	if err != nil {
		return nil, err
	}
	ledger, err := a.usageLedger(ctx)
	if err != nil {
		return nil, err
	}
	verifier, err := a.verifier(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.auditPublisher(ctx)
	if err != nil {
		return nil, err
	}
	chatHandler, err := a.chatHandler(a.blobs)
	if err != nil {
		return nil, err
	}
	maps, err := a.courseMaps(ctx)
	if err != nil {
		return nil, err
	}

	checks := map[string]httptransport.Pinger{}
	if a.db != nil {
		checks["postgres"] = httptransport.PingFunc(a.db.PingContext)
	}
	if a.redis != nil {
		checks["redis"] = httptransport.PingFunc(a.redis.Health)
	}

	return &httptransport.Deps{
		Logger:         a.logger,
		TrustProxy:     a.cfg.TrustProxy,
		AdminToken:     a.cfg.AdminToken,
		Agreements:     agreementhandler.New(agreements, expander, names, a.blobs, a.logger, a.contentMetrics),
		Usage:          usagehandler.New(ledger, a.logger),
		CourseMaps:     coursemaphandler.New(maps, a.logger),
		Chat:           chatHandler,
		Health:         httptransport.NewHealthHandler(checks),
		Verifier:       verifier,
		Accounts:       ledger,
		Quota:          ledger,
		AuditPublisher: publisher,
	}, nil
}
