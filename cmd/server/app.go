package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/guard"
	identityhandler "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/handler"
	identityservice "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/service"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/store/account"
	sessionstore "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/store/session"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/token"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/notify"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/config"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/kafka"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/metrics"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/postgres"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/platform/redis"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/session"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/steward"
	trusthandler "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/handler"
	trustmetrics "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/metrics"
	trustservice "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/service"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/joinrequest"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/profile"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/store/vouch"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit"
	auditmemory "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit/store/memory"
	auditpostgres "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/audit/store/postgres"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/circuit"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/httputil"
	adminmw "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/admin"
	authmw "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/auth"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/metadata"
	request "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/request"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/requesttime"
)

const tokenAudience = "share-catalog-api"

// app holds the wired services and the resources that must be closed on exit.
type app struct {
	cfg      config.Server
	logger   *slog.Logger
	registry *prometheus.Registry

	trust    *trustservice.Service
	identity *identityservice.Service
	guard    *guard.Guard
	console  *steward.Console
	tokens   *token.JWTService

	db     *sql.DB
	redis  *redis.Client
	kafka  *kgo.Client
	health []func(context.Context) error

	outbound notify.Notifier
}

type appOption func(*app)

// withNotifier replaces the configured notification sink.
func withNotifier(n notify.Notifier) appOption {
	return func(a *app) {
		a.outbound = n
	}
}

// newApp wires every component. Without DATABASE_URL, REDIS_URL or
// KAFKA_BROKERS the corresponding in-memory or log-only fallback is used.
func newApp(ctx context.Context, cfg config.Server, logger *slog.Logger, opts ...appOption) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(a)
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	bus := session.NewBus(logger)

	var (
		tx         trustservice.StoreTx
		reads      trustservice.Stores
		accounts   identityservice.AccountStore
		auditStore audit.Store
	)
	if cfg.Database.URL != "" {
		if a.db, err = postgres.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
		if err = postgres.RunMigrations(ctx, a.db); err != nil {
			return nil, err
		}
		tx = newTrustPostgresTx(a.db, cfg.Database.TxTimeout)
		reads = postgresStores(a.db)
		accounts = account.NewPostgres(a.db)
		auditStore = auditpostgres.New(a.db)
		a.health = append(a.health, a.db.PingContext)
		logger.Info("using postgres stores")
	} else {
		profiles, requests, edges := profile.NewInMemory(), joinrequest.NewInMemory(), vouch.NewInMemory()
		reads = trustservice.Stores{Profiles: profiles, JoinRequests: requests, Vouches: edges}
		tx = trustservice.NewInMemoryTx(reads, cfg.Database.TxTimeout, profiles, requests, edges)
		accounts = account.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var sessions identityservice.SessionStore
	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if a.redis != nil {
		sessions = sessionstore.NewRedis(a.redis.Client)
		a.health = append(a.health, a.redis.Health)
	} else {
		sessions = sessionstore.NewInMemory()
	}

	notifier := a.outbound
	if notifier == nil {
		if notifier, err = a.notifier(ctx); err != nil {
			return nil, err
		}
	}

	auditPublisher := audit.NewPublisher(auditStore, audit.WithLogger(logger))
	identityCfg := identityservice.Config{
		TokenTTL:      cfg.Auth.TokenTTL,
		SessionTTL:    cfg.Auth.SessionTTL,
		ActivationTTL: cfg.Auth.ActivationTTL,
	}

	a.trust = trustservice.New(tx, reads,
		trustservice.WithLogger(logger),
		trustservice.WithMetrics(trustmetrics.New(a.registry)),
		trustservice.WithAuditPublisher(auditPublisher),
		trustservice.WithNotifier(notifier),
		trustservice.WithAccounts(identityservice.NewProvisioner(accounts, identityCfg, auditPublisher, logger)),
		trustservice.WithSessionPublisher(bus),
		trustservice.WithBootstrapStewards(cfg.Trust.BootstrapStewardEmails),
		trustservice.WithProvisionConcurrency(cfg.Trust.ProvisionConcurrency),
	)

	a.tokens = token.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, tokenAudience)
	a.identity = identityservice.New(accounts, sessions, a.tokens, a.trust, identityCfg,
		identityservice.WithLogger(logger),
		identityservice.WithJoinRequests(a.trust),
		identityservice.WithAuditPublisher(auditPublisher),
		identityservice.WithSessionPublisher(bus),
		identityservice.WithNotifier(notifier),
	)

	a.guard = guard.New(a.trust, session.NewContext(a.identity, bus),
		guard.WithLogger(logger),
		guard.WithProfileTTL(cfg.Trust.GuardProfileTTL),
		guard.WithAuditPublisher(auditPublisher),
		guard.WithRegisterer(a.registry),
	)
	a.console = steward.NewConsole(a.trust, a.guard, logger)
	return a, nil
}

// notifier returns the Kafka sink when brokers are configured, falling back to
// the log sink while the breaker is open.
func (a *app) notifier(ctx context.Context) (notify.Notifier, error) {
	fallback := notify.NewLogNotifier(a.logger)
	client, err := kafka.New(ctx, a.cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if client == nil {
		a.logger.Warn("KAFKA_BROKERS not set, notifications are only logged")
		return fallback, nil
	}
	a.kafka = client
	if err := kafka.EnsureTopic(ctx, client, a.cfg.Kafka.Topic, 3); err != nil {
		return nil, err
	}
	a.health = append(a.health, client.Ping)
	return notify.NewKafkaNotifier(client, a.cfg.Kafka.Topic, fallback, a.logger,
		notify.WithBreaker(circuit.New("notify-kafka")),
		notify.WithRegisterer(a.registry),
	), nil
}

// router builds the HTTP surface.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(a.logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(a.logger))
	r.Use(request.Timeout(a.cfg.RequestTimeout))
	r.Use(metrics.NewHTTP(a.registry).Middleware)

	r.Get("/healthz", a.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(a.cfg.AdminToken, a.logger))
		r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	})

	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(authmw.Authenticate(a.tokens, a.identity, a.logger))

		identityhandler.New(a.identity, a.logger).Register(r)
		trusthandler.New(a.trust, a.logger).Register(r)
		guard.NewHandler(a.guard, a.logger).Register(r)
		steward.NewHandler(a.console, a.logger).Register(r)
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, check := range a.health {
		if err := check(r.Context()); err != nil {
			a.logger.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// close releases every external resource. It is safe on a partially built app.
func (a *app) close() error {
	var errs []error
	if a.guard != nil {
		a.guard.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
