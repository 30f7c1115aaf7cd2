package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"schooladmin/internal/audit/handler"
	auditmetrics "schooladmin/internal/audit/metrics"
	"schooladmin/internal/audit/retention"
	"schooladmin/internal/audit/rules"
	"schooladmin/internal/audit/service"
	"schooladmin/internal/directory"
	jwttoken "schooladmin/internal/jwt_token"
	"schooladmin/internal/platform/config"
	"schooladmin/internal/platform/database"
	httpmetrics "schooladmin/internal/platform/metrics"
	"schooladmin/internal/platform/redis"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/audit/classifier"
	"schooladmin/pkg/platform/audit/interceptor"
	"schooladmin/pkg/platform/audit/publisher"
	"schooladmin/pkg/platform/audit/store/memory"
	"schooladmin/pkg/platform/audit/store/postgres"
	"schooladmin/pkg/platform/httputil"
	authmw "schooladmin/pkg/platform/middleware/auth"
	"schooladmin/pkg/platform/middleware/metadata"
	"schooladmin/pkg/platform/middleware/request"
	"schooladmin/pkg/platform/middleware/requesttime"
)

type app struct {
	router    http.Handler
	publisher *publisher.Publisher
	scheduler *retention.Scheduler
	db        *sql.DB
	redis     *redis.Client
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := a.openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	names, err := a.openDirectory(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}

	table := cfg.Audit.Rules
	if len(table) == 0 {
		table = rules.Default()
	}
	cls, err := classifier.New(table)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build audit rule table: %w", err)
	}

	a.publisher = publisher.New(store,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
		publisher.WithTimeout(cfg.Audit.WriteTimeout),
		publisher.WithCircuitBreaker(publisher.BreakerSettings{
			FailureThreshold: cfg.Audit.BreakerFailures,
			Timeout:          cfg.Audit.BreakerTimeout,
		}),
	)
	ic := interceptor.New(cls, a.publisher,
		interceptor.WithLogger(log),
		interceptor.WithMetrics(interceptor.NewMetrics(reg)),
		interceptor.WithMaxBodyCapture(cfg.Audit.MaxBodyCapture),
	)

	svcMetrics := auditmetrics.New(reg)
	svc := service.New(store,
		service.WithLogger(log),
		service.WithMetrics(svcMetrics),
		service.WithTracer(otel.Tracer("schooladmin/audit")),
		service.WithNameResolver(names),
	)
	a.scheduler = retention.NewScheduler(svc, a.publisher,
		cfg.Audit.RetentionSchedule, cfg.Audit.RetentionDays,
		retention.WithLogger(log),
		retention.WithMetrics(svcMetrics),
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(httpmetrics.New(reg).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(authmw.Authenticate(jwtService.Middleware(), log))
	r.Use(ic.Middleware)

	r.Get("/healthz", a.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	auditHandler := handler.New(svc, log)
	r.Group(func(r chi.Router) {
		if cfg.Server.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.Server.RateLimitPerMinute, time.Minute))
		}
		auditHandler.Register(r)
	})

	a.router = r
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (audit.Store, error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, audit records are kept in memory")
		return memory.NewInMemoryStore(), nil
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	a.db = db
	return postgres.New(db), nil
}

func (a *app) openDirectory(ctx context.Context, cfg *config.Config, log *slog.Logger) (directory.Resolver, error) {
	var names directory.Resolver = directory.NewStatic()
	if a.db != nil {
		names = directory.NewPostgresResolver(a.db)
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return names, nil
	}
	a.redis = client
	log.Info("caching directory names in redis", "ttl", cfg.Redis.NameCacheTTL)
	return directory.NewCachedResolver(names, client.Client,
		directory.WithTTL(cfg.Redis.NameCacheTTL),
		directory.WithLogger(log),
	), nil
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "database"})
			return
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "component": "redis"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
