package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/analytics"
	"github.com/noah-isme/backend-resto/internal/app"
	"github.com/noah-isme/backend-resto/internal/audit"
	"github.com/noah-isme/backend-resto/internal/auth"
	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/checkout"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/config"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/health"
	"github.com/noah-isme/backend-resto/internal/lock"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/payment"
	"github.com/noah-isme/backend-resto/internal/pricing"
	"github.com/noah-isme/backend-resto/internal/ratelimit"
	"github.com/noah-isme/backend-resto/internal/security"
)

type routerDeps struct {
	Catalog   *catalog.Holder
	Provider  payment.Provider
	Events    events.Emitter
	Alerts    *security.Alerts
	Blocklist *security.Blocklist
	Logger    zerolog.Logger
}

func newRouter(cfg *config.Config, deps *app.Dependencies, rd routerDeps) http.Handler {
	logger := rd.Logger

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:    cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.JWTIssuer,
		Audience:  cfg.Auth.JWTAudience,
		ClockSkew: cfg.Auth.ClockSkew,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier}

	strikes := ratelimit.Limiter{Client: deps.Redis, Prefix: "resto:"}
	adminGuard := auth.AdminGuard{
		PINHash:  cfg.Auth.AdminPINHash,
		Failures: strikes,
		MaxFails: cfg.Auth.AdminPINMaxFails,
		Window:   cfg.Auth.AdminPINFailWindow,
		Logger:   componentLogger(logger, "admin"),
		Alerts:   rd.Alerts,
	}

	ipLimiter, err := ratelimit.NewIPLimiter(deps.LimiterStore, cfg.Limits.PublicRate, componentLogger(logger, "ratelimit"))
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.Limits.PublicRate).Msg("parse public rate limit")
	}
	intentLimit := ratelimit.Handler{
		Limiter: strikes,
		Config: ratelimit.Config{
			Key:    ratelimit.ByUser("intents"),
			Window: cfg.Limits.IntentsWindow,
			Max:    cfg.Limits.IntentsPerWindow,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("intent rate limiter unavailable") },
	}
	idempotency := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	orders := &order.Store{Pool: deps.DB}

	payments := &payment.Service{
		Provider: rd.Provider,
		Timeout:  cfg.Payment.Timeout,
		Logger:   componentLogger(logger, "payment"),
	}
	checkoutSvc := &checkout.Service{
		Pricing: pricing.Validator{
			Catalog: rd.Catalog,
			Limits: pricing.Limits{
				MaxQuantityPerLine: cfg.Pricing.MaxQuantityPerLine,
				MaxTotal:           cfg.Pricing.MaxTotalMinor,
				MinTotal:           cfg.Pricing.MinTotalMinor,
				SurchargeBps:       cfg.Pricing.SurchargeBps,
				Accumulate:         cfg.Pricing.AccumulateErrors,
			},
			Logger: componentLogger(logger, "pricing"),
			Alerts: rd.Alerts,
		},
		Orders:   orders,
		Payments: payments,
		Events:   rd.Events,
		Abuse: &checkout.AbuseGuard{
			Counter:    strikes,
			Window:     cfg.Abuse.Window,
			MaxStrikes: cfg.Abuse.MaxStrikes,
			Logger:     componentLogger(logger, "abuse"),
			Alerts:     rd.Alerts,
		},
		Validate: deps.Validator,
		Logger:   componentLogger(logger, "checkout"),
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	webhook := payment.Webhook{
		Provider:  rd.Provider,
		Orders:    orders,
		Events:    rd.Events,
		Replay:    deps.Redis,
		ReplayTTL: cfg.Payment.WebhookReplayTTL,
		Locker:    lock.Locker{R: deps.Redis, Prefix: "resto:", MaxWait: 5 * time.Second},
		Logger:    componentLogger(logger, "webhook"),
		Alerts:    rd.Alerts,
	}

	menuHandler := catalog.NewHandler(catalog.HandlerConfig{Holder: rd.Catalog})
	orderHandler := &order.Handler{Store: orders}
	orderAdmin := &order.AdminHandler{Store: orders, Events: rd.Events, Logger: componentLogger(logger, "orders")}

	securityStore := &security.PgStore{Pool: deps.DB}
	securityAdmin := &security.AdminHandler{Alerts: securityStore, Blocks: rd.Blocklist, Validate: deps.Validator}

	analyticsHandler := &analytics.Handler{Svc: &analytics.Service{
		Q:            analytics.PgQuerier{Pool: deps.DB},
		Alerts:       securityStore,
		Cache:        analytics.NewCache(deps.Redis, time.Minute),
		DefaultRange: 30,
	}}

	auditStore := &audit.PgStore{Pool: deps.DB}
	auditor := audit.HTTPRecorder{
		Service: &audit.Service{Store: auditStore, Enabled: cfg.Audit.Enabled, SamplingRate: cfg.Audit.SamplingRate},
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	auditHandler := audit.Handler{Store: auditStore}

	healthHandler := health.Handler{
		Checker:      health.PoolChecker{DB: deps.DB, Redis: deps.Redis},
		Catalog:      rd.Catalog,
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Metrics.Enabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Metrics.Namespace, obs.ParseBucketsCSV(cfg.Metrics.Buckets), deps.Metrics)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.Tracing.Enabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction(), HSTSMaxAge: 31536000, HSTSIncludeSubdomains: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader, auth.AdminPINHeader},
		ExposedHeaders:   []string{"X-Request-Id", "X-Total-Count", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, obs.Handler(deps.Metrics))
	}
	if cfg.Pprof.Enabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Pprof.User, cfg.Pprof.Pass))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rd.Blocklist.Middleware)
		v.With(ipLimiter.Middleware).Get("/menu", menuHandler.Menu)

		v.Route("/payments", func(p chi.Router) {
			p.With(
				ipLimiter.Middleware,
				authMiddleware.RequireAuth,
				intentLimit.Middleware,
				idempotency.Middleware,
			).Post("/intents", checkoutHandler.CreateIntent)
			p.Post("/webhook", webhook.Handle)
		})

		v.Group(func(authR chi.Router) {
			authR.Use(authMiddleware.RequireAuth)
			authR.Get("/orders", orderHandler.List)
			authR.Get("/orders/{orderId}", orderHandler.Get)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(ipLimiter.Middleware)
			admin.Use(adminGuard.Middleware)
			admin.Get("/orders", orderAdmin.List)
			admin.With(auditor.Middleware(audit.HTTPConfig{
				Action:          "order.status.update",
				ResourceType:    "order",
				ResourceIDParam: "id",
			})).Patch("/orders/{id}/status", orderAdmin.PatchStatus)
			admin.Get("/stats", analyticsHandler.Stats)
			admin.Get("/stats/top-items", analyticsHandler.TopItems)
			admin.Get("/audit", auditHandler.List)

			admin.Route("/security", func(sec chi.Router) {
				sec.Get("/alerts", securityAdmin.ListAlerts)
				sec.With(auditor.Middleware(audit.HTTPConfig{
					Action:          "security.alert.resolve",
					ResourceType:    "security_alert",
					ResourceIDParam: "id",
				})).Post("/alerts/{id}/resolve", securityAdmin.ResolveAlert)
				sec.Get("/blocked-ips", securityAdmin.ListBlocks)
				sec.With(auditor.Middleware(audit.HTTPConfig{
					Action:       "security.ip.block",
					ResourceType: "blocked_ip",
				})).Post("/blocked-ips", securityAdmin.BlockIP)
				sec.With(auditor.Middleware(audit.HTTPConfig{
					Action:          "security.ip.unblock",
					ResourceType:    "blocked_ip",
					ResourceIDParam: "id",
				})).Delete("/blocked-ips/{id}", securityAdmin.UnblockIP)
			})
		})
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
