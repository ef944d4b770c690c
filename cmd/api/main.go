package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-resto/internal/app"
	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/config"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/health"
	"github.com/noah-isme/backend-resto/internal/notify"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/payment"
	"github.com/noah-isme/backend-resto/internal/security"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Log.Format, cfg.Log.Level).With().
		Str("service", cfg.AppName).
		Str("env", cfg.AppEnv).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		obs.MustRegisterDomainMetrics(cfg.Metrics.Namespace, nil)
	}

	if cfg.Tracing.Enabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   cfg.AppName,
			Endpoint:      cfg.Tracing.Endpoint,
			SamplingRatio: cfg.Tracing.SampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	deps, err := app.New(ctx, cfg, app.Options{
		ApplicationName: cfg.AppName,
		Migrate:         cfg.RunMigrations,
		TaskClient:      true,
		RedisMetrics:    cfg.Metrics.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(logger)

	holder := catalog.NewHolder(catalogSource(cfg, deps), componentLogger(logger, "catalog"))
	if err := holder.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load catalog")
	}
	go holder.Run(ctx, cfg.Catalog.ReloadInterval)

	provider, err := paymentProvider(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment provider")
	}

	bus := &events.Bus{
		Store: events.PgStore{Pool: deps.DB},
		Notifiers: []events.Notifier{notify.TaskNotifier{
			Client:  deps.TaskClient,
			SMS:     cfg.Notify.SMSEnabled,
			Kitchen: cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0,
		}},
	}
	if cfg.Events.AMQPURL != "" {
		pub, conn, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.AMQPExchange)
		if err != nil {
			logger.Error().Err(err).Msg("amqp unavailable; events stay in the outbox table only")
		} else {
			bus.Notifiers = append(bus.Notifiers, pub)
			defer func() {
				_ = pub.Close()
				_ = conn.Close()
			}()
		}
	}

	securityStore := &security.PgStore{Pool: deps.DB}
	alerts := &security.Alerts{
		Store:    securityStore,
		Throttle: deps.Redis,
		Window:   cfg.Security.AlertWindow,
		Logger:   componentLogger(logger, "security"),
	}
	blocklist := &security.Blocklist{
		Store:  securityStore,
		Cache:  deps.Redis,
		Logger: componentLogger(logger, "blocklist"),
	}
	if err := blocklist.Sync(ctx); err != nil {
		logger.Error().Err(err).Msg("initial blocklist sync")
	}
	go blocklist.Run(ctx, cfg.Security.BlocklistSyncEvery)

	router := newRouter(cfg, deps, routerDeps{
		Catalog:   holder,
		Provider:  provider,
		Events:    bus,
		Alerts:    alerts,
		Blocklist: blocklist,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("catalog_version", catalogVersion(holder)).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func catalogSource(cfg *config.Config, deps *app.Dependencies) catalog.Source {
	switch cfg.Catalog.Source {
	case "postgres":
		return catalog.PostgresSource{Pool: deps.DB, Currency: cfg.Pricing.Currency}
	case "file":
		return catalog.YAMLSource{Path: cfg.Catalog.Path}
	default:
		return catalog.YAMLSource{}
	}
}

func paymentProvider(cfg *config.Config) (payment.Provider, error) {
	switch cfg.Payment.Provider {
	case "stripe":
		client := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Payment.Timeout,
		}
		return payment.NewStripe(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret, client), nil
	case "stub":
		if cfg.IsProduction() {
			return nil, errors.New("stub payment provider is not allowed in production")
		}
		secret := cfg.Payment.StripeWebhookSecret
		if secret == "" {
			secret = "stub-webhook-secret"
		}
		return payment.Stub{Secret: secret}, nil
	default:
		return nil, errors.New("unknown payment provider " + cfg.Payment.Provider)
	}
}

func catalogVersion(h *catalog.Holder) string {
	c, err := h.Current()
	if err != nil {
		return ""
	}
	return c.Version()
}

// componentLogger scopes the root logger to one subsystem.
func componentLogger(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
