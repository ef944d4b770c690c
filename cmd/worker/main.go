package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/app"
	"github.com/noah-isme/backend-resto/internal/config"
	"github.com/noah-isme/backend-resto/internal/notify"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Log.Format, cfg.Log.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		obs.MustRegisterDomainMetrics(cfg.Metrics.Namespace, nil)
	}
	if cfg.Tracing.Enabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   cfg.AppName + "-worker",
			Endpoint:      cfg.Tracing.Endpoint,
			SamplingRatio: cfg.Tracing.SampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	deps, err := app.New(ctx, cfg, app.Options{ApplicationName: cfg.AppName + "-worker"}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(logger)

	handlers := &notify.Handlers{
		Orders:          &order.Store{Pool: deps.DB},
		TrackingBaseURL: cfg.Notify.TrackingBaseURL,
		Logger:          logger,
	}
	if cfg.Notify.EmailEnabled {
		handlers.Email = notify.LogEmailSender{Logger: logger, From: cfg.Notify.EmailFrom}
	}
	if cfg.Notify.SMSEnabled {
		handlers.SMS = &notify.TwilioSender{
			HTTP:           notify.NewOutboundClient("twilio", 10*time.Second, logger),
			AccountSID:     cfg.Notify.TwilioAccountSID,
			AuthToken:      cfg.Notify.TwilioAuthToken,
			From:           cfg.Notify.TwilioFrom,
			DefaultCountry: cfg.Notify.DefaultCountry,
		}
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		kitchen, err := notify.NewKitchenNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.Error().Err(err).Msg("kitchen notifier disabled")
		} else {
			handlers.Kitchen = kitchen
		}
	}

	connOpt, err := app.RedisConnOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("task queue connection")
	}
	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: cfg.Notify.WorkerConcurrency,
		Queues:      map[string]int{notify.Queue: 1},
		Logger:      taskLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("task", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("notification task failed")
		}),
		ShutdownTimeout: 20 * time.Second,
	})

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	logger.Info().
		Int("concurrency", cfg.Notify.WorkerConcurrency).
		Bool("email", handlers.Email != nil).
		Bool("sms", handlers.SMS != nil).
		Bool("kitchen", handlers.Kitchen != nil).
		Msg("worker started")

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
}

// taskLogger adapts zerolog to asynq's logger interface.
type taskLogger struct {
	l zerolog.Logger
}

func (t taskLogger) Debug(args ...any) { t.l.Debug().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Info(args ...any)  { t.l.Info().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Warn(args ...any)  { t.l.Warn().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Error(args ...any) { t.l.Error().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Fatal(args ...any) { t.l.Fatal().Msg(fmt.Sprint(args...)) }
