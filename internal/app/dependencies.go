package app

import (
	"context"
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-resto/internal/config"
	"github.com/noah-isme/backend-resto/internal/db"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/ratelimit"
)

// Dependencies holds the infrastructure clients shared by the API and the worker.
type Dependencies struct {
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Validator    *validator.Validate
	LimiterStore limiter.Store
	TaskClient   *asynq.Client
	Metrics      *prometheus.Registry

	closers []func() error
}

// Options selects which optional clients New builds.
type Options struct {
	ApplicationName string
	Migrate         bool
	TaskClient      bool
	RedisMetrics    bool
}

// New connects Postgres and Redis, optionally runs migrations, and builds the
// clients derived from them. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts Options, logger zerolog.Logger) (deps *Dependencies, err error) {
	deps = &Dependencies{
		Validator: validator.New(validator.WithRequiredStructEnabled()),
		Metrics:   obs.NewRegistry(),
	}
	defer func() {
		if err != nil {
			deps.Close(logger)
			deps = nil
		}
	}()

	if opts.Migrate {
		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			return deps, err
		}
	}

	deps.DB, err = db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: opts.ApplicationName})
	if err != nil {
		return deps, err
	}
	deps.closers = append(deps.closers, func() error { deps.DB.Close(); return nil })

	deps.Redis, err = NewRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
	if err != nil {
		return deps, err
	}
	deps.closers = append(deps.closers, deps.Redis.Close)

	deps.LimiterStore, err = ratelimit.NewStore(deps.Redis, "resto:limiter")
	if err != nil {
		return deps, fmt.Errorf("limiter store: %w", err)
	}

	if opts.TaskClient {
		connOpt, err := RedisConnOpt(cfg.RedisURL)
		if err != nil {
			return deps, err
		}
		deps.TaskClient = asynq.NewClient(connOpt)
		deps.closers = append(deps.closers, deps.TaskClient.Close)
	}
	return deps, nil
}

// NewRedis parses url, instruments the client and pings it.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisConnOpt converts a redis:// URL into asynq connection options.
func RedisConnOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for tasks: %w", err)
	}
	return opt, nil
}

// Close releases clients in reverse order of creation.
func (d *Dependencies) Close(logger zerolog.Logger) {
	if d == nil {
		return
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	if err := errors.Join(errs...); err != nil {
		logger.Error().Err(err).Msg("close dependencies")
	}
}
