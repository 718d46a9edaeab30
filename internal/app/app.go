// Package app assembles the alert service and its collaborators from
// configuration. Both the HTTP server and the standalone scheduler start
// from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"pricealerts/config"
	"pricealerts/internal/alert"
	"pricealerts/internal/api"
	"pricealerts/internal/events"
	"pricealerts/internal/notify"
	"pricealerts/internal/ratelimit"
	"pricealerts/internal/stream"
	"pricealerts/internal/tracing"
	"pricealerts/pkg/binance"
	"pricealerts/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type App struct {
	Config  *config.Config
	Alerts  *alert.Service
	Catalog *binance.Catalog
	DB      *postgres.PostgresClient

	limiter ratelimit.Limiter
	closers []func(context.Context) error
	logger  *zap.Logger
}

// Build connects every backing service named in cfg. Optional integrations
// (Kafka, Redis, tracing) are skipped when unconfigured.
func Build(ctx context.Context, cfg *config.Config, createDB bool, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	// Initialize PostgreSQL Client
	a.DB, err = postgres.InitializeAndMigrate(cfg.Postgres, cfg.Environment, createDB)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.DB.Close() })

	rest := binance.NewRESTClient(cfg.Binance.REST.SpotBaseURL, cfg.Binance.REST.FuturesBaseURL, cfg.Binance.REST.Timeout)
	a.Catalog = binance.NewCatalog(cfg.Binance.REST.SpotBaseURL, cfg.Binance.REST.FuturesBaseURL,
		rest.HTTPClient(), cfg.Binance.REST.CatalogTTL)

	sender := notify.NewWebPushSender(cfg.Push, nil)
	dispatcher := notify.NewDispatcher(a.DB, sender, cfg.Push.ClickURL, logger.Named("notify"))

	options := []alert.Option{
		alert.WithCatalog(a.Catalog),
		alert.WithNotifier(dispatcher),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka)
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		options = append(options, alert.WithPublisher(pub))
		logger.Info("publishing alert events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	if cfg.Push.VAPIDPrivateKey == "" {
		logger.Warn("push.vapid_private_key is empty; notifications will fail")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		a.limiter = ratelimit.NewRedisLimiter(rdb, "pricealerts:stream:", cfg.Redis.StreamOpensPerMin)
	}

	a.Alerts = alert.NewService(a.DB, rest, alert.Options{
		BatchSize:          cfg.Alerts.BatchSize,
		FetchConcurrency:   cfg.Alerts.FetchConcurrency,
		DailyCreateLimit:   cfg.Alerts.DailyCreateLimit,
		WorkerDefaultLimit: cfg.Alerts.WorkerDefaultLimit,
		WorkerMaxLimit:     cfg.Alerts.WorkerMaxLimit,
	}, logger.Named("alert"), options...)

	return a, nil
}

// Router builds the HTTP surface on top of the assembled service.
func (a *App) Router() *gin.Engine {
	relay := stream.NewRelay(a.Config.Binance.WS, nil, a.logger.Named("stream"))
	h := api.NewHandler(a.Alerts, a.DB, relay, a.Config.Push.VAPIDPublicKey, a.DB, a.logger)

	return api.NewRouter(h, api.RouterConfig{
		AllowOrigins:  a.Config.Server.AllowOrigins,
		Secrets:       a.Config.Secrets,
		StreamLimiter: a.limiter,
	}, a.logger.Named("http"))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
