package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"pricealerts/config"
	"pricealerts/internal/alert"
	"pricealerts/internal/app"
	"pricealerts/internal/models"
	"pricealerts/internal/schedule"
	"pricealerts/logger"

	"go.uber.org/zap"
)

// The scheduler evaluates alerts in-process on a fixed interval, for
// deployments without an external cron hitting /alerts/check.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config yaml")
	market := flag.String("market", "", "restrict checks to one market (spot or futures)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New("pricealerts-scheduler", cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	req := alert.CheckRequest{}
	if *market != "" {
		if req.Market, err = models.ParseMarket(*market); err != nil {
			log.Fatal("invalid -market", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, false, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close(context.Background())

	runner := &schedule.Runner{
		Name:     "alert-check",
		Interval: cfg.Alerts.CheckInterval,
		Logger:   log,
		Job: func(ctx context.Context) error {
			_, err := a.Alerts.Check(ctx, req)
			return err
		},
	}

	log.Info("alert scheduler started",
		zap.Duration("interval", cfg.Alerts.CheckInterval),
		zap.String("market", string(req.Market)))
	runner.Run(ctx)
}
