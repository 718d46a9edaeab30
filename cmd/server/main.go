package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricealerts/config"
	"pricealerts/internal/app"
	"pricealerts/internal/schedule"
	"pricealerts/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config yaml")
	createDB := flag.Bool("create-db", false, "create the database before migrating")
	flag.Parse()

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New("pricealerts-server", cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, *createDB, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}

	// exchange symbol lists change rarely; drop the cache once a day
	refresh := &schedule.Runner{
		Name:             "symbol-catalog-refresh",
		AlignUTCMidnight: true,
		Interval:         24 * time.Hour,
		Logger:           log,
		Job: func(context.Context) error {
			a.Catalog.Invalidate()
			return nil
		},
	}
	go refresh.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: a.Router(),
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Error("failed to release resources", zap.Error(err))
	}
}
