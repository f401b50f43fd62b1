package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/app"
	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/logger"
	"github.com/unclebandit/outreach-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	flag.DurationVar(&cfg.Sweep.Interval, "interval", cfg.Sweep.Interval, "time between sweeps")
	flag.Parse()
	if cfg.Sweep.Interval <= 0 {
		log.Fatalf("sweep interval must be positive")
	}
	zl, err := logger.New(cfg.Service.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to wire engine", zap.Error(err))
	}
	defer a.Close()

	w := service.NewWorker(a.Service, cfg.Sweep.Interval, cfg.Sweep.Timeout, time.Now, zl)
	zl.Info("worker running", zap.Duration("interval", cfg.Sweep.Interval))
	w.Start(ctx)
}
