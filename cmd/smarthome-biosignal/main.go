package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/common/logger"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/config"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "smarthome-biosignal")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Starting thermal decision engine service",
		zap.String("http_bind", cfg.HTTP.Bind),
		zap.Bool("ingest_enabled", cfg.Ingest.Enabled),
	)

	svc, err := service.NewThermalService(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Error("Service failed", zap.Error(err))
		}
	case sig := <-sigChan:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		log.Error("Shutdown failed", zap.Error(err))
	}
}
