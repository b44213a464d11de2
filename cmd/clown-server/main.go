package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"clown-builder-backend/internal/config"
	"clown-builder-backend/internal/server"
	"clown-builder-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	shutdownTracer := func(context.Context) error { return nil }
	if cfg.TracingEnabled {
		shutdownTracer, err = initTracer()
		if err != nil {
			logger.Fatalf("failed to initialize tracer: %v", err)
		}
	}

	shutdownMeter := func(context.Context) error { return nil }
	if cfg.MetricsEnabled {
		shutdownMeter, err = initMeter()
		if err != nil {
			logger.Fatalf("failed to initialize meter: %v", err)
		}
	}

	s, err := server.NewServer(cfg)
	if err != nil {
		logger.Fatalf("failed to create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("CLOWN relay listening on %s (provider=%s, model=%s)", cfg.Addr(), cfg.Provider, cfg.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("server shutdown failed: %v", err)
	}
	if err := shutdownTracer(ctx); err != nil {
		logger.Errorf("tracer shutdown failed: %v", err)
	}
	if err := shutdownMeter(ctx); err != nil {
		logger.Errorf("meter shutdown failed: %v", err)
	}
	logger.Info("server stopped")
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func initMeter() (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(time.Minute))),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
