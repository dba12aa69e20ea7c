package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audio-workbench/internal/api"
	"audio-workbench/internal/bootstrap"
	"audio-workbench/internal/config"
	"audio-workbench/internal/mirror"
)

func main() {
	config.LoadDefaultEnv()
	cfg := config.LoadServer()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, logger *slog.Logger) error {
	app, err := bootstrap.New(bootstrap.Options{Dir: cfg.DataDir, Logger: logger})
	if err != nil {
		return err
	}
	defer app.Close()

	settings, err := app.GetSettings()
	if err != nil {
		return err
	}
	if _, err := app.SaveSettings(config.ApplyEnv(settings)); err != nil {
		return err
	}

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m, err := mirror.New(ctx, mirror.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.MirrorTTL,
		}, logger)
		cancel()
		if err != nil {
			logger.Warn("lane status mirror disabled", "error", err)
		} else {
			app.Mirror = m
			defer m.Close()
		}
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewRouter(app, api.Options{
			JWTSecret:    cfg.JWTSecret,
			CORSOrigins:  cfg.CORSOrigins,
			HistoryLimit: cfg.HistoryLimit,
			Logger:       logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.JWTSecret == "" {
		logger.Warn("AWB_JWT_SECRET not set, API is unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "data_dir", cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Shutdown()
	return srv.Shutdown(shutdownCtx)
}
