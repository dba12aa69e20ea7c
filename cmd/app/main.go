package main

import (
	"log/slog"
	"os"

	"audio-workbench/internal/bootstrap"
	"audio-workbench/internal/config"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	config.LoadDefaultEnv()

	app, err := bootstrap.New(bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("bootstrap app", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(); err != nil {
		logger.Error("run app", "error", err)
		os.Exit(1)
	}
}
