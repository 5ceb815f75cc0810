package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/tree-api/internal/classify"
	"github.com/Brownie44l1/tree-api/internal/config"
	"github.com/Brownie44l1/tree-api/internal/handlers"
	"github.com/Brownie44l1/tree-api/internal/model"
)

func main() {
	cfg, _, err := config.Load("server", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("loading_model", "path", cfg.ModelPath)

	m, err := model.Load(model.LoadConfig{
		ModelPath:         cfg.ModelPath,
		MetadataPath:      cfg.MetadataPath,
		LabelsPath:        cfg.LabelsPath,
		SharedLibraryPath: cfg.OrtLibrary,
		ImageSize:         cfg.ImageSize,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to initialize model", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	pipeline := classify.NewPipeline(m, m.Labels,
		classify.WithThreshold(float32(cfg.Threshold)),
		classify.WithImageSize(m.ImageSize),
		classify.WithMaxPixels(cfg.MaxImagePixels),
		classify.WithLogger(logger),
	)
	handler := handlers.NewHandler(pipeline, handlers.Config{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxImagePixels: cfg.MaxImagePixels,
		Logger:         logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.Chain(mux,
			handlers.Recovery(logger),
			handlers.RequestID,
			handlers.Logging(logger),
			handlers.CORS,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server_starting",
		"port", cfg.Port,
		"classes", m.Labels,
		"threshold", cfg.Threshold,
		"endpoints", []string{
			"GET /health",
			"GET /metrics",
			"POST /predict",
			"POST /predict/image",
		},
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			m.Close()
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("server_stopping", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}
