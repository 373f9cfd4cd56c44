package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/confident-retrieval/internal/adapters/http"
	"github.com/kirillkom/confident-retrieval/internal/bootstrap"
	"github.com/kirillkom/confident-retrieval/internal/config"
	"github.com/kirillkom/confident-retrieval/internal/observability/logging"
	"github.com/kirillkom/confident-retrieval/internal/observability/metrics"
)

const service = "retrieval-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(os.Stdout, service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverMetrics := metrics.NewHTTPServerMetrics(service)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:      logger,
		HTTPMetrics: serverMetrics,
		Service:     service,
	})
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(
		app.IngestUC,
		app.SearchUC,
		app.Reader,
		app.CaseMemory,
		app.Reembedder,
		serverMetrics,
		logger,
		service,
	)
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", "error", err)
	}
}
