package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/confident-retrieval/internal/bootstrap"
	"github.com/kirillkom/confident-retrieval/internal/config"
	"github.com/kirillkom/confident-retrieval/internal/observability/logging"
	"github.com/kirillkom/confident-retrieval/internal/observability/metrics"
)

const service = "retrieval-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(os.Stdout, service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger: logger,
		ObserveQueueLag: func(lag time.Duration) {
			workerMetrics.ObserveQueueLag(service, lag)
		},
		Service: service,
	})
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux(workerMetrics),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		start := time.Now()
		workerMetrics.StartDocument()
		processErr := app.ProcessUC.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDocument(service, time.Since(start), processErr)

		if processErr != nil {
			logger.Error("document processing failed", "document_id", documentID, "error", processErr)
			return processErr
		}

		if doc, getErr := app.Repo.GetByID(processCtx, documentID); getErr == nil {
			workerMetrics.RecordExtraction(service, string(doc.ExtractionMode), doc.ChunkCount)
			logger.Info("document processed",
				"document_id", documentID,
				"mode", doc.ExtractionMode,
				"nodes", doc.NodeCount,
				"chunks", doc.ChunkCount,
				"degraded", doc.Degraded,
			)
		}
		return nil
	})
	if err != nil {
		logger.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}

func metricsMux(workerMetrics *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
