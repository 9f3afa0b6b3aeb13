package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

const jobTimeout = 10 * time.Minute

// RunWorker consumes queued ingest jobs until ctx is cancelled and serves
// Prometheus metrics on WORKER_METRICS_PORT meanwhile.
func (a *App) RunWorker(ctx context.Context) error {
	queue, err := a.Queue()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	server := &http.Server{
		Addr:              ":" + a.Config.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger.Info("worker_metrics_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("worker_metrics_shutdown_failed", "error", err)
		}
	}()

	handler := a.JobHandler()
	a.Logger.Info("worker_subscribed", "subject", a.Config.NATSSubject)
	err = queue.SubscribeIngest(ctx, func(handlerCtx context.Context, req domain.IngestRequest) error {
		jobCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()
		return handler.Handle(jobCtx, req)
	})
	if err != nil {
		return fmt.Errorf("worker subscribe: %w", err)
	}
	return nil
}
