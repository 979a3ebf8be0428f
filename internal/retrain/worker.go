// Package retrain decouples model refresh from the request path. Scorers
// enqueue best-effort jobs after each persisted record; the worker reloads
// artifact files when the training pipeline has published new ones and
// marks the consumed records. Requests never wait on any of this.
package retrain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smartwater-ai/smartwater-backend/internal/artifacts"
	"github.com/smartwater-ai/smartwater-backend/internal/database"
	"github.com/smartwater-ai/smartwater-backend/internal/monitoring"
)

// Worker processes retrain jobs from a bounded queue.
type Worker struct {
	repo      *database.Repository
	artifacts *artifacts.Store
	metrics   *monitoring.Metrics
	jobs      chan string
	interval  time.Duration

	wg      sync.WaitGroup
	dropped uint64
	mu      sync.Mutex
}

// NewWorker creates a retrain worker with the given queue depth.
func NewWorker(repo *database.Repository, store *artifacts.Store, metrics *monitoring.Metrics, queueDepth int) *Worker {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Worker{
		repo:      repo,
		artifacts: store,
		metrics:   metrics,
		jobs:      make(chan string, queueDepth),
		interval:  10 * time.Minute,
	}
}

// Enqueue submits a retrain request. When the queue is saturated the job is
// dropped; a later job or the periodic sweep will cover the same work.
func (w *Worker) Enqueue(reason string) {
	select {
	case w.jobs <- reason:
	default:
		w.mu.Lock()
		w.dropped++
		dropped := w.dropped
		w.mu.Unlock()
		slog.Debug("Retrain queue full, job dropped", "reason", reason, "total_dropped", dropped)
	}
}

// Start runs the worker until the context is cancelled. The periodic tick
// catches artifact updates even when no scoring traffic arrives.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case reason := <-w.jobs:
				w.process(reason)
			case <-ticker.C:
				w.process("periodic sweep")
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// process reloads artifacts if the training pipeline published new files
// and flags quality records as consumed. Failures are logged and skipped;
// nothing here may surface to a request.
func (w *Worker) process(reason string) {
	swapped, err := w.artifacts.ReloadIfChanged()
	if err != nil {
		slog.Error("Artifact reload failed", "reason", reason, "error", err)
		return
	}

	if !swapped {
		return
	}

	if w.metrics != nil {
		w.metrics.IncrementArtifactSwap()
	}

	marked, err := w.repo.MarkQualityRecordsTrained()
	if err != nil {
		slog.Error("Failed to mark records as trained", "error", err)
		return
	}

	slog.Info("Scoring artifacts refreshed",
		"reason", reason,
		"records_marked", marked)
}
