package workers

import (
	"context"
	"fmt"
	"time"

	"doc-intel/internal/services"
)

// PipelineWorker drains the stage queue, running one pipeline stage per
// dequeued document through the stage engine. Several goroutines poll
// concurrently; the engine's per-document lock keeps them off each other's
// documents.
type PipelineWorker struct {
	*BaseWorker
	engine *services.StageEngine
	logger Logger
}

// PipelineWorkerConfig holds configuration for the pipeline worker
type PipelineWorkerConfig struct {
	WorkerConfig WorkerConfig
	Engine       *services.StageEngine
	Logger       Logger
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(cfg PipelineWorkerConfig) *PipelineWorker {
	logger := cfg.Logger
	if logger == nil {
		logger = &DefaultLogger{}
	}
	return &PipelineWorker{
		BaseWorker: NewBaseWorker(cfg.WorkerConfig),
		engine:     cfg.Engine,
		logger:     logger,
	}
}

// Start begins the worker goroutines
func (w *PipelineWorker) Start(ctx context.Context) error {
	if w.IsRunning() {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}
	if w.engine == nil {
		return NewWorkerError(w.Name(), "start", nil, "no stage engine configured")
	}

	w.setRunning(true)
	w.logger.Info("starting pipeline worker", "name", w.Name(), "concurrency", w.config.Concurrency)

	for i := 0; i < w.config.Concurrency; i++ {
		go w.pollLoop(ctx, i)
	}

	return nil
}

// Stop gracefully stops the worker
func (w *PipelineWorker) Stop(ctx context.Context) error {
	if !w.IsRunning() {
		return nil
	}
	w.logger.Info("stopping pipeline worker", "name", w.Name())

	w.setRunning(false)

	// Give in-flight stages up to the shutdown timeout to finish
	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()
	<-shutdownCtx.Done()

	w.logger.Info("pipeline worker stopped", "name", w.Name())
	return nil
}

// pollLoop polls the queue until the context ends or the worker stops
func (w *PipelineWorker) pollLoop(ctx context.Context, goroutineID int) {
	name := fmt.Sprintf("%s-goroutine-%d", w.Name(), goroutineID)
	w.logger.Debug("pipeline worker goroutine started", "name", name)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("pipeline worker goroutine stopping", "name", name)
			return
		case <-ticker.C:
			if !w.IsRunning() {
				return
			}

			// Drain everything ready before sleeping again
			for {
				processed := w.processOne(ctx)
				if !processed || !w.IsRunning() {
					break
				}
			}
		}
	}
}

// processOne runs one stage execution, returning false when the queue was
// empty
func (w *PipelineWorker) processOne(ctx context.Context) (processed bool) {
	startTime := w.recordTaskStart()

	if w.config.EnableRecovery {
		defer func() {
			if r := recover(); r != nil {
				w.recordTaskFailure(startTime)
				w.logger.Error("panic while processing stage", "worker", w.Name(), "panic", fmt.Sprint(r))
				processed = true
			}
		}()
	}

	ok, err := w.engine.ProcessNext(ctx)
	if !ok && err == nil {
		return false
	}

	if err != nil {
		w.recordTaskFailure(startTime)
		w.logger.Error("stage processing error", "worker", w.Name(), "error", err)
		return true
	}

	w.recordTaskSuccess(startTime)
	return true
}
