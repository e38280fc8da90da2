package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	name     string
	running  bool
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (w *stubWorker) Start(ctx context.Context) error {
	w.starts++
	if w.startErr != nil {
		return w.startErr
	}
	w.running = true
	return nil
}

func (w *stubWorker) Stop(ctx context.Context) error {
	w.stops++
	w.running = false
	return w.stopErr
}

func (w *stubWorker) Name() string    { return w.name }
func (w *stubWorker) IsRunning() bool { return w.running }
func (w *stubWorker) Stats() WorkerStats {
	return WorkerStats{WorkerName: w.name, IsRunning: w.running}
}

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig("pipeline-worker")

	assert.Equal(t, "pipeline-worker", cfg.WorkerName)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.EnableRecovery)
}

func TestBaseWorkerStatsRecording(t *testing.T) {
	w := NewBaseWorker(DefaultWorkerConfig("w1"))

	assert.False(t, w.IsRunning())
	assert.Zero(t, w.Stats().Uptime)

	w.recordTaskSuccess(w.recordTaskStart())
	w.recordTaskSuccess(w.recordTaskStart())
	w.recordTaskFailure(w.recordTaskStart())

	stats := w.Stats()
	assert.Equal(t, "w1", stats.WorkerName)
	assert.Equal(t, int64(3), stats.TasksProcessed)
	assert.Equal(t, int64(2), stats.TasksSucceeded)
	assert.Equal(t, int64(1), stats.TasksFailed)
	assert.False(t, stats.LastTaskTime.IsZero())

	w.setRunning(true)
	stats = w.Stats()
	assert.True(t, stats.IsRunning)
	assert.Greater(t, stats.Uptime, time.Duration(0))
}

func TestWorkerPoolLifecycle(t *testing.T) {
	pool := NewWorkerPool()
	assert.Equal(t, 0, pool.Count())

	w1 := &stubWorker{name: "alpha"}
	w2 := &stubWorker{name: "beta"}
	pool.AddWorker(w1)
	pool.AddWorker(w2)
	assert.Equal(t, 2, pool.Count())

	assert.Same(t, Worker(w2), pool.GetWorker("beta"))
	assert.Nil(t, pool.GetWorker("gamma"))

	ctx := context.Background()
	require.NoError(t, pool.StartAll(ctx))
	assert.True(t, w1.running)
	assert.True(t, w2.running)

	stats := pool.GetAllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "alpha", stats[0].WorkerName)

	require.NoError(t, pool.StopAll(ctx))
	assert.Equal(t, 1, w1.stops)
	assert.Equal(t, 1, w2.stops)
}

func TestWorkerPoolStartAllStopsAtFirstError(t *testing.T) {
	pool := NewWorkerPool()
	w1 := &stubWorker{name: "alpha", startErr: errors.New("boom")}
	w2 := &stubWorker{name: "beta"}
	pool.AddWorker(w1)
	pool.AddWorker(w2)

	err := pool.StartAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, w2.starts)
}

func TestWorkerPoolStopAllSurfacesError(t *testing.T) {
	pool := NewWorkerPool()
	stopErr := errors.New("stuck")
	pool.AddWorker(&stubWorker{name: "alpha", stopErr: stopErr})
	pool.AddWorker(&stubWorker{name: "beta"})

	err := pool.StopAll(context.Background())
	assert.ErrorIs(t, err, stopErr)
}

func TestWorkerErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")

	err := NewWorkerError("w1", "start", cause, "")
	assert.Equal(t, "w1:start: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	withMessage := NewWorkerError("w1", "start", nil, "worker already running")
	assert.Equal(t, "worker already running", withMessage.Error())

	bare := NewWorkerError("w1", "stop", nil, "")
	assert.Equal(t, "w1:stop: unknown error", bare.Error())
}
