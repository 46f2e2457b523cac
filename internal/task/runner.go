package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/events"
	"github.com/phrazzld/stockroom/internal/part"
)

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	// QueueSize is the number of admitted tasks that may wait for a worker.
	QueueSize int

	// Retention is how long terminal tasks stay queryable.
	Retention time.Duration

	// SweepInterval is how often expired tasks are removed.
	SweepInterval time.Duration

	Scheduler SchedulerConfig
	Pool      WorkerPoolConfig
}

// Runner wires the store, scheduler, worker pool, query path and sweeper
// into one engine.
type Runner struct {
	store     Store
	queue     *Queue
	scheduler *Scheduler
	pool      *WorkerPool
	query     *Query
	sweeper   *Sweeper
	logger    *slog.Logger
}

// NewRunner creates a Runner backed by an in-memory task store.
func NewRunner(
	config RunnerConfig,
	registry *capability.Registry,
	providers ProviderLookup,
	parts part.Store,
	emitter events.EventEmitter,
	logger *slog.Logger,
) *Runner {
	store := NewMemoryStore()
	queue := NewQueue(config.QueueSize, logger)
	return &Runner{
		store:     store,
		queue:     queue,
		scheduler: NewScheduler(registry, store, queue, emitter, config.Scheduler, logger),
		pool:      NewWorkerPool(queue, store, providers, parts, emitter, config.Pool, logger),
		query:     NewQuery(store),
		sweeper:   NewSweeper(store, config.Retention, config.SweepInterval, logger),
		logger:    logger.With("component", "task_runner"),
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	r.pool.Start()
}

// Run starts the workers and the sweeper and blocks until ctx is done, then
// stops the workers.
func (r *Runner) Run(ctx context.Context) error {
	r.Start()
	err := r.sweeper.Run(ctx)
	r.Stop()
	return err
}

// Stop closes the queue and stops the workers.
func (r *Runner) Stop() {
	r.queue.Close()
	r.pool.Stop()
	r.logger.Info("task runner stopped", "tasks_retained", r.store.Len())
}

// Scheduler returns the admission path.
func (r *Runner) Scheduler() *Scheduler { return r.scheduler }

// Query returns the read path.
func (r *Runner) Query() *Query { return r.query }
