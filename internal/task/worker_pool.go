package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/events"
	"github.com/phrazzld/stockroom/internal/part"
	"github.com/phrazzld/stockroom/internal/provider"
	"github.com/phrazzld/stockroom/internal/redact"
	"github.com/sethvargo/go-retry"
)

// persistTimeout bounds the part merge, which runs outside the task budget
// so a nearly exhausted budget cannot lose a finished result.
const persistTimeout = 10 * time.Second

// ProviderLookup resolves provider adapters by name.
type ProviderLookup interface {
	Lookup(name string) (*provider.Provider, bool)
}

// WorkerPoolConfig holds configuration for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many tasks execute concurrently.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// TaskBudget is the wall-clock limit for a whole task.
	TaskBudget time.Duration

	// AttemptTimeout bounds a single provider invocation.
	AttemptTimeout time.Duration

	// MaxAttempts is the number of tries per capability for retryable errors.
	MaxAttempts int

	// BackoffBase is the first retry delay; later delays double.
	BackoffBase time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:    4,
		TaskBudget:     2 * time.Minute,
		AttemptTimeout: 20 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    500 * time.Millisecond,
	}
}

// WorkerPool executes admitted tasks on a fixed set of goroutines.
type WorkerPool struct {
	queue     <-chan string
	store     Store
	providers ProviderLookup
	parts     part.Store
	emitter   events.EventEmitter
	config    WorkerPoolConfig

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewWorkerPool creates a worker pool reading task IDs from queue.
func NewWorkerPool(
	queue *Queue,
	store Store,
	providers ProviderLookup,
	parts part.Store,
	emitter events.EventEmitter,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	logger = logger.With("component", "worker_pool")

	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	defaults := DefaultWorkerPoolConfig()
	if config.TaskBudget <= 0 {
		config.TaskBudget = defaults.TaskBudget
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = defaults.AttemptTimeout
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:     queue.Channel(),
		store:     store,
		providers: providers,
		parts:     parts,
		emitter:   emitter,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool", "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals workers to exit and waits for them. Running tasks observe
// the cancellation and fail with kind "shutdown".
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return
		case taskID, ok := <-p.queue:
			if !ok {
				p.logger.Debug("task queue closed, stopping worker", "worker_id", id)
				return
			}
			p.execute(taskID, id)
		}
	}
}

// execute claims and runs one task, then writes its terminal state.
func (p *WorkerPool) execute(taskID string, workerID int) {
	t, err := p.store.Claim(taskID)
	if err != nil {
		// Cancelled while queued, or swept.
		p.logger.Debug("skipping unclaimable task", "task_id", taskID, "error", err)
		return
	}

	logger := p.logger.With(
		"task_id", t.ID,
		"task_type", t.Type,
		"provider", t.Provider,
		"worker_id", workerID,
	)
	logger.Info("processing task")
	emit(p.ctx, p.emitter, logger, t)

	ctx, cancel := context.WithTimeout(p.ctx, p.config.TaskBudget)
	defer cancel()

	outcome := p.run(ctx, t, logger)

	final, err := p.store.Finish(t.ID, outcome)
	if err != nil {
		logger.Error("failed to record terminal state", "state", outcome.State, "error", err)
		return
	}
	emit(p.ctx, p.emitter, logger, final)

	switch final.State {
	case StateCompleted:
		logger.Info("task completed successfully")
	case StateCancelled:
		logger.Info("task cancelled", "succeeded", len(resultSucceeded(final.Result)))
	default:
		logger.Warn("task failed", "error_kind", final.ErrorKind, "error", final.ErrorMessage)
	}
}

// run invokes each requested capability in order and returns the outcome.
func (p *WorkerPool) run(ctx context.Context, t *Task, logger *slog.Logger) Outcome {
	prov, ok := p.providers.Lookup(t.Provider)
	if !ok {
		return Outcome{
			State:        StateFailed,
			ErrorMessage: fmt.Sprintf("%s: provider %s is not available", ErrConfiguration, t.Provider),
			ErrorKind:    "configuration",
		}
	}

	n := len(t.RequestedCapabilities)
	result := &Result{Artifacts: make(map[capability.Name]provider.Artifact, n)}

	for i, c := range t.RequestedCapabilities {
		if p.store.CancelRequested(t.ID) {
			return Outcome{State: StateCancelled, Result: partialResult(result)}
		}

		if updated, err := p.store.Progress(t.ID, i*100/n, string(c)); err == nil {
			emit(ctx, p.emitter, logger, updated)
		}

		artifact, err := p.invoke(ctx, prov, c, t)
		if err != nil {
			return p.failure(ctx, t, c, err, result, logger)
		}
		result.Artifacts[c] = artifact
		result.Succeeded = append(result.Succeeded, c)
	}

	if err := p.persist(t, result); err != nil {
		logger.Error("failed to merge enrichment", "error", err)
		return Outcome{
			State:        StateFailed,
			Result:       result,
			ErrorMessage: redact.String(fmt.Sprintf("saving enrichment for %s failed: %v", t.SubjectID, err)),
			ErrorKind:    KindPersistence,
		}
	}
	return Outcome{State: StateCompleted, Result: result}
}

// invoke runs capability c with retries for retryable errors.
func (p *WorkerPool) invoke(ctx context.Context, prov *provider.Provider, c capability.Name, t *Task) (provider.Artifact, error) {
	backoff := retry.WithMaxRetries(uint64(p.config.MaxAttempts-1), retry.NewExponential(p.config.BackoffBase))

	attempt := 0
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (provider.Artifact, error) {
		attempt++
		a, err := p.callOnce(ctx, prov, c, t)
		if err == nil {
			return a, nil
		}
		if provider.IsRetryable(err) && ctx.Err() == nil {
			p.logger.Debug("retrying capability",
				"task_id", t.ID,
				"capability", c,
				"attempt", attempt,
				"error", err)
			return provider.Artifact{}, retry.RetryableError(err)
		}
		return provider.Artifact{}, err
	})
}

// callOnce invokes the adapter under the attempt timeout. The caller is
// released when the timeout fires even if the adapter never returns.
func (p *WorkerPool) callOnce(ctx context.Context, prov *provider.Provider, c capability.Name, t *Task) (provider.Artifact, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.config.AttemptTimeout)
	defer cancel()

	type outcome struct {
		artifact provider.Artifact
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("provider %s panicked: %v", prov.Name(), r)}
			}
		}()
		a, err := prov.Invoke(attemptCtx, c, t.SubjectID, t.Params)
		done <- outcome{artifact: a, err: err}
	}()

	select {
	case o := <-done:
		return o.artifact, o.err
	case <-attemptCtx.Done():
		return provider.Artifact{}, attemptCtx.Err()
	}
}

// failure builds the failed outcome for capability c, keeping and
// persisting whatever already succeeded.
func (p *WorkerPool) failure(
	ctx context.Context,
	t *Task,
	c capability.Name,
	err error,
	result *Result,
	logger *slog.Logger,
) Outcome {
	out := Outcome{State: StateFailed, Result: partialResult(result)}

	switch {
	case p.ctx.Err() != nil:
		out.ErrorKind = KindShutdown
		out.ErrorMessage = fmt.Sprintf("%s %s interrupted by shutdown", t.Provider, c)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		out.ErrorKind = KindTimeout
		out.ErrorMessage = fmt.Sprintf("%s of %s while running %s %s",
			ErrTimeout, p.config.TaskBudget, t.Provider, c)
	case provider.IsTimeout(err):
		// Every attempt hit the attempt timeout before the budget ran out.
		out.ErrorKind = KindTimeout
		out.ErrorMessage = fmt.Sprintf("%s %s timed out: no response within %s after %d attempts",
			t.Provider, c, p.config.AttemptTimeout, p.config.MaxAttempts)
	default:
		out.ErrorKind = provider.Kind(err)
		out.ErrorMessage = redact.String(fmt.Sprintf("%s %s failed: %v", t.Provider, c, err))
	}

	if out.Result != nil {
		if perr := p.persist(t, out.Result); perr != nil {
			logger.Error("failed to merge partial enrichment", "error", perr)
		}
	}
	return out
}

// persist merges result into the part record.
func (p *WorkerPool) persist(t *Task, result *Result) error {
	artifacts := make(map[string]any, len(result.Artifacts))
	for c, a := range result.Artifacts {
		artifacts[string(c)] = a
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return p.parts.MergeEnrichment(ctx, t.SubjectID, part.Enrichment{
		TaskID:    t.ID,
		Provider:  t.Provider,
		Artifacts: artifacts,
		Partial:   result.Partial,
	})
}

// partialResult marks r partial, or returns nil when nothing succeeded.
func partialResult(r *Result) *Result {
	if len(r.Succeeded) == 0 {
		return nil
	}
	r.Partial = true
	return r
}

func resultSucceeded(r *Result) []capability.Name {
	if r == nil {
		return nil
	}
	return r.Succeeded
}
