package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stackhut-runner/models"
	"stackhut-runner/observability"
)

// SummaryPublisher announces a finished task to the orchestrator
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, summary *models.TaskSummary) error
}

// RunRecorder keeps a history of finished tasks
type RunRecorder interface {
	RecordRun(ctx context.Context, summary *models.TaskSummary) error
}

// ErrInvalidTransition is returned when the lifecycle is driven out of order
var ErrInvalidTransition = errors.New("invalid task state transition")

var allowedTransitions = map[models.TaskState][]models.TaskState{
	models.StateIdle:         {models.StateStarted},
	models.StateStarted:      {models.StateDispatching, models.StateShuttingDown},
	models.StateDispatching:  {models.StateShuttingDown},
	models.StateShuttingDown: {models.StateDone},
}

type TaskRunnerOptions struct {
	Task       *models.Task
	Store      BlobStore
	Dispatcher *Dispatcher
	Normalizer *Normalizer
	Log        *observability.ExecutionLog
	// Logger must write into Log for entries to be persisted
	Logger       *zap.Logger
	Publisher    SummaryPublisher
	Recorder     RunRecorder
	Analytics    *AnalyticsClient
	DrainTimeout time.Duration
}

// RunOutcome is what one Run produced
type RunOutcome struct {
	ExitCode int
	Results  *models.ResultSet
	Output   []byte
	Summary  *models.TaskSummary
	Err      error
}

// TaskRunner drives one task through startup, dispatch and shutdown. Output and
// log persistence are attempted exactly once per run, whatever happened before.
type TaskRunner struct {
	task         *models.Task
	store        BlobStore
	dispatcher   *Dispatcher
	normalizer   *Normalizer
	log          *observability.ExecutionLog
	logger       *zap.Logger
	publisher    SummaryPublisher
	recorder     RunRecorder
	analytics    *AnalyticsClient
	drainTimeout time.Duration

	mu          sync.Mutex
	state       models.TaskState
	history     []models.TaskState
	serviceName string
	ran         bool
}

func NewTaskRunner(opts TaskRunnerOptions) *TaskRunner {
	execLog := opts.Log
	if execLog == nil {
		execLog = observability.NewExecutionLog()
	}
	logger := opts.Logger
	if logger == nil {
		logger = execLog.Logger()
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(logger)
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 2 * time.Second
	}
	return &TaskRunner{
		task:         opts.Task,
		store:        opts.Store,
		dispatcher:   dispatcher,
		normalizer:   normalizer,
		log:          execLog,
		logger:       logger.With(zap.String("task_id", opts.Task.ID)),
		publisher:    opts.Publisher,
		recorder:     opts.Recorder,
		analytics:    opts.Analytics,
		drainTimeout: drainTimeout,
		state:        models.StateIdle,
		history:      []models.TaskState{models.StateIdle},
	}
}

// AddHandler registers a service handler
func (r *TaskRunner) AddHandler(iname string, impl Handler) {
	r.dispatcher.AddHandler(iname, impl)
}

func (r *TaskRunner) State() models.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History lists every state the runner has been in, in order
func (r *TaskRunner) History() []models.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TaskState(nil), r.history...)
}

func (r *TaskRunner) transition(to models.TaskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.state
	ok := to == models.StateFailed && !from.Terminal()
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	r.state = to
	r.history = append(r.history, to)
	r.logger.Debug("Task state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

// Run executes the task once and returns its outcome. ExitCode is 0 only if
// startup, dispatch and both persists succeeded.
func (r *TaskRunner) Run(ctx context.Context) *RunOutcome {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return &RunOutcome{ExitCode: 1, Err: fmt.Errorf("%w: task %s already ran", ErrInvalidTransition, r.task.ID)}
	}
	r.ran = true
	r.mu.Unlock()

	startedAt := time.Now().UTC()
	ctx = models.WithTask(ctx, r.task)
	r.emit("task_started", map[string]interface{}{"mode": string(r.task.Mode)})

	results, runErr := r.execute(ctx)
	if runErr != nil {
		r.logger.Error("Unhandled error during task run", zap.Error(runErr))
	}

	outcome := r.shutdown(ctx, results, runErr)
	outcome.Summary.StartedAt = startedAt
	outcome.Summary.DurationMs = outcome.Summary.FinishedAt.Sub(startedAt).Milliseconds()

	r.finish(ctx, outcome.Summary)
	return outcome
}

// execute covers the Started and Dispatching states
func (r *TaskRunner) execute(ctx context.Context) (results *models.ResultSet, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = models.NewInternalError(map[string]interface{}{"error": fmt.Sprint(p)})
		}
	}()

	if err := r.transition(models.StateStarted); err != nil {
		return nil, err
	}
	batch, err := r.startup(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.transition(models.StateDispatching); err != nil {
		return nil, err
	}
	return r.dispatcher.Dispatch(ctx, batch), nil
}

func (r *TaskRunner) startup(ctx context.Context) (*models.Batch, error) {
	r.logger.Debug("Starting up service")

	raw, err := r.store.Fetch(ctx, models.InputKey)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Fetched input", zap.String("key", models.InputKey), zap.Int("bytes", len(raw)))

	r.mu.Lock()
	r.serviceName = r.normalizer.ServiceName(raw)
	r.mu.Unlock()

	batch, err := r.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if r.logger.Core().Enabled(zap.InfoLevel) {
		normalized, _ := json.Marshal(batch)
		r.logger.Info("Input", zap.ByteString("request", normalized))
	}
	return batch, nil
}

// shutdown persists output then the execution log; each is attempted once
func (r *TaskRunner) shutdown(ctx context.Context, results *models.ResultSet, runErr error) *RunOutcome {
	_ = r.transition(models.StateShuttingDown)
	r.logger.Info("Shutting down service")

	if results == nil {
		results = failureResults(runErr)
	}
	outcome := &RunOutcome{Results: results, Err: runErr}
	summary := &models.TaskSummary{
		TaskID:      r.task.ID,
		Mode:        r.task.Mode,
		CallCount:   len(results.Results),
		FailedCalls: results.Failed(),
	}
	r.mu.Lock()
	summary.ServiceName = r.serviceName
	r.mu.Unlock()

	output, err := json.Marshal(results)
	if err != nil {
		outcome.Err = errors.Join(outcome.Err, fmt.Errorf("encoding output: %w", err))
	} else {
		outcome.Output = output
		r.logger.Info("Output", zap.ByteString("output", output))
		loc, err := r.store.Store(ctx, models.OutputKey, output)
		if err != nil {
			r.logger.Error("Failed to persist output", zap.Error(err))
			outcome.Err = errors.Join(outcome.Err, err)
		} else {
			summary.OutputLocation = loc
			r.logger.Info("Persisted output", zap.String("location", loc))
		}
	}

	final := models.StateDone
	if outcome.Err != nil {
		final = models.StateFailed
		summary.ErrorMessage = outcome.Err.Error()
		r.logger.Error("Task failed", zap.Error(outcome.Err))
	} else {
		r.logger.Info("Service call complete",
			zap.Int("calls", summary.CallCount),
			zap.Int("failed_calls", summary.FailedCalls))
	}

	loc, err := r.store.Store(ctx, models.LogKey, r.log.Bytes())
	if err != nil {
		r.logger.Error("Failed to persist execution log", zap.Error(err))
		outcome.Err = errors.Join(outcome.Err, err)
		summary.ErrorMessage = outcome.Err.Error()
		final = models.StateFailed
	} else {
		summary.LogLocation = loc
	}

	_ = r.transition(final)
	summary.State = final
	summary.FinishedAt = time.Now().UTC()
	if final == models.StateFailed {
		outcome.ExitCode = 1
	}
	summary.ExitCode = outcome.ExitCode
	outcome.Summary = summary
	return outcome
}

// finish runs the best-effort side channels after persistence
func (r *TaskRunner) finish(ctx context.Context, summary *models.TaskSummary) {
	if r.publisher != nil {
		if err := r.publisher.PublishSummary(ctx, summary); err != nil {
			r.logger.Warn("Failed to publish task summary", zap.Error(err))
		}
	}
	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, summary); err != nil {
			r.logger.Warn("Failed to record task run", zap.Error(err))
		}
	}
	r.emit("task_finished", map[string]interface{}{
		"state":        string(summary.State),
		"exit_code":    summary.ExitCode,
		"calls":        summary.CallCount,
		"failed_calls": summary.FailedCalls,
		"duration_ms":  summary.DurationMs,
	})
	if r.analytics != nil {
		if err := r.analytics.Drain(r.drainTimeout); err != nil {
			r.logger.Warn("Analytics not fully drained", zap.Error(err))
		}
	}
}

func (r *TaskRunner) emit(collection string, payload map[string]interface{}) {
	if r.analytics == nil {
		return
	}
	if !r.analytics.Send(collection, r.task.ID, payload) {
		r.logger.Debug("Analytics event dropped", zap.String("collection", collection))
	}
}

// failureResults is the output written when no call could be dispatched
func failureResults(err error) *models.ResultSet {
	if err == nil {
		err = errors.New("task produced no results")
	}
	rpcErr, ok := models.AsRPCError(err)
	if !ok {
		rpcErr = models.NewInternalError(map[string]interface{}{"error": err.Error()}).WithCause(err)
	}
	return &models.ResultSet{
		Single:  true,
		Results: []models.RPCResult{{ID: "", Error: rpcErr}},
	}
}
