package services

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"stackhut-runner/config"
	"stackhut-runner/models"
	"stackhut-runner/observability"
)

// RunnerDeps are the process-wide collaborators shared by every task. Nil
// Redis, DB or HTTPClient disable the features that need them.
type RunnerDeps struct {
	Config     *config.Config
	Descriptor *models.ServiceDescriptor
	Redis      *RedisService
	DB         *DBService
	HTTPClient *http.Client
}

// BuildTaskRunner wires a TaskRunner for task running in workDir. When the
// service stack is foreign, the bridge is registered for every declared interface.
func BuildTaskRunner(ctx context.Context, task *models.Task, workDir string, deps RunnerDeps, execLog *observability.ExecutionLog, logger *zap.Logger) (*TaskRunner, error) {
	cfg := deps.Config
	store, err := NewBlobStore(ctx, task, workDir, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	dispatcher := NewDispatcher(logger)
	if deps.Descriptor != nil && deps.Descriptor.Stack.Foreign() {
		bridge, err := NewBridge(deps.Descriptor, cfg.Shim.Interpreters, workDir, task.ID, cfg.Shim.Timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("creating bridge: %w", err)
		}
		for _, iname := range deps.Descriptor.InterfaceNames() {
			dispatcher.AddHandler(iname, bridge)
		}
	}

	opts := TaskRunnerOptions{
		Task:         task,
		Store:        store,
		Dispatcher:   dispatcher,
		Log:          execLog,
		Logger:       logger,
		DrainTimeout: cfg.Analytics.DrainTimeout,
	}
	if deps.Redis != nil {
		opts.Publisher = deps.Redis
	}
	if deps.DB != nil {
		opts.Recorder = deps.DB
	}
	if sink := analyticsSink(cfg.Analytics, deps); sink != nil {
		opts.Analytics = NewAnalyticsClient(sink, cfg.Analytics.QueueSize, logger)
		opts.Analytics.Start()
	}
	return NewTaskRunner(opts), nil
}

func analyticsSink(cfg config.AnalyticsConfig, deps RunnerDeps) EventSink {
	if !cfg.Enabled {
		return nil
	}
	if cfg.URL != "" && deps.HTTPClient != nil {
		return NewHTTPEventSink(deps.HTTPClient, cfg.URL)
	}
	if deps.Redis != nil {
		return deps.Redis
	}
	return nil
}
