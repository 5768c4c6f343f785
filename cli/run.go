package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stackhut-runner/config"
	"stackhut-runner/models"
	"stackhut-runner/observability"
	"stackhut-runner/services"
)

var runLocal bool

var runCmd = &cobra.Command{
	Use:   "run <task_id> [aws_id aws_key]",
	Short: "Run one task",
	Long: `Run a single task: fetch input.json, dispatch every call and persist
output.json and service.log.

Remote mode reads and writes {task_id}/<key> in the configured bucket using the
given AWS keys (or the default credential chain when they are omitted).
With --local, ./input.json is read and ./output.json written instead.`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runLocal, "local", false, "Run system locally")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	task, err := taskFromArgs(args, runLocal)
	if err != nil {
		return err
	}

	execLog := observability.NewExecutionLog()
	level := observability.ParseLevel(cfg.Log.Level)
	logger, err := observability.SetupLogger(cfg.Log, execLog.Core(level))
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	defer logger.Sync()

	code := runTask(cmd.Context(), cfg, task, execLog, logger)
	if code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

func taskFromArgs(args []string, local bool) (*models.Task, error) {
	task := &models.Task{ID: args[0], Mode: models.ModeRemote}
	if local {
		task.Mode = models.ModeLocal
	}
	switch len(args) {
	case 3:
		task.Credentials = models.Credentials{AccessKeyID: args[1], SecretAccessKey: args[2]}
	case 2:
		return nil, fmt.Errorf("aws_id and aws_key must be given together")
	}
	return task, nil
}

func runTask(ctx context.Context, cfg *config.Config, task *models.Task, execLog *observability.ExecutionLog, logger *zap.Logger) int {
	if ctx == nil {
		ctx = context.Background()
	}

	desc, err := services.LoadServiceDescriptor(cfg.HutfilePath)
	if err != nil {
		logger.Error("Invalid service configuration", zap.Error(err))
		return 1
	}
	logger.Info("Loaded service descriptor",
		zap.String("service", desc.Name),
		zap.String("stack", string(desc.Stack)),
		zap.String("entrypoint", desc.Entrypoint))

	deps, closeDeps := buildDeps(ctx, cfg, desc, logger)
	defer closeDeps()

	ctx, seg := xray.BeginSegment(ctx, "stackhut-task")
	seg.AddAnnotation("task_id", task.ID)
	seg.AddAnnotation("mode", string(task.Mode))

	runner, err := services.BuildTaskRunner(ctx, task, cfg.WorkDir, deps, execLog, logger)
	if err != nil {
		logger.Error("Failed to set up task", zap.Error(err))
		seg.Close(err)
		return 1
	}

	outcome := runner.Run(ctx)
	seg.Close(outcome.Err)
	return outcome.ExitCode
}
