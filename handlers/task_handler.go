package handlers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stackhut-runner/middleware"
	"stackhut-runner/models"
	"stackhut-runner/observability"
	"stackhut-runner/services"
)

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type TaskHandler struct {
	deps       services.RunnerDeps
	baseDir    string
	downloader *services.Downloader
	logger     *zap.Logger
	level      zapcore.LevelEnabler
}

func NewTaskHandler(deps services.RunnerDeps, baseDir string, downloader *services.Downloader, logger *zap.Logger, level zapcore.LevelEnabler) *TaskHandler {
	return &TaskHandler{
		deps:       deps,
		baseDir:    baseDir,
		downloader: downloader,
		logger:     logger,
		level:      level,
	}
}

// RunTaskResponse is returned after a local task run
type RunTaskResponse struct {
	TaskID   string              `json:"task_id"`
	ExitCode int                 `json:"exit_code"`
	State    models.TaskState    `json:"state"`
	Output   json.RawMessage     `json:"output,omitempty"`
	Summary  *models.TaskSummary `json:"summary"`
}

func (h *TaskHandler) taskDir(id string) string {
	return filepath.Join(h.baseDir, "tasks", id)
}

// RunTask godoc
// @Summary Run a task locally
// @Description Seed input.json from the body or input_url, run the task in local mode and return its output
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param input_url query string false "URL to download input.json from"
// @Success 200 {object} RunTaskResponse
// @Failure 400 {object} map[string]string
// @Router /tasks/{id}/run [post]
func (h *TaskHandler) RunTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if !taskIDPattern.MatchString(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid task ID",
		})
	}
	ctx := middleware.GetXRayContext(c)

	workDir := h.taskDir(id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	inputPath := filepath.Join(workDir, models.InputKey)

	if inputURL := c.Query("input_url"); inputURL != "" {
		downloaded, err := h.downloader.DownloadFile(ctx, inputURL, workDir)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if downloaded != inputPath {
			if err := os.Rename(downloaded, inputPath); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
		}
	} else {
		body := c.Body()
		if len(body) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "request body or input_url is required",
			})
		}
		if err := os.WriteFile(inputPath, body, 0644); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	execLog := observability.NewExecutionLog()
	logger := h.logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, execLog.Core(h.level))
	}))

	task := &models.Task{ID: id, Mode: models.ModeLocal}
	runner, err := services.BuildTaskRunner(ctx, task, workDir, h.deps, execLog, logger)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	outcome := runner.Run(ctx)

	return c.JSON(RunTaskResponse{
		TaskID:   id,
		ExitCode: outcome.ExitCode,
		State:    outcome.Summary.State,
		Output:   outcome.Output,
		Summary:  outcome.Summary,
	})
}

// GetTask godoc
// @Summary Get the latest run of a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} models.TaskSummary
// @Failure 404 {object} map[string]string
// @Router /tasks/{id} [get]
func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if !taskIDPattern.MatchString(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid task ID",
		})
	}
	ctx := middleware.GetXRayContext(c)

	if h.deps.DB != nil {
		run, err := h.deps.DB.GetLatestRun(ctx, id)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if run != nil {
			return c.JSON(run)
		}
	}
	if h.deps.Redis != nil {
		summary, err := h.deps.Redis.GetSummary(ctx, id)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if summary != nil {
			return c.JSON(summary)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "task not found: " + id,
	})
}

// GetTaskOutput godoc
// @Summary Get the output.json of a local task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} object
// @Failure 404 {object} map[string]string
// @Router /tasks/{id}/output [get]
func (h *TaskHandler) GetTaskOutput(c *fiber.Ctx) error {
	id := c.Params("id")
	if !taskIDPattern.MatchString(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid task ID",
		})
	}
	data, err := os.ReadFile(filepath.Join(h.taskDir(id), models.OutputKey))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "output not found: " + id,
		})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// ListRuns godoc
// @Summary List recent task runs
// @Tags tasks
// @Produce json
// @Param limit query int false "Number of results to return" default(20)
// @Success 200 {array} models.TaskSummary
// @Router /tasks [get]
func (h *TaskHandler) ListRuns(c *fiber.Ctx) error {
	if h.deps.DB == nil {
		return c.JSON([]models.TaskSummary{})
	}
	runs, err := h.deps.DB.ListRuns(middleware.GetXRayContext(c), c.QueryInt("limit", 20))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if runs == nil {
		runs = []models.TaskSummary{}
	}
	return c.JSON(runs)
}
