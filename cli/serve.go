package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "stackhut-runner/docs"

	"stackhut-runner/config"
	"stackhut-runner/handlers"
	"stackhut-runner/middleware"
	"stackhut-runner/observability"
	"stackhut-runner/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local task harness",
	Long: `Start an HTTP server that runs local-mode tasks on demand. Each request gets
its own working directory under <work_dir>/tasks/<id>.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level := observability.ParseLevel(cfg.Log.Level)
	zlog, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	defer zlog.Sync()

	desc, err := services.LoadServiceDescriptor(cfg.HutfilePath)
	if err != nil {
		return err
	}
	// tasks run in their own directories, so the worker script must be absolute
	if !filepath.IsAbs(desc.Entrypoint) {
		desc.Entrypoint, err = filepath.Abs(filepath.Join(cfg.WorkDir, desc.Entrypoint))
		if err != nil {
			return fmt.Errorf("resolving entrypoint: %w", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, closeDeps := buildDeps(ctx, cfg, desc, zlog)
	defer closeDeps()

	downloader := services.NewDownloader(middleware.GetXRayHTTPClient(0), zlog)
	taskHandler := handlers.NewTaskHandler(deps, cfg.WorkDir, downloader, zlog, level)

	app := fiber.New(fiber.Config{
		AppName:      "StackHut Runner",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Shim.Timeout + 30*time.Second,
	})

	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(middleware.XRayMiddleware(desc.Name, zlog))

	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP", "service": desc.Name, "stack": desc.Stack})
	})

	api := app.Group("/api")
	api.Get("/tasks", taskHandler.ListRuns)
	api.Get("/tasks/:id", taskHandler.GetTask)
	api.Get("/tasks/:id/output", taskHandler.GetTaskOutput)
	api.Post("/tasks/:id/run", taskHandler.RunTask)

	zlog.Info("StackHut runner harness starting",
		zap.String("port", cfg.Server.Port),
		zap.String("service", desc.Name),
		zap.String("work_dir", cfg.WorkDir))
	return app.Listen(":" + cfg.Server.Port)
}
