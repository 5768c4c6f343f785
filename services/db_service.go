package services

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"stackhut-runner/models"
)

type DBService struct {
	db *sql.DB
}

func NewDBService(dsn string) (*DBService, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &DBService{db: db}, nil
}

func (s *DBService) Close() error {
	return s.db.Close()
}

// InitSchema creates tables if they don't exist
func (s *DBService) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_runs (
		id BIGSERIAL PRIMARY KEY,
		task_id VARCHAR(255) NOT NULL,
		mode VARCHAR(20) NOT NULL,
		service_name VARCHAR(255),
		state VARCHAR(20) NOT NULL,
		exit_code INTEGER NOT NULL,
		call_count INTEGER NOT NULL DEFAULT 0,
		failed_calls INTEGER NOT NULL DEFAULT 0,
		output_location TEXT,
		log_location TEXT,
		error_message TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_task_runs_task_id ON task_runs(task_id);
	CREATE INDEX IF NOT EXISTS idx_task_runs_started_at ON task_runs(started_at DESC);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordRun inserts one finished task
func (s *DBService) RecordRun(ctx context.Context, summary *models.TaskSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_runs (task_id, mode, service_name, state, exit_code, call_count, failed_calls,
			output_location, log_location, error_message, started_at, finished_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, summary.TaskID, string(summary.Mode), summary.ServiceName, string(summary.State), summary.ExitCode,
		summary.CallCount, summary.FailedCalls, summary.OutputLocation, summary.LogLocation, summary.ErrorMessage,
		summary.StartedAt, summary.FinishedAt, summary.DurationMs)
	return err
}

// GetLatestRun returns the most recent run of a task, or nil if it never ran
func (s *DBService) GetLatestRun(ctx context.Context, taskID string) (*models.TaskSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, mode, service_name, state, exit_code, call_count, failed_calls,
			output_location, log_location, error_message, started_at, finished_at, duration_ms
		FROM task_runs WHERE task_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ListRuns returns the most recent runs across all tasks
func (s *DBService) ListRuns(ctx context.Context, limit int) ([]models.TaskSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, mode, service_name, state, exit_code, call_count, failed_calls,
			output_location, log_location, error_message, started_at, finished_at, duration_ms
		FROM task_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]models.TaskSummary, error) {
	var runs []models.TaskSummary
	for rows.Next() {
		var run models.TaskSummary
		var mode, state string
		var serviceName, outputLocation, logLocation, errorMessage sql.NullString

		err := rows.Scan(&run.TaskID, &mode, &serviceName, &state, &run.ExitCode, &run.CallCount, &run.FailedCalls,
			&outputLocation, &logLocation, &errorMessage, &run.StartedAt, &run.FinishedAt, &run.DurationMs)
		if err != nil {
			return nil, err
		}
		run.Mode = models.Mode(mode)
		run.State = models.TaskState(state)
		if serviceName.Valid {
			run.ServiceName = serviceName.String
		}
		if outputLocation.Valid {
			run.OutputLocation = outputLocation.String
		}
		if logLocation.Valid {
			run.LogLocation = logLocation.String
		}
		if errorMessage.Valid {
			run.ErrorMessage = errorMessage.String
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
