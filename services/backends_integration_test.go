package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"stackhut-runner/config"
	"stackhut-runner/models"
)

// These tests need live backends and are skipped unless
// STACKHUT_TEST_REDIS_ADDR or STACKHUT_TEST_DATABASE_DSN is set.

func testSummary() *models.TaskSummary {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.TaskSummary{
		TaskID:      "it-" + uuid.NewString(),
		Mode:        models.ModeLocal,
		ServiceName: "calc",
		State:       models.StateDone,
		CallCount:   2,
		FailedCalls: 1,
		StartedAt:   now.Add(-time.Second),
		FinishedAt:  now,
		DurationMs:  1000,
	}
}

func TestRedisServiceSummaryRoundTrip(t *testing.T) {
	addr := os.Getenv("STACKHUT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STACKHUT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r := NewRedisService(config.RedisConfig{Addr: addr, AnalyticsList: "stackhut:analytics:test", ResultTTL: time.Minute})
	defer r.Close()
	if err := r.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	summary := testSummary()
	if err := r.PublishSummary(ctx, summary); err != nil {
		t.Fatalf("PublishSummary: %v", err)
	}
	got, err := r.GetSummary(ctx, summary.TaskID)
	if err != nil || got == nil {
		t.Fatalf("GetSummary = %v, %v", got, err)
	}
	if got.FailedCalls != 1 || got.ServiceName != "calc" {
		t.Errorf("summary = %+v", got)
	}

	missing, err := r.GetSummary(ctx, "never-ran-"+uuid.NewString())
	if err != nil || missing != nil {
		t.Errorf("missing summary = %v, %v", missing, err)
	}

	if err := r.Send(ctx, models.AnalyticsEvent{Collection: "task_finished", TaskID: summary.TaskID}); err != nil {
		t.Errorf("Send: %v", err)
	}
}

func TestDBServiceRecordsRuns(t *testing.T) {
	dsn := os.Getenv("STACKHUT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("STACKHUT_TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	db, err := NewDBService(dsn)
	if err != nil {
		t.Fatalf("NewDBService: %v", err)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	summary := testSummary()
	if err := db.RecordRun(ctx, summary); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	got, err := db.GetLatestRun(ctx, summary.TaskID)
	if err != nil || got == nil {
		t.Fatalf("GetLatestRun = %v, %v", got, err)
	}
	if got.State != models.StateDone || got.CallCount != 2 {
		t.Errorf("run = %+v", got)
	}

	runs, err := db.ListRuns(ctx, 5)
	if err != nil || len(runs) == 0 {
		t.Fatalf("ListRuns = %v, %v", runs, err)
	}
}
