package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"

	"stackhut-runner/config"
	"stackhut-runner/models"
)

const ResultKeyPrefix = "result:"

type RedisService struct {
	client        *redis.Client
	analyticsList string
	resultTTL     time.Duration
}

func NewRedisService(cfg config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisService{client: client, analyticsList: cfg.AnalyticsList, resultTTL: cfg.ResultTTL}
}

// Send pushes an analytics event onto the analytics list
func (r *RedisService) Send(ctx context.Context, ev models.AnalyticsEvent) error {
	var err error
	xray.Capture(ctx, "Redis.LPush", func(ctx1 context.Context) error {
		jsonData, marshalErr := json.Marshal(ev)
		if marshalErr != nil {
			err = marshalErr
			return marshalErr
		}
		err = r.client.LPush(ctx, r.analyticsList, string(jsonData)).Err()

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.list", r.analyticsList)
			seg.AddMetadata("redis.operation", "LPUSH")
		}
		return err
	})
	return err
}

// PublishSummary stores the task summary under result:{task_id} for the orchestrator
func (r *RedisService) PublishSummary(ctx context.Context, summary *models.TaskSummary) error {
	var err error
	xray.Capture(ctx, "Redis.Set", func(ctx1 context.Context) error {
		jsonData, marshalErr := json.Marshal(summary)
		if marshalErr != nil {
			err = marshalErr
			return marshalErr
		}
		key := ResultKeyPrefix + summary.TaskID
		err = r.client.Set(ctx, key, jsonData, r.resultTTL).Err()

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "SET")
		}
		return err
	})
	return err
}

// GetSummary returns the published summary for a task, or nil if none exists
func (r *RedisService) GetSummary(ctx context.Context, taskID string) (*models.TaskSummary, error) {
	var result *models.TaskSummary
	var finalErr error

	xray.Capture(ctx, "Redis.Get", func(ctx1 context.Context) error {
		key := ResultKeyPrefix + taskID
		jsonData, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			finalErr = err
			return err
		}

		var summary models.TaskSummary
		if err := json.Unmarshal([]byte(jsonData), &summary); err != nil {
			finalErr = fmt.Errorf("decoding summary %s: %w", key, err)
			return finalErr
		}
		result = &summary

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.key", key)
			seg.AddMetadata("redis.operation", "GET")
		}
		return nil
	})

	return result, finalErr
}

// Ping checks Redis connection
func (r *RedisService) Ping(ctx context.Context) error {
	var err error
	xray.Capture(ctx, "Redis.Ping", func(ctx1 context.Context) error {
		err = r.client.Ping(ctx).Err()
		return err
	})
	return err
}

func (r *RedisService) Close() error {
	return r.client.Close()
}
