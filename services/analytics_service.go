package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"stackhut-runner/models"
)

// ErrDrainTimeout is returned when queued events are still pending at the drain deadline
var ErrDrainTimeout = errors.New("analytics drain timed out")

// EventSink delivers one analytics event
type EventSink interface {
	Send(ctx context.Context, ev models.AnalyticsEvent) error
}

// AnalyticsClient sends telemetry from a single background worker fed by a
// bounded queue. Send never blocks the task; Drain bounds shutdown latency.
type AnalyticsClient struct {
	sink        EventSink
	queue       chan models.AnalyticsEvent
	sendTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	closed   bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
	failures atomic.Int64
}

func NewAnalyticsClient(sink EventSink, queueSize int, logger *zap.Logger) *AnalyticsClient {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &AnalyticsClient{
		sink:        sink,
		queue:       make(chan models.AnalyticsEvent, queueSize),
		sendTimeout: 2 * time.Second,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

func (c *AnalyticsClient) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev, ok := <-c.queue:
				if !ok {
					return
				}
				c.deliver(ev)
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *AnalyticsClient) deliver(ev models.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()
	c.logger.Debug("Sending analytics msg", zap.String("collection", ev.Collection))
	if err := c.sink.Send(ctx, ev); err != nil {
		c.failures.Add(1)
		c.logger.Debug("Failed sending analytics msg", zap.String("collection", ev.Collection), zap.Error(err))
	}
}

// Send queues an event. It returns false if the queue is full or draining.
func (c *AnalyticsClient) Send(collection, taskID string, payload map[string]interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	ev := models.AnalyticsEvent{Collection: collection, TaskID: taskID, Payload: payload, Timestamp: time.Now().UTC()}
	select {
	case c.queue <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Drain stops intake and waits up to timeout for queued events to be sent.
// The worker is abandoned rather than joined when the deadline passes.
func (c *AnalyticsClient) Drain(timeout time.Duration) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		c.stopOnce.Do(func() { close(c.stopCh) })
		return fmt.Errorf("%w: %d events pending", ErrDrainTimeout, len(c.queue))
	}
}

// Dropped is the number of events rejected because the queue was full
func (c *AnalyticsClient) Dropped() int64 {
	return c.dropped.Load()
}

// Failures is the number of events the sink rejected
func (c *AnalyticsClient) Failures() int64 {
	return c.failures.Load()
}

// HTTPEventSink posts events to a collection endpoint. The URL may contain
// {collection}, which is replaced per event.
type HTTPEventSink struct {
	client      *http.Client
	urlTemplate string
	maxElapsed  time.Duration
}

func NewHTTPEventSink(client *http.Client, urlTemplate string) *HTTPEventSink {
	return &HTTPEventSink{client: client, urlTemplate: urlTemplate, maxElapsed: 2 * time.Second}
}

func (s *HTTPEventSink) Send(ctx context.Context, ev models.AnalyticsEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	target := strings.ReplaceAll(s.urlTemplate, "{collection}", ev.Collection)

	b := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(s.maxElapsed)), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("analytics endpoint returned %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(fmt.Errorf("analytics endpoint returned %d", resp.StatusCode))
		}
		return nil
	}, b)
}
