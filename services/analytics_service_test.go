package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"stackhut-runner/models"
)

type memorySink struct {
	mu     sync.Mutex
	events []models.AnalyticsEvent
	delay  time.Duration
	err    error
}

func (s *memorySink) Send(ctx context.Context, ev models.AnalyticsEvent) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *memorySink) collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Collection)
	}
	return out
}

func TestAnalyticsDrainDeliversQueued(t *testing.T) {
	sink := &memorySink{}
	c := NewAnalyticsClient(sink, 4, zap.NewNop())
	c.Start()
	for _, name := range []string{"a", "b", "c"} {
		if !c.Send(name, "t", nil) {
			t.Fatalf("Send(%s) rejected", name)
		}
	}
	if err := c.Drain(time.Second); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := sink.collections(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("delivered = %v", got)
	}
	if c.Send("late", "t", nil) {
		t.Fatalf("Send after Drain must be rejected")
	}
}

func TestAnalyticsDropsWhenFull(t *testing.T) {
	c := NewAnalyticsClient(&memorySink{}, 2, zap.NewNop())
	// worker not started: the queue fills up
	c.Send("a", "t", nil)
	c.Send("b", "t", nil)
	if c.Send("c", "t", nil) {
		t.Fatalf("third event should be dropped")
	}
	if c.Dropped() != 1 {
		t.Fatalf("Dropped() = %d", c.Dropped())
	}
}

func TestAnalyticsDrainTimeout(t *testing.T) {
	sink := &memorySink{delay: 300 * time.Millisecond}
	c := NewAnalyticsClient(sink, 8, zap.NewNop())
	c.Start()
	for i := 0; i < 5; i++ {
		c.Send("slow", "t", nil)
	}
	start := time.Now()
	err := c.Drain(50 * time.Millisecond)
	if !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("Drain error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Drain exceeded its deadline")
	}
	// a second drain must not panic
	_ = c.Drain(10 * time.Millisecond)
}

func TestAnalyticsCountsFailures(t *testing.T) {
	c := NewAnalyticsClient(&memorySink{err: errors.New("nope")}, 2, zap.NewNop())
	c.Start()
	c.Send("a", "t", nil)
	if err := c.Drain(time.Second); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if c.Failures() != 1 {
		t.Fatalf("Failures() = %d", c.Failures())
	}
}

func TestHTTPEventSink(t *testing.T) {
	var calls atomic.Int32
	var gotPath string
	var got models.AnalyticsEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := NewHTTPEventSink(srv.Client(), srv.URL+"/events/{collection}")
	err := sink.Send(context.Background(), models.AnalyticsEvent{Collection: "task_finished", TaskID: "t1"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
	if gotPath != "/events/task_finished" || got.TaskID != "t1" {
		t.Fatalf("path %q event %+v", gotPath, got)
	}
}

func TestHTTPEventSinkClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewHTTPEventSink(srv.Client(), srv.URL)
	if err := sink.Send(context.Background(), models.AnalyticsEvent{Collection: "x"}); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}
