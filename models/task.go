package models

import (
	"context"
	"fmt"
	"time"
)

// Mode selects where a task reads its input and writes its output
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeRemote:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown execution mode: %s", s)
	}
}

// Credentials are the object store keys handed to the task on the command line
type Credentials struct {
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
}

// Task is one isolated execution of the service. It is immutable once built.
type Task struct {
	ID          string      `json:"id"`
	Mode        Mode        `json:"mode"`
	Credentials Credentials `json:"-"`
}

// Blob keys relative to the task namespace
const (
	InputKey  = "input.json"
	OutputKey = "output.json"
	LogKey    = "service.log"
)

// TaskState is a step of the lifecycle state machine
type TaskState string

const (
	StateIdle         TaskState = "idle"
	StateStarted      TaskState = "started"
	StateDispatching  TaskState = "dispatching"
	StateShuttingDown TaskState = "shutting_down"
	StateDone         TaskState = "done"
	StateFailed       TaskState = "failed"
)

// Terminal reports whether no further transition is possible
func (s TaskState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// TaskSummary describes a finished task (sent to Redis, stored in task_runs)
type TaskSummary struct {
	TaskID         string    `json:"taskId"`
	Mode           Mode      `json:"mode"`
	ServiceName    string    `json:"serviceName,omitempty"`
	State          TaskState `json:"state"`
	ExitCode       int       `json:"exitCode"`
	CallCount      int       `json:"callCount"`
	FailedCalls    int       `json:"failedCalls"`
	OutputLocation string    `json:"outputLocation,omitempty"`
	LogLocation    string    `json:"logLocation,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	DurationMs     int64     `json:"durationMs"`
}

type taskKey struct{}

// WithTask stores the running task on a context handed to handlers
func WithTask(ctx context.Context, task *Task) context.Context {
	return context.WithValue(ctx, taskKey{}, task)
}

// TaskFromContext returns the task a handler is running under, if any
func TaskFromContext(ctx context.Context) (*Task, bool) {
	task, ok := ctx.Value(taskKey{}).(*Task)
	return task, ok
}
