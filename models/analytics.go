package models

import "time"

// AnalyticsEvent is one telemetry record queued for the background worker
type AnalyticsEvent struct {
	Collection string                 `json:"collection"`
	TaskID     string                 `json:"taskId,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  time.Time              `json:"timestamp"`
}
