package model

import "time"

// ProgressEventType classifies the events pushed to observers.
type ProgressEventType string

const (
	EventProgress  ProgressEventType = "progress"
	EventCompleted ProgressEventType = "completed"
	EventFailed    ProgressEventType = "failed"
)

// ProgressEvent is the envelope delivered to each observer connection.
// Message is filled per connection by the broadcast router so that the same
// step renders at the detail level the reader asked for.
type ProgressEvent struct {
	Type              ProgressEventType `json:"type"`
	ExecutionID       string            `json:"execution_id"`
	Step              string            `json:"step,omitempty"`
	Message           string            `json:"message,omitempty"`
	Progress          int               `json:"progress"`
	EstimatedTimeLeft *int              `json:"estimated_time_left,omitempty"` // seconds
	Cancelable        bool              `json:"cancelable"`
	Timestamp         time.Time         `json:"timestamp"`
}
