package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	StatusPending    ExecutionStatus = "pending"
	StatusInProgress ExecutionStatus = "in_progress"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExecutionRecord is the persisted metadata for one agent execution.
// Exactly one of {Output, Error} is set once Status is terminal; CostCents
// is set only on completed executions. Records are retained for usage
// accounting and never deleted programmatically.
type ExecutionRecord struct {
	ExecutionID string          `json:"execution_id"`
	AgentID     string          `json:"agent_id"`
	UserID      string          `json:"user_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Params      json.RawMessage `json:"params,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	CostCents   int64           `json:"cost_cents"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionPatch is a partial update applied to an existing record.
// Nil fields are left untouched.
type ExecutionPatch struct {
	Status      *ExecutionStatus
	Output      json.RawMessage
	Error       *string
	CostCents   *int64
	CompletedAt *time.Time
}

// ExecutionInfo is returned to the client after an execution is admitted.
type ExecutionInfo struct {
	ExecutionID string          `json:"execution_id"`
	AgentID     string          `json:"agent_id"`
	Status      ExecutionStatus `json:"status"`
}

// ExecutionStatusView is the caller-facing status snapshot.
type ExecutionStatusView struct {
	ExecutionID string          `json:"execution_id"`
	Status      ExecutionStatus `json:"status"`
	Progress    int             `json:"progress"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// AgentNotFoundError is returned as 404 when the agent id is not registered.
type AgentNotFoundError struct {
	AgentID string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("Agent not found: %s", e.AgentID)
}

// AgentDisabledError is returned as 403 when the agent exists but is disabled.
type AgentDisabledError struct {
	AgentID string
}

func (e *AgentDisabledError) Error() string {
	return fmt.Sprintf("Agent disabled: %s", e.AgentID)
}

// InvalidParametersError terminates an execution before any quota is charged.
type InvalidParametersError struct {
	AgentID string
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("Invalid parameters for agent %s", e.AgentID)
}

// QuotaExceededError terminates an execution when the agent's execute
// predicate denies the user. A failing quota backend is treated as a denial.
type QuotaExceededError struct {
	AgentID string
	UserID  string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("Quota exceeded for agent %s", e.AgentID)
}

// CancelledByUser is the error message recorded on user cancellation.
const CancelledByUser = "Cancelled by user"
