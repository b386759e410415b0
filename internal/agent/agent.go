// Package agent defines the contract between the execution orchestrator and
// the pluggable units that perform external-API-backed work.
package agent

import (
	"context"
	"encoding/json"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
)

// Artifact is a generated file the orchestrator persists after a
// successful execution.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is what an agent returns from its remote call. CostCents is the
// price of the successful call in currency minor units.
type Result struct {
	Output    json.RawMessage
	CostCents int64
	Artifacts []Artifact
}

// Agent is one pluggable unit performing an external-API-backed task with
// its own validation, quota and cost logic. The step list is static per
// agent type; it is declared once and only indexed into at runtime.
type Agent interface {
	ID() string
	Name() string
	Enabled() bool
	Steps() []progress.Step

	// ValidateParams checks the request against the agent's parameter
	// contract. A false return terminates the execution before any quota
	// is charged.
	ValidateParams(params map[string]any) bool

	// CanExecute is the agent's own quota predicate. An error from the
	// underlying quota backend is treated as a denial by the caller.
	CanExecute(ctx context.Context, userID string) (bool, error)

	// Execute performs the remote call. It is the single slow, fallible
	// step of an execution; any retry against the upstream is the agent's
	// internal concern.
	Execute(ctx context.Context, params map[string]any, userID, sessionID string) (*Result, error)
}

// ReportFunc advances the execution's tracker to the named step. Unknown
// and backwards steps are ignored.
type ReportFunc func(stepID string)

// ProgressReporting is an optional capability: agents that implement it
// drive their own intermediate step transitions during the remote call.
// The orchestrator checks for it with a type assertion; agents without it
// are advanced only at orchestration boundaries.
type ProgressReporting interface {
	Agent
	ExecuteWithProgress(ctx context.Context, params map[string]any, userID, sessionID string, report ReportFunc) (*Result, error)
}
