package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/artifact"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/store"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/stream"
)

// DefaultCallTimeout is the fixed ceiling for one remote generative-API
// call. Exceeding it surfaces as an ordinary remote-call failure.
const DefaultCallTimeout = 90 * time.Second

// Executor drives agent executions through their lifecycle:
// pending -> in_progress -> {completed | failed}.
//
// Each admitted execution runs as an independent goroutine; that goroutine
// is the only writer of the execution's record. Cancel races against the
// runner are resolved by a per-execution finalize guard, so a record is
// finalized exactly once.
type Executor struct {
	agents    *agent.Registry
	records   store.ExecutionStore
	artifacts artifact.Store
	router    *stream.Router
	logger    *slog.Logger

	CallTimeout time.Duration

	mu      sync.Mutex
	running map[string]*execution
}

// execution is the live state of one in-flight run. It exists only between
// admission and the terminal broadcast; afterwards the record alone remains.
type execution struct {
	mu        sync.Mutex
	finalized bool

	id        string
	agentID   string
	userID    string
	sessionID string
	tracker   *progress.Tracker
}

func (x *execution) tryFinalize() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.finalized {
		return false
	}
	x.finalized = true
	return true
}

func (x *execution) isFinalized() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.finalized
}

// NewExecutor wires the orchestrator. All collaborators are injected; the
// executor owns no global state.
func NewExecutor(
	agents *agent.Registry,
	records store.ExecutionStore,
	artifacts artifact.Store,
	router *stream.Router,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		agents:      agents,
		records:     records,
		artifacts:   artifacts,
		router:      router,
		logger:      logger,
		CallTimeout: DefaultCallTimeout,
		running:     make(map[string]*execution),
	}
}

// StartExecution admits a request. Unknown or disabled agents fail before
// any record is created. On success the execution record exists with
// status pending, an initial 0% progress broadcast has been sent, and the
// run continues asynchronously.
func (e *Executor) StartExecution(ctx context.Context, agentID string, params map[string]any, userID, sessionID string) (*model.ExecutionInfo, error) {
	a, err := e.agents.Resolve(agentID)
	if err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	rec := &model.ExecutionRecord{
		ExecutionID: uuid.NewString(),
		AgentID:     agentID,
		UserID:      userID,
		SessionID:   sessionID,
		Status:      model.StatusPending,
		Params:      paramsJSON,
		StartedAt:   time.Now().UTC(),
	}
	if err := e.records.Create(ctx, rec); err != nil {
		return nil, err
	}

	exec := &execution{
		id:        rec.ExecutionID,
		agentID:   agentID,
		userID:    userID,
		sessionID: sessionID,
		tracker:   progress.NewTracker(a.Steps()),
	}
	e.mu.Lock()
	e.running[exec.id] = exec
	e.mu.Unlock()

	e.broadcastProgress(exec)

	go e.run(a, exec, params)

	return &model.ExecutionInfo{
		ExecutionID: rec.ExecutionID,
		AgentID:     agentID,
		Status:      model.StatusPending,
	}, nil
}

// run drives one execution to a terminal state. It is the only goroutine
// mutating this execution's record; Cancel only wins via the finalize guard.
func (e *Executor) run(a agent.Agent, exec *execution, params map[string]any) {
	ctx := context.Background()

	// Parameter validation terminates before any quota is consulted or
	// charged.
	if !a.ValidateParams(params) {
		e.fail(ctx, exec, (&model.InvalidParametersError{AgentID: exec.agentID}).Error())
		return
	}

	if !e.patchIfLive(ctx, exec, model.ExecutionPatch{Status: statusPtr(model.StatusInProgress)}) {
		return
	}

	// The agent's own quota predicate; a failing quota backend denies
	// (fail-closed), it is not retried.
	allowed, err := a.CanExecute(ctx, exec.userID)
	if err != nil {
		e.logger.Warn("quota predicate failed, denying execution",
			"execution_id", exec.id, "agent_id", exec.agentID, "error", err)
		allowed = false
	}
	if !allowed {
		e.fail(ctx, exec, (&model.QuotaExceededError{AgentID: exec.agentID, UserID: exec.userID}).Error())
		return
	}
	if exec.isFinalized() {
		return
	}

	// The single slow, fallible step. The orchestrator never retries it.
	callCtx, cancel := context.WithTimeout(ctx, e.CallTimeout)
	defer cancel()

	var result *agent.Result
	if reporting, ok := a.(agent.ProgressReporting); ok {
		result, err = reporting.ExecuteWithProgress(callCtx, params, exec.userID, exec.sessionID,
			func(stepID string) { e.advance(exec, stepID) })
	} else {
		result, err = a.Execute(callCtx, params, exec.userID, exec.sessionID)
	}

	// Cancellation is cooperative: a call dispatched before Cancel ran to
	// completion anyway and its result is discarded here.
	if exec.isFinalized() {
		return
	}
	if err != nil {
		e.fail(ctx, exec, err.Error())
		return
	}

	if steps := a.Steps(); len(steps) > 0 {
		e.advance(exec, steps[len(steps)-1].ID)
	}

	// Artifact persistence is best-effort: the user-visible result was
	// already produced and is not discarded over a bookkeeping failure.
	for _, art := range result.Artifacts {
		if _, err := e.artifacts.Save(ctx, exec.id, art.Name, art.ContentType, art.Data); err != nil {
			e.logger.Warn("artifact persistence failed",
				"execution_id", exec.id, "artifact", art.Name, "error", err)
		}
	}

	e.complete(ctx, exec, result)
}

// Cancel finalizes a live execution as failed with no cost charged.
// Cancelling an unknown or already-terminal execution is a no-op returning
// false. The broadcast terminal update reports 0% and is not cancelable.
func (e *Executor) Cancel(executionID string) bool {
	e.mu.Lock()
	exec := e.running[executionID]
	e.mu.Unlock()
	if exec == nil {
		return false
	}
	if !exec.tryFinalize() {
		return false
	}

	exec.tracker.Cancel()

	ctx := context.Background()
	msg := model.CancelledByUser
	e.patchRecord(ctx, exec, model.ExecutionPatch{
		Status:      statusPtr(model.StatusFailed),
		Error:       &msg,
		CompletedAt: timePtr(time.Now().UTC()),
	})

	e.router.Publish(exec.userID, nil, model.ProgressEvent{
		Type:        model.EventFailed,
		ExecutionID: exec.id,
		Message:     model.CancelledByUser,
		Progress:    0,
		Cancelable:  false,
		Timestamp:   time.Now().UTC(),
	})

	e.remove(exec.id)
	e.logger.Info("execution cancelled", "execution_id", exec.id, "user_id", exec.userID)
	return true
}

// GetStatus returns the caller-facing snapshot, or store.ErrNotFound for
// unknown execution ids.
func (e *Executor) GetStatus(ctx context.Context, executionID string) (*model.ExecutionStatusView, error) {
	rec, err := e.records.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}

	var pct int
	switch rec.Status {
	case model.StatusCompleted:
		pct = 100
	case model.StatusPending, model.StatusInProgress:
		e.mu.Lock()
		exec := e.running[executionID]
		e.mu.Unlock()
		if exec != nil {
			pct = exec.tracker.Progress()
		}
	}

	return &model.ExecutionStatusView{
		ExecutionID: rec.ExecutionID,
		Status:      rec.Status,
		Progress:    pct,
		Error:       rec.Error,
		Result:      rec.Output,
	}, nil
}

// advance moves the tracker forward and broadcasts the new position.
// No-ops once the execution is finalized.
func (e *Executor) advance(exec *execution, stepID string) {
	if exec.isFinalized() {
		return
	}
	if !exec.tracker.AdvanceTo(stepID) {
		return
	}
	e.broadcastProgress(exec)
}

func (e *Executor) broadcastProgress(exec *execution) {
	step := exec.tracker.CurrentStep()
	ev := model.ProgressEvent{
		Type:              model.EventProgress,
		ExecutionID:       exec.id,
		Progress:          exec.tracker.Progress(),
		EstimatedTimeLeft: etaSeconds(exec.tracker),
		Cancelable:        true,
		Timestamp:         time.Now().UTC(),
	}
	if step != nil {
		ev.Step = step.ID
	}
	e.router.Publish(exec.userID, step, ev)
}

// fail finalizes the execution as failed with the given message, verbatim.
// Cost is never attached to failed executions.
func (e *Executor) fail(ctx context.Context, exec *execution, message string) {
	if !exec.tryFinalize() {
		return
	}
	exec.tracker.Cancel()

	e.patchRecord(ctx, exec, model.ExecutionPatch{
		Status:      statusPtr(model.StatusFailed),
		Error:       &message,
		CompletedAt: timePtr(time.Now().UTC()),
	})

	e.router.Publish(exec.userID, nil, model.ProgressEvent{
		Type:        model.EventFailed,
		ExecutionID: exec.id,
		Message:     message,
		Progress:    exec.tracker.Progress(),
		Cancelable:  false,
		Timestamp:   time.Now().UTC(),
	})

	e.remove(exec.id)
	e.logger.Info("execution failed",
		"execution_id", exec.id, "agent_id", exec.agentID, "error", message)
}

// complete finalizes a successful execution with output and cost.
func (e *Executor) complete(ctx context.Context, exec *execution, result *agent.Result) {
	if !exec.tryFinalize() {
		return
	}
	exec.tracker.Complete()

	e.patchRecord(ctx, exec, model.ExecutionPatch{
		Status:      statusPtr(model.StatusCompleted),
		Output:      result.Output,
		CostCents:   &result.CostCents,
		CompletedAt: timePtr(time.Now().UTC()),
	})

	e.router.Publish(exec.userID, nil, model.ProgressEvent{
		Type:        model.EventCompleted,
		ExecutionID: exec.id,
		Message:     "Execution completed",
		Progress:    100,
		Cancelable:  false,
		Timestamp:   time.Now().UTC(),
	})

	e.remove(exec.id)
	e.logger.Info("execution completed",
		"execution_id", exec.id, "agent_id", exec.agentID, "cost_cents", result.CostCents)
}

// patchRecord applies a record update, logging failures instead of
// propagating them: a lost bookkeeping write never flips an execution's
// user-visible outcome.
func (e *Executor) patchRecord(ctx context.Context, exec *execution, patch model.ExecutionPatch) {
	if err := e.records.Update(ctx, exec.id, patch); err != nil {
		e.logger.Warn("execution record update failed",
			"execution_id", exec.id, "error", err)
	}
}

// patchIfLive applies a non-terminal record update only while the execution
// is not finalized. The check and the write happen under the execution's
// mutex so a concurrent Cancel cannot slip its terminal patch in between
// them and have it overwritten by the abandoned runner.
func (e *Executor) patchIfLive(ctx context.Context, exec *execution, patch model.ExecutionPatch) bool {
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.finalized {
		return false
	}
	if err := e.records.Update(ctx, exec.id, patch); err != nil {
		e.logger.Warn("execution record update failed",
			"execution_id", exec.id, "error", err)
	}
	return true
}

func (e *Executor) remove(executionID string) {
	e.mu.Lock()
	delete(e.running, executionID)
	e.mu.Unlock()
}

func etaSeconds(t *progress.Tracker) *int {
	left, ok := t.EstimatedTimeLeft()
	if !ok {
		return nil
	}
	secs := int(left.Round(time.Second) / time.Second)
	return &secs
}

func statusPtr(s model.ExecutionStatus) *model.ExecutionStatus { return &s }
func timePtr(t time.Time) *time.Time                           { return &t }
