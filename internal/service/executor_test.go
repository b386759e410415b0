package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/artifact"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/service"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/store"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/stream"
)

// fakeAgent is a two-step agent (30/70) with scriptable behavior.
type fakeAgent struct {
	enabled  bool
	valid    bool
	allow    bool
	allowErr error

	result  *agent.Result
	execErr error

	started  chan struct{} // closed when Execute is entered, if non-nil
	release  chan struct{} // Execute blocks on it until closed, if non-nil
	returned chan struct{} // closed when Execute returns, if non-nil

	validateStarted chan struct{} // closed when ValidateParams is entered, if non-nil
	validateRelease chan struct{} // ValidateParams blocks on it until closed, if non-nil

	quotaChecks int
}

func (f *fakeAgent) ID() string    { return "lesson-plan" }
func (f *fakeAgent) Name() string  { return "Lesson Plan" }
func (f *fakeAgent) Enabled() bool { return f.enabled }

func (f *fakeAgent) Steps() []progress.Step {
	return []progress.Step{
		{ID: "generate", Weight: 30, EstimatedDuration: 5 * time.Second, UserText: "Generating..."},
		{ID: "save", Weight: 70, EstimatedDuration: 10 * time.Second, UserText: "Saving..."},
	}
}

func (f *fakeAgent) ValidateParams(map[string]any) bool {
	if f.validateStarted != nil {
		close(f.validateStarted)
	}
	if f.validateRelease != nil {
		<-f.validateRelease
	}
	return f.valid
}

func (f *fakeAgent) CanExecute(context.Context, string) (bool, error) {
	f.quotaChecks++
	return f.allow, f.allowErr
}

func (f *fakeAgent) Execute(context.Context, map[string]any, string, string) (*agent.Result, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.returned != nil {
		defer close(f.returned)
	}
	return f.result, f.execErr
}

// reportingAgent additionally reports its step transitions.
type reportingAgent struct {
	fakeAgent
}

func (f *reportingAgent) ExecuteWithProgress(ctx context.Context, params map[string]any, userID, sessionID string, report agent.ReportFunc) (*agent.Result, error) {
	report("generate") // no-op, already there
	report("save")
	return f.fakeAgent.Execute(ctx, params, userID, sessionID)
}

type fixture struct {
	executor  *service.Executor
	records   store.ExecutionStore
	artifacts *artifact.MemoryStore
	conn      *stream.Connection
}

func newFixture(t *testing.T, agents ...agent.Agent) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := agent.NewRegistry()
	for _, a := range agents {
		reg.Register(a)
	}

	connections := stream.NewRegistry(logger)
	conn := connections.Register("user1", progress.LevelUserFriendly, "")
	t.Cleanup(func() { connections.Unregister(conn.ID) })

	records := store.NewMemoryStore()
	artifacts := artifact.NewMemoryStore()

	return &fixture{
		executor:  service.NewExecutor(reg, records, artifacts, stream.NewRouter(connections), logger),
		records:   records,
		artifacts: artifacts,
		conn:      conn,
	}
}

// collectUntilTerminal drains broadcast events until a completed or failed
// event arrives.
func collectUntilTerminal(t *testing.T, conn *stream.Connection) []*model.ProgressEvent {
	t.Helper()
	var events []*model.ProgressEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				t.Fatal("event channel closed before terminal event")
			}
			events = append(events, ev)
			if ev.Type != model.EventProgress {
				return events
			}
		case <-deadline:
			t.Fatalf("no terminal event after %d events", len(events))
		}
	}
}

func TestStartExecutionUnknownAgent(t *testing.T) {
	f := newFixture(t)

	_, err := f.executor.StartExecution(context.Background(), "nope", nil, "user1", "")
	var notFound *model.AgentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want AgentNotFoundError", err)
	}
	if err.Error() != "Agent not found: nope" {
		t.Errorf("error message: got %q", err.Error())
	}
}

func TestStartExecutionDisabledAgent(t *testing.T) {
	f := newFixture(t, &fakeAgent{enabled: false, valid: true, allow: true})

	_, err := f.executor.StartExecution(context.Background(), "lesson-plan", nil, "user1", "")
	var disabled *model.AgentDisabledError
	if !errors.As(err, &disabled) {
		t.Fatalf("got %v, want AgentDisabledError", err)
	}
}

func TestSuccessfulExecution(t *testing.T) {
	output := json.RawMessage(`{"plan":"fractions intro"}`)
	a := &reportingAgent{fakeAgent{
		enabled: true, valid: true, allow: true,
		result: &agent.Result{
			Output:    output,
			CostCents: 42,
			Artifacts: []agent.Artifact{{Name: "plan.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}},
		},
	}}
	f := newFixture(t, a)
	ctx := context.Background()

	info, err := f.executor.StartExecution(ctx, "lesson-plan", map[string]any{"topic": "fractions"}, "user1", "sess1")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	if info.Status != model.StatusPending {
		t.Errorf("admitted status: got %s, want pending", info.Status)
	}

	events := collectUntilTerminal(t, f.conn)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}

	// Initial broadcast: first step, 0%.
	if events[0].Progress != 0 || events[0].Step != "generate" || events[0].Message != "Generating..." {
		t.Errorf("initial event: %+v", events[0])
	}
	if !events[0].Cancelable {
		t.Error("initial event not cancelable")
	}

	// Step boundary: 30% once generate completes.
	if events[1].Progress != 30 || events[1].Step != "save" || events[1].Message != "Saving..." {
		t.Errorf("boundary event: %+v", events[1])
	}

	// Terminal event.
	if events[2].Type != model.EventCompleted || events[2].Progress != 100 {
		t.Errorf("terminal event: %+v", events[2])
	}
	if events[2].Cancelable {
		t.Error("terminal event still cancelable")
	}

	rec, err := f.records.Get(ctx, info.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusCompleted {
		t.Errorf("record status: got %s, want completed", rec.Status)
	}
	if string(rec.Output) != string(output) {
		t.Errorf("record output: got %s", rec.Output)
	}
	if rec.CostCents != 42 {
		t.Errorf("record cost: got %d, want 42", rec.CostCents)
	}
	if rec.CompletedAt == nil {
		t.Error("record missing completed_at")
	}

	if _, err := f.artifacts.Get(ctx, info.ExecutionID, "plan.pdf"); err != nil {
		t.Errorf("artifact not persisted: %v", err)
	}

	view, err := f.executor.GetStatus(ctx, info.ExecutionID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.Status != model.StatusCompleted || view.Progress != 100 {
		t.Errorf("status view: %+v", view)
	}
}

func TestExecutionFailure(t *testing.T) {
	a := &fakeAgent{enabled: true, valid: true, allow: true, execErr: errors.New("Rate limit exceeded")}
	f := newFixture(t, a)
	ctx := context.Background()

	info, err := f.executor.StartExecution(ctx, "lesson-plan", nil, "user1", "")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	events := collectUntilTerminal(t, f.conn)
	last := events[len(events)-1]
	if last.Type != model.EventFailed {
		t.Fatalf("terminal event type: got %s", last.Type)
	}
	// The remote error message is preserved verbatim.
	if last.Message != "Rate limit exceeded" {
		t.Errorf("terminal message: got %q", last.Message)
	}

	rec, err := f.records.Get(ctx, info.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusFailed || rec.Error != "Rate limit exceeded" {
		t.Errorf("record: status=%s error=%q", rec.Status, rec.Error)
	}
	if rec.CostCents != 0 {
		t.Errorf("failed execution charged cost %d", rec.CostCents)
	}
	if rec.Output != nil {
		t.Errorf("failed execution has output %s", rec.Output)
	}
}

func TestInvalidParameters(t *testing.T) {
	a := &fakeAgent{enabled: true, valid: false, allow: true}
	f := newFixture(t, a)
	ctx := context.Background()

	info, err := f.executor.StartExecution(ctx, "lesson-plan", nil, "user1", "")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	events := collectUntilTerminal(t, f.conn)
	last := events[len(events)-1]
	if last.Type != model.EventFailed || last.Message != "Invalid parameters for agent lesson-plan" {
		t.Errorf("terminal event: %+v", last)
	}

	rec, _ := f.records.Get(ctx, info.ExecutionID)
	if rec.Status != model.StatusFailed {
		t.Errorf("record status: got %s, want failed", rec.Status)
	}
	if rec.CostCents != 0 {
		t.Errorf("invalid-parameter execution charged cost %d", rec.CostCents)
	}
	// Validation failures never reach the quota predicate.
	if a.quotaChecks != 0 {
		t.Errorf("quota consulted %d times for invalid params", a.quotaChecks)
	}
}

func TestQuotaDenied(t *testing.T) {
	a := &fakeAgent{enabled: true, valid: true, allow: false}
	f := newFixture(t, a)
	ctx := context.Background()

	info, err := f.executor.StartExecution(ctx, "lesson-plan", nil, "user1", "")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	events := collectUntilTerminal(t, f.conn)
	last := events[len(events)-1]
	if last.Type != model.EventFailed || last.Message != "Quota exceeded for agent lesson-plan" {
		t.Errorf("terminal event: %+v", last)
	}

	rec, _ := f.records.Get(ctx, info.ExecutionID)
	if rec.Status != model.StatusFailed {
		t.Errorf("record status: got %s, want failed", rec.Status)
	}
	if rec.CostCents != 0 {
		t.Errorf("quota-denied execution charged cost %d", rec.CostCents)
	}
}

func TestQuotaBackendErrorDenies(t *testing.T) {
	a := &fakeAgent{enabled: true, valid: true, allow: true, allowErr: errors.New("redis: connection refused")}
	f := newFixture(t, a)

	info, err := f.executor.StartExecution(context.Background(), "lesson-plan", nil, "user1", "")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	events := collectUntilTerminal(t, f.conn)
	last := events[len(events)-1]
	if last.Message != "Quota exceeded for agent lesson-plan" {
		t.Errorf("terminal message: got %q", last.Message)
	}

	rec, _ := f.records.Get(context.Background(), info.ExecutionID)
	if rec.Status != model.StatusFailed {
		t.Errorf("record status: got %s, want failed", rec.Status)
	}
}

func TestCancelDiscardsLateResult(t *testing.T) {
	a := &fakeAgent{
		enabled: true, valid: true, allow: true,
		result:   &agent.Result{Output: json.RawMessage(`{"too":"late"}`), CostCents: 42},
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		returned: make(chan struct{}),
	}
	f := newFixture(t, a)
	ctx := context.Background()

	info, err := f.executor.StartExecution(ctx, "lesson-plan", nil, "user1", "")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	select {
	case <-a.started:
	case <-time.After(5 * time.Second):
		t.Fatal("agent never started")
	}

	if !f.executor.Cancel(info.ExecutionID) {
		t.Fatal("Cancel returned false for a live execution")
	}
	if f.executor.Cancel(info.ExecutionID) {
		t.Error("second Cancel returned true")
	}

	events := collectUntilTerminal(t, f.conn)
	last := events[len(events)-1]
	if last.Type != model.EventFailed || last.Message != model.CancelledByUser {
		t.Errorf("terminal event: %+v", last)
	}
	if last.Progress != 0 || last.Cancelable {
		t.Errorf("cancel broadcast: progress=%d cancelable=%v", last.Progress, last.Cancelable)
	}

	// Let the in-flight call finish; its result must be discarded.
	close(a.release)
	select {
	case <-a.returned:
	case <-time.After(5 * time.Second):
		t.Fatal("agent never returned")
	}
	time.Sleep(20 * time.Millisecond)

	rec, err := f.records.Get(ctx, info.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusFailed || rec.Error != model.CancelledByUser {
		t.Errorf("record: status=%s error=%q", rec.Status, rec.Error)
	}
	if rec.CostCents != 0 || rec.Output != nil {
		t.Errorf("cancelled execution kept result: cost=%d output=%s", rec.CostCents, rec.Output)
	}

	view, err := f.executor.GetStatus(ctx, info.ExecutionID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.Status != model.StatusFailed || view.Progress != 0 {
		t.Errorf("status view after cancel: %+v", view)
	}
}

func TestCancelPendingExecution(t *testing.T) {
	a := &fakeAgent{
		enabled: true, valid: true, allow: true,
		result:          &agent.Result{Output: json.RawMessage(`{"too":"late"}`), CostCents: 42},
		validateStarted: make(chan struct{}),
		validateRelease: make(chan struct{}),
	}
	f := newFixture(t, a)
	ctx := context.Background()

	info, err := f.executor.StartExecution(ctx, "lesson-plan", nil, "user1", "")
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	// Cancel while the run is still pending, before the remote call
	// dispatches.
	select {
	case <-a.validateStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("agent validation never started")
	}
	if !f.executor.Cancel(info.ExecutionID) {
		t.Fatal("Cancel returned false for a pending execution")
	}

	events := collectUntilTerminal(t, f.conn)
	last := events[len(events)-1]
	if last.Type != model.EventFailed || last.Message != model.CancelledByUser {
		t.Errorf("terminal event: %+v", last)
	}

	// The abandoned runner must not resurrect the record.
	close(a.validateRelease)
	time.Sleep(50 * time.Millisecond)

	rec, err := f.records.Get(ctx, info.ExecutionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != model.StatusFailed || rec.Error != model.CancelledByUser {
		t.Errorf("record after release: status=%s error=%q", rec.Status, rec.Error)
	}
	if rec.CostCents != 0 || rec.Output != nil {
		t.Errorf("cancelled pending execution kept result: cost=%d output=%s", rec.CostCents, rec.Output)
	}
	if a.quotaChecks != 0 {
		t.Errorf("quota consulted %d times after cancel", a.quotaChecks)
	}

	view, err := f.executor.GetStatus(ctx, info.ExecutionID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.Status != model.StatusFailed || view.Progress != 0 {
		t.Errorf("status view: %+v", view)
	}
}

func TestCancelUnknownExecution(t *testing.T) {
	f := newFixture(t)
	if f.executor.Cancel("nope") {
		t.Error("Cancel returned true for unknown execution")
	}
}

func TestGetStatusNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.executor.GetStatus(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
