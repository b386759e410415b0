package progress

import (
	"math"
	"sync"
	"time"
)

// Tracker ties one execution to a position within its agent's step list.
//
// Progress is purely weight-based: two executions of the same agent type
// report identical percentages at identical steps regardless of how long
// each step actually takes. Only the time-remaining estimate uses elapsed
// wall-clock time.
//
// The tracker is owned by the orchestrator for the execution's lifetime but
// is read from observer goroutines, so all state is guarded by a mutex.
type Tracker struct {
	mu          sync.Mutex
	steps       []Step
	totalWeight float64
	current     int // index of the step currently executing; steps before it are complete
	done        bool
	cancelled   bool
	startedAt   time.Time

	now func() time.Time // overridable in tests
}

// NewTracker creates a tracker positioned at the first step.
func NewTracker(steps []Step) *Tracker {
	var total float64
	for _, s := range steps {
		if s.Weight > 0 {
			total += s.Weight
		}
	}
	return &Tracker{
		steps:       steps,
		totalWeight: total,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

// AdvanceTo moves the tracker to the named step and reports whether the
// position actually moved. Advancing to the current step is a no-op; the
// index never decreases. Unknown steps, backwards moves, and cancelled or
// finished trackers also return false.
func (t *Tracker) AdvanceTo(stepID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.done {
		return false
	}
	for i := t.current; i < len(t.steps); i++ {
		if t.steps[i].ID == stepID {
			if i == t.current {
				return false
			}
			t.current = i
			return true
		}
	}
	return false
}

// Complete marks every step finished. Progress reports 100 afterwards.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.done = true
	t.current = len(t.steps)
}

// Cancel flips the one-way cancelled flag. Further advancement is refused.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Cancelled reports whether Cancel has been called.
func (t *Tracker) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Progress returns the weighted completion percentage in [0,100]:
// 100 × (sum of weights of completed steps) / (sum of all weights).
func (t *Tracker) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

func (t *Tracker) progressLocked() int {
	if t.done {
		return 100
	}
	if t.totalWeight <= 0 {
		return 0
	}
	var completed float64
	for i := 0; i < t.current && i < len(t.steps); i++ {
		if t.steps[i].Weight > 0 {
			completed += t.steps[i].Weight
		}
	}
	p := int(math.Round(100 * completed / t.totalWeight))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// EstimatedTimeLeft projects the remaining duration by linear extrapolation
// of elapsed wall-clock time against current progress. The estimate is
// undefined (ok == false) until progress is strictly positive and once the
// tracker is finished; it is never negative.
func (t *Tracker) EstimatedTimeLeft() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.progressLocked()
	if p <= 0 || p >= 100 {
		return 0, false
	}
	elapsed := t.now().Sub(t.startedAt)
	if elapsed <= 0 {
		return 0, false
	}
	total := time.Duration(float64(elapsed) * 100 / float64(p))
	left := total - elapsed
	if left < 0 {
		left = 0
	}
	return left, true
}

// EstimatedTotalDuration sums the per-step duration estimates. It is a
// static property of the step list, exposed for initial client display.
func (t *Tracker) EstimatedTotalDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, s := range t.steps {
		total += s.EstimatedDuration
	}
	return total
}

// CurrentStep returns a copy of the step currently executing, or nil when
// the tracker has no steps or has finished.
func (t *Tracker) CurrentStep() *Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current >= len(t.steps) {
		return nil
	}
	s := t.steps[t.current]
	return &s
}
