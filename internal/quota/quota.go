// Package quota tracks per-user daily execution usage. Agents consult it
// from their CanExecute predicate and record usage themselves after a
// successful remote call; denied or failed executions are never counted.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Tracker answers whether a user may run another execution of an agent
// today and records completed usage.
type Tracker interface {
	// Allow reports whether the user is under the daily limit. An error
	// means the quota backend itself failed; callers treat that as a
	// denial (fail-closed).
	Allow(ctx context.Context, userID, agentID string) (bool, error)
	// Record counts one completed execution against today's usage.
	Record(ctx context.Context, userID, agentID string) error
}

// dayKey buckets usage by UTC calendar day.
func dayKey(userID, agentID string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", agentID, userID, now.UTC().Format("2006-01-02"))
}
