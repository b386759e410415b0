package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/model"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
)

const (
	// DefaultHeartbeatTimeout is how long a connection may stay silent
	// before the sweep drops it.
	DefaultHeartbeatTimeout = 60 * time.Second
	DefaultSweepInterval    = 30 * time.Second

	// eventBufferSize caps the per-connection send buffer. A full buffer
	// means a slow consumer; events for it are dropped, not queued.
	eventBufferSize = 64
)

// Connection is one live observer session. A connection always observes
// exactly one user's executions and optionally filters down to a single
// execution id. All mutable fields are guarded by the owning registry.
type Connection struct {
	ID     string
	UserID string
	Level  progress.DetailLevel

	executionID   string // empty = all of this user's executions
	lastHeartbeat time.Time
	ch            chan *model.ProgressEvent
	closed        bool
}

// Events returns the channel the router delivers to. It is closed when the
// connection is unregistered or swept.
func (c *Connection) Events() <-chan *model.ProgressEvent {
	return c.ch
}

// Registry holds live observer connections. Register, unregister, heartbeat
// and broadcast iteration all mutate or read shared maps, so every access is
// serialized behind one mutex; channel sends and closes happen under the
// same mutex, which keeps send-on-closed-channel impossible.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection

	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry with default sweep settings.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:            make(map[string]*Connection),
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		SweepInterval:    DefaultSweepInterval,
		logger:           logger,
		now:              time.Now,
	}
}

// Register creates a connection for the given user. executionID may be empty
// to observe all of the user's executions.
func (r *Registry) Register(userID string, level progress.DetailLevel, executionID string) *Connection {
	conn := &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Level:       level,
		executionID: executionID,
		ch:          make(chan *model.ProgressEvent, eventBufferSize),
	}

	r.mu.Lock()
	conn.lastHeartbeat = r.now()
	r.conns[conn.ID] = conn
	r.mu.Unlock()

	r.logger.Debug("connection registered", "connection_id", conn.ID, "user_id", userID, "level", string(level))
	return conn
}

// Unregister removes the connection and closes its event channel.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(connID)
}

func (r *Registry) dropLocked(connID string) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if !conn.closed {
		conn.closed = true
		close(conn.ch)
	}
}

// UpdateSubscription re-points the connection's execution filter. An empty
// executionID widens the subscription back to all of the user's executions.
func (r *Registry) UpdateSubscription(connID, executionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.executionID = executionID
	return true
}

// Heartbeat refreshes the connection's liveness timestamp.
func (r *Registry) Heartbeat(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.lastHeartbeat = r.now()
	return true
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Start runs the heartbeat sweep loop until ctx is cancelled.
// It should be launched as a goroutine.
func (r *Registry) Start(ctx context.Context) {
	ticker := time.NewTicker(r.SweepInterval)
	defer ticker.Stop()

	r.logger.Info("connection sweep started", "timeout", r.HeartbeatTimeout, "interval", r.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("connection sweep stopped")
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.logger.Info("dropped stale connections", "count", n)
			}
		}
	}
}

// Sweep runs one pass: every connection whose last heartbeat is older than
// the timeout is dropped. Dropped connections receive no further broadcasts
// and never error the executions they were watching.
func (r *Registry) Sweep(now time.Time) int {
	deadline := now.Add(-r.HeartbeatTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for id, conn := range r.conns {
		if conn.lastHeartbeat.Before(deadline) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.dropLocked(id)
	}
	return len(stale)
}
