package store

import (
	"log/slog"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/config"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/db"
)

// Open selects the execution store backend once, at construction time.
//
// The persistent backend is used when a driver is configured and reachable.
// When it is unconfigured ("memory") or fails to open, the in-memory store
// is used for the life of the process. The fallback is a deliberate policy:
// executions keep working without their audit trail rather than refusing to
// start.
func Open(cfg *config.Config, logger *slog.Logger) ExecutionStore {
	if cfg.DBDriver == "" || cfg.DBDriver == "memory" {
		logger.Info("execution store: in-memory backend (no persistent driver configured)")
		return NewMemoryStore()
	}

	database, err := db.Open(cfg)
	if err != nil {
		logger.Warn("execution store: persistent backend unavailable, falling back to in-memory",
			"driver", cfg.DBDriver, "error", err)
		return NewMemoryStore()
	}
	if err := db.Migrate(database, cfg.DBDriver); err != nil {
		logger.Warn("execution store: migration failed, falling back to in-memory",
			"driver", cfg.DBDriver, "error", err)
		_ = database.Close()
		return NewMemoryStore()
	}

	logger.Info("execution store: persistent backend ready", "driver", cfg.DBDriver)
	return NewSQLStore(database, cfg.DBDriver)
}
