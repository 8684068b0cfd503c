// Package backend opens the configured storage backend.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"taskvault/internal/config"
	"taskvault/internal/db"
	"taskvault/internal/memstore"
	"taskvault/internal/sqlitestore"
	"taskvault/pkg/journal"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// Stores is an open backend.
type Stores struct {
	Tasks    task.Store
	Versions version.Store
	Journal  journal.Store
	Backend  string

	close func()
}

// Open connects to the backend named by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Stores, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		d := db.New(pool, cfg.Database.BindIdentity, log)
		return &Stores{
			Tasks:    task.NewPgStore(d),
			Versions: version.NewPgStore(d),
			Journal:  journal.NewPgStore(d),
			Backend:  config.BackendPostgres,
			close:    pool.Close,
		}, nil

	case config.BackendSQLite:
		s, err := sqlitestore.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Tasks:    s.Tasks,
			Versions: s.Versions,
			Journal:  s.Journal,
			Backend:  config.BackendSQLite,
			close: func() {
				if err := s.Close(); err != nil {
					log.Warn("close sqlite", "error", err)
				}
			},
		}, nil

	case config.BackendMemory:
		m := memstore.New()
		return &Stores{
			Tasks:    m.Tasks,
			Versions: m.Versions,
			Journal:  m.Journal,
			Backend:  config.BackendMemory,
			close:    func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// EnsureSchema creates missing tables. Versions reference tasks, so tasks
// go first.
func (s *Stores) EnsureSchema(ctx context.Context) error {
	if err := s.Tasks.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure tasks table: %w", err)
	}
	if err := s.Versions.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure versions table: %w", err)
	}
	if err := s.Journal.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure journal table: %w", err)
	}
	return nil
}

// Close releases the backend's connections.
func (s *Stores) Close() {
	s.close()
}
