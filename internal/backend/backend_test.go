package backend

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskvault/internal/config"
	"taskvault/pkg/task"
)

func TestOpenBackends(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Backend = backend
			cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "tv.db")

			ctx := context.Background()
			s, err := Open(ctx, &cfg, slog.Default())
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, backend, s.Backend)
			require.NoError(t, s.EnsureSchema(ctx))
			require.NoError(t, s.EnsureSchema(ctx), "schema creation is idempotent")

			tk := task.New(map[string]any{"prompt": "p"}, time.Now().UTC().Truncate(time.Microsecond))
			_, err = s.Tasks.Create(ctx, tk)
			require.NoError(t, err)
			n, err := s.Tasks.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "mongo"
	_, err := Open(context.Background(), &cfg, slog.Default())
	assert.ErrorContains(t, err, "mongo")
}
