// Command server runs the task history service and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"taskvault/internal/backend"
	"taskvault/internal/config"
	"taskvault/internal/identity"
	"taskvault/internal/logging"
	"taskvault/pkg/history"
	"taskvault/pkg/journal"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "taskvault",
		Short:         "Versioned task dataset service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("TASKVAULT_CONFIG"), "path to the YAML config file")

	load := func(cmd *cobra.Command) (*app, error) {
		return newApp(cmd.Context(), configPath, cmd.ErrOrStderr())
	}
	root.AddCommand(newServeCommand(load))
	root.AddCommand(newMigrateCommand(load))
	root.AddCommand(newImportCommand(load))
	root.AddCommand(newVerifyCommand(load))
	return root
}

type loader func(cmd *cobra.Command) (*app, error)

// app is the wiring shared by every subcommand.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	stores *backend.Stores
	bus    *journal.Bus
}

func newApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logOut, cfg.Logging.Level, cfg.Logging.Format, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	stores, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Storage.Backend, err)
	}
	return &app{cfg: cfg, log: log, stores: stores, bus: journal.NewBus(stores.Journal)}, nil
}

func (a *app) engine(observer history.Observer) *history.Engine {
	return history.New(a.stores.Tasks, a.stores.Versions, history.Options{
		Optimistic: a.cfg.Sync.Optimistic,
		ChunkSize:  a.cfg.Sync.ChunkSize,
		Logger:     a.log,
		Journal:    a.bus,
		Observer:   observer,
	})
}

// actor resolves --as against the configured static tokens so offline
// imports are attributed like API calls.
func (a *app) actor(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	id := identity.Identity{UserID: userID}
	for _, u := range a.cfg.Auth.Tokens {
		if u.UserID == userID {
			id.Email = u.Email
			break
		}
	}
	return identity.WithIdentity(ctx, id)
}

func (a *app) close() {
	a.stores.Close()
}
