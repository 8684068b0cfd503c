package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskvault/internal/api"
	"taskvault/internal/auth"
	"taskvault/internal/identity"
	"taskvault/internal/observability"
	"taskvault/internal/runner"
	"taskvault/internal/topics"
)

func newServeCommand(load loader) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if migrate {
				if err := a.stores.EnsureSchema(ctx); err != nil {
					return err
				}
			}

			shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
				Exporter:    a.cfg.Telemetry.Exporter,
				Endpoint:    a.cfg.Telemetry.Endpoint,
				ServiceName: a.cfg.Telemetry.ServiceName,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					a.log.Warn("tracer shutdown", "error", err)
				}
			}()

			metrics := observability.NewMetrics()
			deps := api.Deps{
				Engine:    a.engine(metrics),
				Journal:   a.bus,
				Allowlist: auth.NewAllowlist(a.cfg.Auth.AllowedEmails),
				Runner:    runner.New(a.cfg.Runner.URL, a.cfg.Runner.Timeout),
				Topics: topics.New(topics.Config{
					BaseURL: a.cfg.Topics.BaseURL,
					APIKey:  a.cfg.Topics.APIKey,
					Model:   a.cfg.Topics.Model,
					Timeout: a.cfg.Topics.Timeout,
					Logger:  a.log,
				}),
				Metrics: metrics,
				Logger:  a.log,
			}
			if a.cfg.Auth.URL != "" {
				gt := auth.NewGoTrue(a.cfg.Auth.URL, a.cfg.Auth.ServiceKey)
				deps.Auth = gt
				deps.Login = gt
			}
			if len(a.cfg.Auth.Tokens) > 0 {
				tokens := make(auth.StaticTokens, len(a.cfg.Auth.Tokens))
				for tok, u := range a.cfg.Auth.Tokens {
					tokens[tok] = identity.Identity{UserID: u.UserID, Email: u.Email}
				}
				deps.Auth = tokens
			}

			gin.SetMode(gin.ReleaseMode)
			srv := api.New(deps, api.Options{
				SharedSecret:  a.cfg.Auth.SharedSecret,
				RequireSecret: a.cfg.Auth.RequireSecret,
				CORSOrigins:   a.cfg.CORS.Origins,
				RedirectURL:   a.cfg.Auth.RedirectURL,
				StoreTimeout:  a.cfg.Database.Timeout,
				ServiceName:   a.cfg.Telemetry.ServiceName,
			})
			httpServer := &http.Server{
				Addr:              ":" + strconv.Itoa(a.cfg.Server.Port),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Signal handling
			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
				select {
				case sig := <-sigCh:
					a.log.Info("shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("listening", "addr", httpServer.Addr, "backend", a.stores.Backend)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, scancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer scancel()
				return httpServer.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create missing tables before serving")
	return cmd
}
