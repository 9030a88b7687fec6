package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gate-service/internal/app"
	"gate-service/internal/db"
	httpapi "gate-service/internal/http"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the camera frame loop and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), ctx, func(sigCtx context.Context, a *app.App) error {
				p, machine, err := a.Pipeline()
				if err != nil {
					return err
				}

				g, gctx := errgroup.WithContext(sigCtx)
				g.Go(func() error {
					srv := httpapi.NewServer(a.Config.HTTP.Addr, a.Router(machine))
					return httpapi.Serve(gctx, srv, a.Log)
				})
				g.Go(func() error {
					if err := p.Run(gctx); err != nil {
						return err
					}
					a.Log.Info().Msg("frame source exhausted")
					return nil
				})
				return g.Wait()
			})
		},
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run only the HTTP API (notification relay and approvals)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), ctx, func(sigCtx context.Context, a *app.App) error {
				srv := httpapi.NewServer(a.Config.HTTP.Addr, a.Router(nil))
				return httpapi.Serve(sigCtx, srv, a.Log)
			})
		},
	}
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			gdb, err := db.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			if sqlDB, err := gdb.DB(); err == nil {
				defer sqlDB.Close()
			}
			return db.Migrate(gdb, log)
		},
	}
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete gate events older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), ctx, func(sigCtx context.Context, a *app.App) error {
				deleted, err := a.Service.CleanupOldEvents(sigCtx, days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events\n", deleted)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Retention in days")
	return cmd
}

func withApp(parent context.Context, ctx *commandContext, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(sigCtx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(sigCtx, a)
}
