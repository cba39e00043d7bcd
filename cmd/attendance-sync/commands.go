package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/example/attendance-sync/internal/http"
)

const shutdownTimeout = 10 * time.Second

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync loop and the status API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd.Context(), opts)
		},
	}
}

func runService(ctx context.Context, opts *rootOptions) error {
	env, err := opts.environment()
	if err != nil {
		return err
	}
	logger := opts.logger(env)

	a, err := newApp(ctx, env, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Status: httptransport.NewStatusHandlerWithLogger(a.storage, logger),
		Token:  env.StatusToken,
		Logger: logger,
	})
	server := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("status API listening", "addr", server.Addr, "token_required", env.StatusToken != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	err = g.Wait()
	logger.Info("attendance sync stopped")
	return err
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now, ignoring peak hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.environment()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), env, opts.logger(env))
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.scheduler.RunOnce(cmd.Context())
			if result.Err != nil {
				return result.Err
			}
			s := result.Summary
			fmt.Fprintf(opts.stdout, "cycle %s: %d devices, %d succeeded, %d failed in %s\n",
				result.ID, result.Devices, s.Succeeded, s.Failed, s.Duration.Round(time.Millisecond))
			if s.Failed > 0 {
				return fmt.Errorf("%d of %d devices failed to sync", s.Failed, s.Total)
			}
			return nil
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.environment()
			if err != nil {
				return err
			}
			logger := opts.logger(env)
			storage, err := openStorage(cmd.Context(), env, logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			status, err := storage.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "schema version %s (%d applied, %d pending)\n",
				status.CurrentVersion, len(status.Applied), len(status.Pending))
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var branchID int64
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the latest sync outcome of every device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.environment()
			if err != nil {
				return err
			}
			storage, err := openStorage(cmd.Context(), env, opts.logger(env))
			if err != nil {
				return err
			}
			defer storage.Close()

			var filter *int64
			if branchID > 0 {
				filter = &branchID
			}
			overviews, err := storage.DeviceOverviews(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS\tACTIVE\tCONNECTION\tLAST SYNC\tFINISHED\tNEW\tSTORED")
			for _, o := range overviews {
				finished := "-"
				if o.LastSyncEnd != nil {
					finished = o.LastSyncEnd.Format(time.DateTime)
				}
				fmt.Fprintf(w, "%d\t%s\t%s:%d\t%t\t%s\t%s\t%s\t%d\t%d\n",
					o.DeviceID, o.Name, o.IP, o.Port, o.IsActive,
					orDash(o.ConnectionStatus), orDash(o.LastSyncStatus), finished,
					o.LastSyncNew, o.AttendanceCount)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&branchID, "branch-id", 0, "only list devices of this branch")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
