// Command attendance-sync pulls punch logs from branch attendance terminals
// into a local SQLite store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/attendance-sync/internal/config"
	"github.com/example/attendance-sync/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	dsn        string
	stdout     io.Writer
	stderr     io.Writer
}

// environment loads the process configuration and applies flag overrides.
func (o *rootOptions) environment() (config.Config, error) {
	env, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.configFile != "" {
		env.ConfigFile = o.configFile
	}
	if o.dsn != "" {
		env.SQLiteDSN = o.dsn
	}
	return env, nil
}

func (o *rootOptions) logger(env config.Config) *slog.Logger {
	return logging.New(o.stderr, env.LogLevel)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "attendance-sync",
		Short:         "Synchronise attendance terminals into a local store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to the YAML configuration (overrides ATTSYNC_CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.dsn, "db", "", "SQLite DSN (overrides ATTSYNC_SQLITE_DSN)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))

	return cmd
}
