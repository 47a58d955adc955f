package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modgraph"
	"github.com/GoCodeAlone/modgraph/configwatch"
	"github.com/GoCodeAlone/modgraph/feeders"
	"github.com/GoCodeAlone/modgraph/modules/scheduler"
	"github.com/GoCodeAlone/modgraph/modules/status"
)

type runOptions struct {
	configPath  string
	name        string
	watch       bool
	hookTimeout time.Duration
	logLevel    string
	logFormat   string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and start the modules described by a configuration file",
		Long: `Build and start the modules described by a configuration file.

The first SIGINT or SIGTERM shuts the application down gracefully; a second
one shuts it down immediately.

Examples:
  modgraph run --config app.yaml
  modgraph run --config app.toml --watch --hook-timeout 10s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			return run(cmd.Context(), opts, logger, sigs)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Configuration file (.yaml, .yml, .toml, .json, .hcl)")
	cmd.Flags().StringVar(&opts.name, "name", "modgraph", "Application name used in logs and events")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Reload modules when the configuration file changes")
	cmd.Flags().DurationVar(&opts.hookTimeout, "hook-timeout", modgraph.DefaultHookTimeout, "Upper bound for each lifecycle hook (0 disables)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// run builds and starts the application, then blocks until a signal or
// ctx ends it.
func run(ctx context.Context, opts *runOptions, logger *slog.Logger, sigs <-chan os.Signal) error {
	if ctx == nil {
		ctx = context.Background()
	}
	root, err := feeders.Load(opts.configPath)
	if err != nil {
		return err
	}

	app, err := modgraph.New(
		modgraph.WithLogger(logger),
		modgraph.WithName(opts.name),
		modgraph.WithHookTimeout(opts.hookTimeout),
	)
	if err != nil {
		return err
	}
	if err := scheduler.Register(app); err != nil {
		return err
	}
	if err := status.Register(app); err != nil {
		return err
	}
	if err := app.BuildAndStart(ctx, root); err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	var watchErr, watchDone chan error
	if opts.watch {
		w, err := configwatch.New(opts.configPath, app.Reload, configwatch.WithLogger(logger))
		if err != nil {
			return errors.Join(err, app.Shutdown(context.WithoutCancel(ctx)))
		}
		watchErr = make(chan error, 1)
		watchDone = watchErr
		go func() { watchErr <- w.Run(watchCtx) }()
		logger.Info("Watching configuration", "path", opts.configPath)
	}

wait:
	for {
		select {
		case sig := <-sigs:
			logger.Info("Received signal, shutting down", "signal", sig.String())
			break wait
		case <-ctx.Done():
			logger.Info("Context done, shutting down", "cause", context.Cause(ctx))
			break wait
		case err := <-watchErr:
			watchErr, watchDone = nil, nil
			if err != nil {
				logger.Error("Configuration watcher stopped", "error", err)
			}
		}
	}
	stopWatch()
	if watchDone != nil {
		<-watchDone
	}

	stopCtx := context.WithoutCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- app.Shutdown(stopCtx) }()
	select {
	case err := <-done:
		return err
	case sig := <-sigs:
		logger.Warn("Received second signal, shutting down immediately", "signal", sig.String())
		return app.ShutdownNow(stopCtx)
	}
}
