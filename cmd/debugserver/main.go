// Command debugserver listens for diagnostic output from instrumented
// applications and prints it with timestamps. Type help on its console for
// the operator commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/debugserver/config"
	"github.com/cyberinferno/debugserver/console"
	"github.com/cyberinferno/debugserver/debugserver"
	"github.com/cyberinferno/debugserver/logger"
	"github.com/cyberinferno/debugserver/resolver"
)

const serviceName = "debugserver"

func main() {
	if err := newRootCmd(os.Stdin, console.Stdout()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "debugserver",
		Short:         "TCP debug listener that prints received data with timestamps",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(flags)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[!] %v\n", err)
			return err
		}

		log, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[!] %v\n", err)
			return err
		}
		defer func() { _ = log.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		return run(ctx, cfg, in, out, log)
	}

	return cmd
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, log logger.Logger) error {
	opts := debugserver.Options{
		Config:  cfg,
		Console: out,
		Input:   in,
		Logger:  log,
		Clearer: console.NewClearer(),
	}

	if cfg.Server.Resolve {
		opts.Resolver = resolver.New(nil, cfg.Server.ResolveTTL, resolver.DefaultTimeout)
	}

	started := time.Now()
	err := debugserver.New(opts).Run(ctx)
	if err != nil {
		log.Error("debug server exited with error", logger.Field{Key: "error", Value: err})
		return err
	}

	log.Info("debug server exited", logger.Field{Key: "uptime", Value: time.Since(started).String()})
	return nil
}

// newLogger logs to stderr, or only to daily files when a log directory is
// configured.
func newLogger(cfg *config.Config, stderr io.Writer) (logger.Logger, error) {
	level := logger.ParseLevel(cfg.Log.Level)

	if cfg.Log.Dir != "" {
		return logger.NewFile(serviceName, cfg.Log.Dir, level, nil)
	}

	return logger.NewConsole(stderr, serviceName, level), nil
}
