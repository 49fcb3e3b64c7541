// Command debugsend sends text to a running debug server. Positional
// arguments are joined by spaces and sent as one message; without arguments
// every line read from stdin is sent as its own message.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/debugserver/debugclient"
	"github.com/cyberinferno/debugserver/logger"
)

func main() {
	if err := newRootCmd(os.Stdin).Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "[!] %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader) *cobra.Command {
	var (
		addr         string
		lengthPrefix bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:           "debugsend [message...]",
		Short:         "Send text to a debug server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logger.ParseLevel("warn")
			if verbose {
				level = logger.ParseLevel("debug")
			}
			log := logger.NewConsole(cmd.ErrOrStderr(), "debugsend", level)
			defer func() { _ = log.Close() }()

			cfg := debugclient.DefaultConfig(addr)
			cfg.LengthPrefix = lengthPrefix

			client := debugclient.New(cfg)
			defer func() { _ = client.Close() }()

			client.OnConnectionState(func(e debugclient.ConnectionStateEvent) {
				fields := []logger.Field{{Key: "addr", Value: e.Address}, {Key: "state", Value: e.State.String()}}
				if e.Error != nil {
					fields = append(fields, logger.Field{Key: "error", Value: e.Error})
				}
				log.Debug("connection state changed", fields...)
			})

			if len(args) > 0 {
				return client.Send([]byte(strings.Join(args, " ")))
			}

			return sendLines(client, in)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:9000", "debug server address")
	cmd.Flags().BoolVar(&lengthPrefix, "length-prefix", false, "prefix each message with its 4-byte big-endian length")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log connection state changes to stderr")

	return cmd
}

func sendLines(client *debugclient.Client, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := client.Send([]byte(scanner.Text() + "\n")); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	return nil
}
