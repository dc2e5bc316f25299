/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/chromedap/internal/adapter"
	"github.com/microsoft/chromedap/internal/chrome"
	"github.com/microsoft/chromedap/internal/networking"
	"github.com/microsoft/chromedap/internal/telemetry"
	"github.com/microsoft/chromedap/pkg/logger"
	"github.com/microsoft/chromedap/pkg/process"
	"github.com/microsoft/chromedap/pkg/resiliency"
)

const (
	// DefaultServerPort is the TCP port --server listens on when --port is not given.
	DefaultServerPort = 4712

	consoleSeparatorInterval = 2 * time.Second
	telemetryFlushTimeout    = 5 * time.Second
	sessionDrainTimeout      = 5 * time.Second
)

type rootOptions struct {
	server bool
	port   int

	consoleLevel    zapcore.Level
	consoleLevelSet bool
}

func NewRootCmd() (*cobra.Command, error) {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "chromedap",
		Short: "Debug Adapter Protocol server for Chrome-family browsers",
		Long: `chromedap implements the Debug Adapter Protocol (DAP) for Chrome-family
browsers. It launches the browser with its remote debugging endpoint enabled,
or attaches to one that is already running, and bridges the development tool
to it.

By default one debugging session is served over stdin/stdout, which is how
development tools start the adapter. With --server the adapter accepts TCP
connections instead, one session per connection; this keeps the standard
streams free, so console logging is enabled for working on the adapter itself.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runAdapter(opts),
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmd.Flags().BoolVar(&opts.server, "server", false,
		"Accept DAP connections over TCP instead of serving one session on stdin/stdout")
	rootCmd.Flags().IntVar(&opts.port, "port", DefaultServerPort,
		"TCP port to listen on in --server mode")

	// The logger cannot exist until the flags say whether console output is
	// safe, so the verbosity value is parked here and applied after parsing.
	levelVal := logger.NewLevelFlagValue(func(level zapcore.Level) {
		opts.consoleLevel = level
		opts.consoleLevelSet = true
	})
	rootCmd.PersistentFlags().VarP(&levelVal, "verbosity", "v",
		"Console verbosity: 'debug', 'info', 'error', or a positive integer for increasingly detailed debug output")

	versionCmd, err := NewVersionCommand()
	if err != nil {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	}
	rootCmd.AddCommand(versionCmd)

	return rootCmd, nil
}

func runAdapter(opts *rootOptions) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		// In stdio mode the standard streams belong to the protocol, so the
		// console stays dark and diagnostics go to the file log only.
		log := logger.NewWithOptions("chromedap", logger.Options{
			Console:           opts.server,
			SeparatorInterval: consoleSeparatorInterval,
		})
		defer log.Flush()
		if opts.consoleLevelSet {
			log.SetLevel(opts.consoleLevel)
		}

		LogVersion(log.Logger, "chromedap starting")

		defer func() {
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), telemetryFlushTimeout)
			defer cancelFlush()
			_ = telemetry.GetTelemetrySystem().Shutdown(flushCtx)
		}()

		if opts.server {
			return runServer(cmd.Context(), opts.port, log)
		}
		return runStdioSession(cmd.Context(), log)
	}
}

// runStdioSession serves a single debugging session over the process's
// standard streams and returns when the client disconnects.
func runStdioSession(ctx context.Context, log *logger.Logger) error {
	log.V(1).Info("Serving a DAP session on stdio")

	session := newSession(adapter.NewStdioTransport(os.Stdin, os.Stdout), log.Logger)
	return session.Run(ctx)
}

// runServer accepts TCP connections and serves an independent debugging
// session on each until the context ends.
func runServer(ctx context.Context, port int, log *logger.Logger) error {
	if !networking.IsValidPort(port) {
		return fmt.Errorf("invalid server port %d", port)
	}

	listenConfig := &net.ListenConfig{}
	listener, listenErr := listenConfig.Listen(ctx, "tcp", networking.AddressAndPort("", port))
	if listenErr != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, listenErr)
	}

	// Unblock Accept when the context ends.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	log.Info("Waiting for DAP connections", "address", listener.Addr().String())

	var sessions sync.WaitGroup
	for {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			// Session contexts are cancelled with ours, so they should wind
			// down on their own; a stuck one must not pin the process.
			if !resiliency.RunWithTimeout(sessions.Wait, sessionDrainTimeout) {
				log.Info("Timed out waiting for active sessions to end")
			}
			if ctx.Err() != nil {
				log.Info("Server stopped")
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", acceptErr)
		}

		clientAddr := conn.RemoteAddr().String()
		log.Info("Client connected", "client", clientAddr)

		sessions.Add(1)
		go func() {
			defer sessions.Done()

			session := newSession(adapter.NewTCPTransport(conn), log.Logger.WithValues("client", clientAddr))
			if runErr := session.Run(ctx); runErr != nil {
				log.Error(runErr, "Session ended with an error", "client", clientAddr)
			} else {
				log.Info("Session ended", "client", clientAddr)
			}
		}()
	}
}

// newSession assembles the full adapter stack for one client connection:
// transport, protocol session, transformer pipeline, proxy, engine, and the
// browser launcher underneath.
func newSession(transport adapter.Transport, log logr.Logger) *adapter.Session {
	launcher := chrome.NewLauncher(chrome.LauncherConfig{
		Executor: process.NewOSExecutor(log),
		Logger:   log,
	})
	engine := chrome.NewEngine(chrome.EngineConfig{
		Launcher: launcher,
		Logger:   log,
	})
	proxy := adapter.NewProxy(engine, []adapter.Transformer{
		adapter.NewLineNumberTransformer(),
	}, log)

	return adapter.NewSession(adapter.SessionConfig{
		Transport: transport,
		Proxy:     proxy,
		Logger:    log,
	})
}
