package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/shiv122/ecsexec/internal/awscli"
	"github.com/shiv122/ecsexec/internal/config"
	"github.com/shiv122/ecsexec/internal/eventbus"
	"github.com/shiv122/ecsexec/internal/logging"
	"github.com/shiv122/ecsexec/internal/procmanager"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
)

// TODO: Inject version at build time.
const version = "0.0.1"

// flagKeys maps daemon flags to the config keys they override.
var flagKeys = map[string]string{
	"host":           "server.host",
	"port":           "server.port",
	"tls-cert":       "tls.cert",
	"tls-key":        "tls.key",
	"tls-ca":         "tls.ca",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"aws-tool":       "aws.tool",
	"region":         "aws.default_region",
	"profile":        "aws.default_profile",
	"namespace":      "namespace",
	"shell":          "session.default_shell",
	"invoke-timeout": "invoke_timeout",
}

func rootCmd() *cobra.Command {
	var configFile string

	v := viper.New()

	c := &cobra.Command{
		Use:           "ecsexecd",
		Short:         "gRPC daemon for interactive shells in ECS containers",
		Example:       "  ecsexecd --profile dev --log-level debug",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindFlags(v, cmd.Flags(), flagKeys); err != nil {
				return err
			}

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}

			logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			return runServer(cmd.Context(), cfg, logger)
		},
	}

	d := config.Default()

	c.Flags().StringVar(&configFile, "config", "", "Path to config file")
	c.Flags().String("host", d.Server.Host, "gRPC server host to bind")
	c.Flags().Int("port", d.Server.Port, "gRPC server port")
	c.Flags().String("tls-cert", "", "Path to server TLS certificate (enables mTLS)")
	c.Flags().String("tls-key", "", "Path to server TLS private key")
	c.Flags().String("tls-ca", "", "Path to CA certificate for mTLS")
	c.Flags().String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	c.Flags().String("log-format", d.Log.Format, "Log format (text, json)")
	c.Flags().String("aws-tool", d.AWS.Tool, "AWS CLI executable")
	c.Flags().String("region", d.AWS.DefaultRegion, "Default AWS region")
	c.Flags().String("profile", d.AWS.DefaultProfile, "Default AWS profile")
	c.Flags().String("namespace", d.Namespace, "Session event topic namespace")
	c.Flags().String("shell", d.Session.DefaultShell, "Default shell in containers")
	c.Flags().Duration("invoke-timeout", d.InvokeTimeout, "Timeout for one-shot AWS CLI calls")

	return c
}

// newClient wires the process manager and event bus into an AWS CLI client.
func newClient(cfg *config.Config, logger *slog.Logger) (*awscli.Client, *eventbus.Bus) {
	searchPath := procmanager.SearchPath(os.Getenv("PATH"))

	bus := eventbus.New(logger)

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		bus.SubscribeAll(func(e eventbus.Event) {
			logger.Debug("session event", "topic", e.Topic, "bytes", len(e.Payload))
		})
	}

	sessions := procmanager.NewSessionManager(
		procmanager.NewRegistry(),
		bus,
		logger,
		procmanager.SessionConfig{
			Namespace:    cfg.Namespace,
			SearchPath:   searchPath,
			DrainTimeout: cfg.DrainTimeout,
		},
	)

	runner := procmanager.NewRunner(logger, cfg.InvokeTimeout, searchPath)
	logins := procmanager.NewCancellable(procmanager.NewRegistry(), logger, searchPath)

	client := awscli.New(runner, logins, sessions, logger, awscli.Config{
		Tool:         cfg.AWS.Tool,
		DefaultShell: cfg.Session.DefaultShell,
	})

	return client, bus
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, bus := newClient(cfg, logger)

	s, err := newServer(client, bus, logger, cfg)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- s.start(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.shutdown(shutdownCtx)

	return <-serveErr
}
