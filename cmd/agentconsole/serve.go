package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agentconsole/internal/console"
	"agentconsole/internal/logging"
	"agentconsole/internal/observability"
)

func newServeCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.serve(cmd.Context(), cmd)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "Listen address")
	flags.String("env", "", "Environment (development, production)")
	flags.Bool("read-only", false, "Refuse runs and settings changes")
	flags.String("static-dir", "", "Serve a built web front-end from this directory")
	flags.Bool("seed-demo", true, "Seed task history with demo records")
	flags.String("settings-file", "", "Persist console settings to this YAML file")
	flags.Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	return cmd
}

func (cli *CLI) serve(ctx context.Context, cmd *cobra.Command) error {
	cfg := cli.cfg

	obs := observability.New(cfg.Observability, cmd.ErrOrStderr())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()
	logger := logging.ForFormat(cfg.Log.Format, obs.Logger, "Main")

	operator := console.NewContext(operatorName(), cfg.Server.Environment, cfg.Server.ReadOnly)
	server, err := console.New(console.Options{
		Context:         operator,
		Simulator:       cfg.Simulator,
		HistoryCapacity: cfg.History.Capacity,
		SeedDemo:        cfg.History.SeedDemoTasks,
		SettingsFile:    cfg.SettingsFile,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		StaticDir:       cfg.Server.StaticDir,
		Production:      cfg.IsProduction(),
		Version:         version,
		Observability:   obs,
		Logger:          logging.ForFormat(cfg.Log.Format, obs.Logger, "Console"),
	})
	if err != nil {
		return fmt.Errorf("initialize console: %w", err)
	}

	logger.Info("Starting agent console %s on %s (env=%s, operator=%s, read_only=%t)",
		version, cfg.Server.Addr, cfg.Server.Environment, operator.Operator, cfg.Server.ReadOnly)
	for _, key := range []string{"server.addr", "client.base_url", "log.level", "settings_file"} {
		logger.Debug("config %s from %s", key, cli.meta.Source(key))
	}

	if err := server.Serve(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
