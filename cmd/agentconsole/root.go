package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"agentconsole/internal/config"
	consoleerrors "agentconsole/internal/errors"
	"agentconsole/internal/logging"
	"agentconsole/internal/runclient"
)

// flagKeys maps command flags onto configuration keys. A flag only
// overrides the file and environment when it was set explicitly.
var flagKeys = map[string]string{
	"base-url":      "client.base_url",
	"poll-interval": "client.poll_interval",
	"timeout":       "client.request_timeout",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"addr":          "server.addr",
	"env":           "server.environment",
	"read-only":     "server.read_only",
	"static-dir":    "server.static_dir",
	"seed-demo":     "history.seed_demo_tasks",
	"settings-file": "settings_file",
	"metrics":       "observability.metrics.enabled",
}

// CLI holds state shared by every subcommand.
type CLI struct {
	configPath string
	verbose    bool

	cfg         config.Config
	meta        config.Metadata
	closeLogger func() error
	logger      logging.Logger
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	cli := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "agentconsole",
		Short: "Submit, monitor and control browser-agent runs",
		Long: fmt.Sprintf(`%s

Runs the agent console server and drives it from the terminal.

%s
  agentconsole serve                       # Start the console on :8000
  agentconsole run "compare laptop prices" # Submit and follow a run
  agentconsole monitor                     # Interactive run monitor
  agentconsole tasks --page 2              # Browse task history
  agentconsole settings get llm            # Show LLM settings`,
			bold("Agent Console "+version),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cli.initialize(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if cli.closeLogger != nil {
				return cli.closeLogger()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cli.configPath, "config", "c", "", "Config file (default ./agentconsole.yaml or ~/.agentconsole/agentconsole.yaml)")
	flags.BoolVarP(&cli.verbose, "verbose", "v", false, "Debug logging")
	flags.String("base-url", "", "Console server URL")
	flags.Duration("timeout", 0, "Per-request timeout")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(newServeCommand(cli))
	rootCmd.AddCommand(newRunCommand(cli))
	rootCmd.AddCommand(newMonitorCommand(cli))
	rootCmd.AddCommand(newLifecycleCommands(cli)...)
	rootCmd.AddCommand(newTasksCommand(cli))
	rootCmd.AddCommand(newStatsCommand(cli))
	rootCmd.AddCommand(newSettingsCommand(cli))
	rootCmd.AddCommand(newChannelCommand(cli))
	rootCmd.AddCommand(newConfigCommand(cli))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func (cli *CLI) initialize(cmd *cobra.Command) error {
	opts := []config.Option{}
	if cli.configPath != "" {
		opts = append(opts, config.WithConfigPath(cli.configPath))
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			opts = append(opts, config.WithOverride(key, f.Value.String()))
		}
	})
	if cli.verbose {
		opts = append(opts, config.WithOverride("log.level", "debug"))
	}

	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return err
	}
	cli.cfg = cfg
	cli.meta = meta

	closer, err := logging.Configure(logging.Options{
		Level:  cfg.Log.Level,
		Output: cmd.ErrOrStderr(),
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	cli.closeLogger = closer
	cli.logger = logging.NewComponentLogger("CLI")
	if file := meta.File(); file != "" {
		cli.logger.Debug("Loaded config from %s", file)
	}
	return nil
}

func (cli *CLI) client() (*runclient.Client, error) {
	return runclient.New(runclient.Config{
		BaseURL:          cli.cfg.Client.BaseURL,
		Timeout:          cli.cfg.Client.RequestTimeout,
		MaxResponseBytes: cli.cfg.Client.MaxResponseBytes,
		Logger:           logging.NewComponentLogger("RunClient"),
	})
}

// query runs a read-only request with retries on transient failures.
func query[T any](ctx context.Context, cli *CLI, fn func(context.Context) (T, error)) (T, error) {
	return consoleerrors.RetryWithResult(ctx, consoleerrors.DefaultRetryConfig(), fn, cli.logger)
}

func operatorName() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if name := strings.TrimSpace(os.Getenv(key)); name != "" {
			return name
		}
	}
	return "operator"
}
