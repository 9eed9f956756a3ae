package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agentconsole/internal/broadcast"
	"agentconsole/internal/logging"
)

func newChannelCommand(cli *CLI) *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Publish or watch console change notifications",
	}
	cmd.PersistentFlags().StringVar(&channel, "channel", broadcast.DefaultChannel, "Channel name")

	dial := func(ctx context.Context, registry *broadcast.Registry) (*broadcast.Remote, error) {
		return broadcast.Dial(ctx, cli.cfg.Client.BaseURL, channel, registry, logging.NewComponentLogger("Channel"))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "publish <key>",
		Short: "Notify every peer on the channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := broadcast.NewRegistry(cli.logger)
			remote, err := dial(cmd.Context(), registry)
			if err != nil {
				return err
			}
			defer remote.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cli.cfg.Client.RequestTimeout)
			defer cancel()
			if err := registry.Publish(ctx, args[0]); err != nil {
				return fmt.Errorf("publish %q: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successText("Published "+args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "listen [key...]",
		Short: "Print notifications until interrupted",
		Long:  "Print notifications until interrupted. Defaults to tasks-changed and settings-changed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := args
			if len(keys) == 0 {
				keys = []string{broadcast.KeyTasksChanged, broadcast.KeySettingsChanged}
			}

			out := cmd.OutOrStdout()
			registry := broadcast.NewRegistry(cli.logger)
			for _, key := range keys {
				registry.Subscribe(key, func(key string) {
					fmt.Fprintf(out, "%s %s\n", gray(time.Now().Format("15:04:05")), cyan(key))
				})
			}

			remote, err := dial(cmd.Context(), registry)
			if err != nil {
				return err
			}
			defer remote.Close()
			fmt.Fprintln(out, gray(fmt.Sprintf("listening on %q for %v", channel, keys)))

			select {
			case <-cmd.Context().Done():
				return nil
			case <-remote.Done():
				return fmt.Errorf("channel connection closed by server")
			}
		},
	})
	return cmd
}
