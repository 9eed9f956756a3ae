package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/runclient"
)

func newLifecycleCommands(cli *CLI) []*cobra.Command {
	status := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status and metrics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cli.client()
			if err != nil {
				return err
			}
			taskID := args[0]
			payload, err := query(cmd.Context(), cli, func(ctx context.Context) (agentrun.StatusPayload, error) {
				return client.Status(ctx, taskID)
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", bold("task"), taskID)
			printMetrics(out, payload.Metrics(agentrun.StatusIdle))
			if payload.Screenshot != nil && *payload.Screenshot != "" {
				fmt.Fprintln(out, gray("screenshot available"))
			}
			return nil
		},
	}

	action := func(use, short, done string, send func(*runclient.Client, context.Context, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <task-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := cli.client()
				if err != nil {
					return err
				}
				if err := send(client, cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successText(fmt.Sprintf("%s %s", done, args[0])))
				return nil
			},
		}
	}

	return []*cobra.Command{
		status,
		action("stop", "Stop a run", "Stop signal sent to", (*runclient.Client).Stop),
		action("pause", "Pause a running run", "Paused", (*runclient.Client).Pause),
		action("resume", "Resume a paused run", "Resumed", (*runclient.Client).Resume),
	}
}
