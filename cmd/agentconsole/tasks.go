package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"agentconsole/internal/agentrun"
)

func newTasksCommand(cli *CLI) *cobra.Command {
	var page, pageSize int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tasks [task-id]",
		Short: "List the task history, or show one task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cli.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				id := args[0]
				record, err := query(cmd.Context(), cli, func(ctx context.Context) (agentrun.TaskRecord, error) {
					return client.Task(ctx, id)
				})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, record)
				}
				printTaskDetail(out, record)
				return nil
			}

			list, err := query(cmd.Context(), cli, func(ctx context.Context) (agentrun.TaskPage, error) {
				return client.Tasks(ctx, page, pageSize)
			})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, list)
			}
			printTaskPage(out, list)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 10, "Tasks per page (max 100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cli.client()
			if err != nil {
				return err
			}
			if err := client.StopTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successText("Task stopped: "+args[0]))
			return nil
		},
	})
	return cmd
}

func taskStatusText(status agentrun.TaskStatus) string {
	label := string(status)
	switch status {
	case agentrun.TaskCompleted:
		return green(label)
	case agentrun.TaskFailed:
		return red(label)
	case agentrun.TaskRunning:
		return cyan(label)
	case agentrun.TaskCancelled:
		return yellow(label)
	default:
		return gray(label)
	}
}

func optionalInt(v *int, suffix string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d%s", *v, suffix)
}

func printTaskPage(w io.Writer, page agentrun.TaskPage) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %-20s %8s %8s\n",
		bold("ID"), bold("NAME"), bold("STATUS"), bold("STARTED"), bold("DURATION"), bold("TOKENS"))
	for _, task := range page.List {
		name := task.Name
		if runes := []rune(name); len(runes) > 38 {
			name = string(runes[:37]) + "…"
		}
		// Pad before colouring so escape codes do not break alignment.
		status := taskStatusText(task.Status) + strings.Repeat(" ", max(0, 10-len(task.Status)))
		fmt.Fprintf(w, "%-10s %-40s %s %-20s %8s %8s\n",
			task.ID, name, status, task.StartTime, optionalInt(task.Duration, "s"), optionalInt(task.TokenUsed, ""))
	}
	pages := 1
	if page.PageSize > 0 {
		pages = max(1, (page.Total+page.PageSize-1)/page.PageSize)
	}
	fmt.Fprintln(w, gray(fmt.Sprintf("page %d of %d, %d tasks", page.Page, pages, page.Total)))
}

func printTaskDetail(w io.Writer, task agentrun.TaskRecord) {
	fmt.Fprintf(w, "%s %s\n", bold("id"), task.ID)
	fmt.Fprintf(w, "%s %s\n", bold("name"), task.Name)
	fmt.Fprintf(w, "%s %s\n", bold("status"), taskStatusText(task.Status))
	fmt.Fprintf(w, "%s %s\n", bold("started"), task.StartTime)
	if task.EndTime != "" {
		fmt.Fprintf(w, "%s %s\n", bold("ended"), task.EndTime)
	}
	fmt.Fprintf(w, "%s %s\n", bold("duration"), optionalInt(task.Duration, "s"))
	fmt.Fprintf(w, "%s %s\n", bold("tokens"), optionalInt(task.TokenUsed, ""))
	if task.Result != "" {
		fmt.Fprintf(w, "%s %s\n", bold("result"), task.Result)
	}
	if task.Error != "" {
		fmt.Fprintf(w, "%s %s\n", bold("error"), red(task.Error))
	}
}

func newStatsCommand(cli *CLI) *cobra.Command {
	var days int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics, token trend and duration distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cli.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stats, err := query(ctx, cli, client.Statistics)
			if err != nil {
				return err
			}
			trend, err := query(ctx, cli, func(ctx context.Context) (agentrun.TokenTrend, error) {
				return client.TokenTrend(ctx, days)
			})
			if err != nil {
				return err
			}
			analysis, err := query(ctx, cli, client.TaskAnalysis)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, map[string]any{
					"statistics":   stats,
					"tokenTrend":   trend,
					"taskAnalysis": analysis,
				})
			}
			printStats(out, stats, trend, analysis)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Days of token trend (max 90)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func printStats(w io.Writer, stats agentrun.Statistics, trend agentrun.TokenTrend, analysis agentrun.TaskAnalysis) {
	fmt.Fprintf(w, "%s %d  %s %d  %s %d  %s %d\n",
		bold("total"), stats.TotalTasks,
		bold("completed"), stats.CompletedTasks,
		bold("failed"), stats.FailedTasks,
		bold("running"), stats.RunningTasks)
	fmt.Fprintf(w, "%s %.1f%%  %s %d\n", bold("success rate"), stats.SuccessRate, bold("tokens"), stats.TotalTokens)

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Token trend"))
	peak := 0
	for _, point := range trend.Trends {
		peak = max(peak, point.Tokens)
	}
	for _, point := range trend.Trends {
		bar := 0
		if peak > 0 {
			bar = point.Tokens * 30 / peak
		}
		fmt.Fprintf(w, "  %s %s %d\n", point.Date, cyan(strings.Repeat("█", bar)), point.Tokens)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d succeeded, %d failed\n", bold("Duration distribution"), analysis.SuccessCount, analysis.FailedCount)
	for _, bucket := range analysis.DurationDistribution {
		fmt.Fprintf(w, "  %-8s %d\n", bucket.Range, bucket.Count)
	}
}
