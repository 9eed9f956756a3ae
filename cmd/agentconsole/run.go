package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/logging"
	"agentconsole/internal/runcontroller"
	"agentconsole/internal/tui"
)

func newRunCommand(cli *CLI) *cobra.Command {
	var attach string
	var detach bool
	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Submit a task and follow it until it finishes",
		Long: `Submit a task and stream its transcript until the run completes,
fails or is stopped. Interrupting the command stops the run.

Exits with code 2 when the run ends in error and 3 when it is stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.TrimSpace(strings.Join(args, " "))
			if attach == "" && task == "" {
				return fmt.Errorf("a task description or --attach is required")
			}
			return cli.runTask(cmd.Context(), cmd.OutOrStdout(), task, attach, detach)
		},
	}
	cmd.Flags().StringVar(&attach, "attach", "", "Follow an existing run instead of submitting")
	cmd.Flags().BoolVar(&detach, "detach", false, "Print the task id and return without following")
	cmd.Flags().Duration("poll-interval", 0, "Status poll interval")
	return cmd
}

// transcriptPrinter writes transcript messages that have not been printed
// yet. The controller replaces the transcript wholesale on every poll.
type transcriptPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *tui.MarkdownRenderer
	printed  int
	taskID   string
}

func (p *transcriptPrinter) onChange(state runcontroller.ViewState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state.TaskID != p.taskID {
		p.taskID = state.TaskID
		p.printed = 0
	}
	if len(state.Transcript) < p.printed {
		p.printed = 0
	}
	for _, msg := range state.Transcript[p.printed:] {
		content := msg.Content
		if msg.Role == agentrun.RoleAssistant {
			content = p.renderer.Render(content)
		}
		fmt.Fprintf(p.out, "%s %s %s\n", gray(msg.Timestamp), roleText(msg.Role), content)
	}
	p.printed = len(state.Transcript)
}

func (p *transcriptPrinter) onNotice(notice runcontroller.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, noticeText(notice))
}

func (cli *CLI) runTask(ctx context.Context, out io.Writer, task, attach string, detach bool) error {
	client, err := cli.client()
	if err != nil {
		return err
	}

	if detach {
		taskID, err := client.Submit(ctx, task)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, taskID)
		return nil
	}

	var renderer *tui.MarkdownRenderer
	if isTTY() {
		renderer, _ = tui.NewMarkdownRenderer(tui.TerminalWidth(), false)
	}
	printer := &transcriptPrinter{out: out, renderer: renderer}
	ctrl := runcontroller.New(client, runcontroller.Options{
		PollInterval: cli.cfg.Client.PollInterval,
		Logger:       logging.NewComponentLogger("Controller"),
		OnChange:     printer.onChange,
		OnNotice:     printer.onNotice,
	})
	defer func() { _ = ctrl.Close() }()

	if attach != "" {
		if err := ctrl.Attach(attach); err != nil {
			return err
		}
	} else {
		taskID, err := ctrl.Submit(ctx, task)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", bold("task"), taskID)
	}

	select {
	case <-ctrl.Done():
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), cli.cfg.Client.RequestTimeout)
		defer cancel()
		if err := ctrl.Stop(stopCtx); err != nil && !errors.Is(err, runcontroller.ErrNoActiveRun) {
			cli.logger.Warn("Stop on interrupt failed: %v", err)
		}
		select {
		case <-ctrl.Done():
		case <-time.After(cli.cfg.Client.RequestTimeout):
		}
	}

	final := ctrl.Snapshot()
	fmt.Fprintln(out)
	printMetrics(out, final.Metrics)

	switch final.Status {
	case agentrun.StatusError:
		return &ExitCodeError{Code: 2, Err: fmt.Errorf("run %s ended in error", final.TaskID)}
	case agentrun.StatusStopped:
		return &ExitCodeError{Code: 3, Err: fmt.Errorf("run %s was stopped", final.TaskID)}
	}
	return nil
}

func newMonitorCommand(cli *CLI) *cobra.Command {
	var attach string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Interactive terminal monitor for one run at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTTY() {
				return fmt.Errorf("monitor needs an interactive terminal; use `agentconsole run` instead")
			}
			client, err := cli.client()
			if err != nil {
				return err
			}
			renderer, err := tui.NewMarkdownRenderer(tui.TerminalWidth(), false)
			if err != nil {
				cli.logger.Warn("Markdown rendering disabled: %v", err)
			}
			// Log lines would corrupt the alternate screen.
			closer, err := logging.Configure(logging.Options{
				Level:  cli.cfg.Log.Level,
				Output: io.Discard,
				File:   cli.cfg.Log.File,
			})
			if err != nil {
				return err
			}
			cli.closeLogger = closer

			bridge := &tui.Bridge{}
			ctrl := runcontroller.New(client, runcontroller.Options{
				PollInterval: cli.cfg.Client.PollInterval,
				Logger:       logging.NewComponentLogger("Controller"),
				OnChange:     bridge.OnChange,
				OnNotice:     bridge.OnNotice,
			})
			if attach != "" {
				if err := ctrl.Attach(attach); err != nil {
					_ = ctrl.Close()
					return err
				}
			}
			return tui.Run(cmd.Context(), ctrl, bridge, renderer)
		},
	}
	cmd.Flags().StringVar(&attach, "attach", "", "Start by following an existing run")
	cmd.Flags().Duration("poll-interval", 0, "Status poll interval")
	return cmd
}
