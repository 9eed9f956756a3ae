package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/runcontroller"
)

// isTTY reports whether both stdin and stdout are terminals.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorText(msg string) string {
	return red("✗ " + msg)
}

func successText(msg string) string {
	return green("✓ " + msg)
}

func statusText(status agentrun.RunStatus) string {
	label := string(status)
	switch status {
	case agentrun.StatusRunning:
		return cyan(label)
	case agentrun.StatusPaused:
		return yellow(label)
	case agentrun.StatusCompleted:
		return green(label)
	case agentrun.StatusError:
		return red(label)
	default:
		return gray(label)
	}
}

func noticeText(notice runcontroller.Notice) string {
	switch notice.Level {
	case runcontroller.NoticeSuccess:
		return green(notice.Message)
	case runcontroller.NoticeWarning:
		return yellow(notice.Message)
	case runcontroller.NoticeError:
		return red(notice.Message)
	default:
		return blue(notice.Message)
	}
}

func roleText(role agentrun.Role) string {
	switch role {
	case agentrun.RoleUser:
		return cyan("you")
	case agentrun.RoleAssistant:
		return green("agent")
	default:
		return gray("system")
	}
}

func printMetrics(w io.Writer, m agentrun.ExecutionMetrics) {
	fmt.Fprintf(w, "%s %s  %s %d/%d  %s %.2fs (avg %.2fs)\n",
		bold("status"), statusText(m.Status),
		bold("steps"), m.CurrentStep, m.MaxSteps,
		bold("duration"), m.TotalDuration, m.AvgStepDuration)
	fmt.Fprintf(w, "%s %d (%d prompt, %d completion)  %s %d (%d system, %d business)\n",
		bold("tokens"), m.TotalTokens, m.PromptTokens, m.CompletionTokens,
		bold("retries"), m.TotalRetries, m.SystemRetries, m.BusinessRetries)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
