package tui

import (
	"github.com/charmbracelet/lipgloss"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/runcontroller"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	infoColor    = lipgloss.Color("#06B6D4")

	headerStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1).
			Width(26)

	cardTitleStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	cardValueStyle = lipgloss.NewStyle().
			Bold(true)

	userMsgStyle = lipgloss.NewStyle().
			Foreground(infoColor).
			Bold(true)

	assistantMsgStyle = lipgloss.NewStyle().
				Foreground(successColor)

	systemMsgStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

func statusColor(status agentrun.RunStatus) lipgloss.Color {
	switch status {
	case agentrun.StatusRunning:
		return infoColor
	case agentrun.StatusPaused:
		return warningColor
	case agentrun.StatusCompleted:
		return successColor
	case agentrun.StatusError:
		return errorColor
	default:
		return mutedColor
	}
}

func noticeColor(level runcontroller.NoticeLevel) lipgloss.Color {
	switch level {
	case runcontroller.NoticeSuccess:
		return successColor
	case runcontroller.NoticeWarning:
		return warningColor
	case runcontroller.NoticeError:
		return errorColor
	default:
		return infoColor
	}
}
