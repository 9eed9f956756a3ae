// Package tui is the terminal monitor for a single agent run.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/runcontroller"
)

const actionTimeout = 15 * time.Second

// RunController is the controller surface the monitor drives.
type RunController interface {
	Snapshot() runcontroller.ViewState
	Submit(ctx context.Context, task string) (string, error)
	Stop(ctx context.Context) error
	TogglePause(ctx context.Context) error
	Clear() error
	Close() error
}

type stateMsg struct{ state runcontroller.ViewState }

type noticeMsg struct{ notice runcontroller.Notice }

type actionDoneMsg struct {
	action string
	err    error
}

// Model is the bubbletea model of the monitor.
type Model struct {
	ctrl     RunController
	renderer *MarkdownRenderer

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	state  runcontroller.ViewState
	notice *runcontroller.Notice
	busy   string

	width    int
	height   int
	ready    bool
	quitting bool
}

// NewModel builds a monitor over ctrl. renderer may be nil for raw text.
func NewModel(ctrl RunController, renderer *MarkdownRenderer) Model {
	ta := textarea.New()
	ta.Placeholder = "Describe a task for the agent..."
	ta.ShowLineNumbers = false
	ta.SetHeight(2)
	ta.CharLimit = 2000
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		ctrl:     ctrl,
		renderer: renderer,
		input:    ta,
		viewport: viewport.New(80, 12),
		spinner:  sp,
		state:    ctrl.Snapshot(),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles terminal and controller events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := m.handleKeyInput(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(max(msg.Width-4, 20))
		m.viewport.Width = max(msg.Width-2, 20)
		m.viewport.Height = max(msg.Height-14, 4)
		m.ready = true
		m.refreshTranscript()

	case stateMsg:
		m.state = msg.state
		m.refreshTranscript()

	case noticeMsg:
		notice := msg.notice
		m.notice = &notice

	case actionDoneMsg:
		m.busy = ""
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) && m.notice == nil {
			m.notice = &runcontroller.Notice{
				Level:   runcontroller.NoticeError,
				Message: fmt.Sprintf("%s failed: %v", msg.action, msg.err),
				Err:     msg.err,
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	// Keys belong to the input; the viewport only sees mouse and resize.
	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKeyInput(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		_ = m.ctrl.Close()
		return tea.Quit, true

	case tea.KeyEnter:
		task := strings.TrimSpace(m.input.Value())
		if task == "" || !m.state.CanSubmit() {
			return nil, true
		}
		m.input.Reset()
		m.notice = nil
		m.busy = "submit"
		ctrl := m.ctrl
		return m.action("Submit", func(ctx context.Context) error {
			_, err := ctrl.Submit(ctx, task)
			return err
		}), true

	case tea.KeyCtrlS:
		if !m.state.CanStop() {
			return nil, true
		}
		m.busy = "stop"
		return m.action("Stop", m.ctrl.Stop), true

	case tea.KeyCtrlP:
		if !m.state.Status.IsActive() {
			return nil, true
		}
		m.busy = "pause"
		return m.action("Pause/resume", m.ctrl.TogglePause), true

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return nil, true

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return nil, true

	case tea.KeyCtrlL:
		if !m.state.CanClear() {
			return nil, true
		}
		m.notice = nil
		err := m.ctrl.Clear()
		return func() tea.Msg { return actionDoneMsg{action: "Clear", err: err} }, true
	}
	return nil, false
}

func (m Model) action(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{action: name, err: fn(ctx)}
	}
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.state.Transcript) == 0 {
		return helpStyle.Render("No messages yet. Submit a task to start a run.")
	}
	var b strings.Builder
	for i, message := range m.state.Transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := fmt.Sprintf("%s  %s", strings.ToUpper(string(message.Role)), message.Timestamp)
		switch message.Role {
		case agentrun.RoleUser:
			b.WriteString(userMsgStyle.Render(label))
			b.WriteString("\n")
			b.WriteString(message.Content)
		case agentrun.RoleAssistant:
			b.WriteString(assistantMsgStyle.Render(label))
			b.WriteString("\n")
			b.WriteString(m.renderer.Render(message.Content))
		default:
			b.WriteString(systemMsgStyle.Render(label + "  " + message.Content))
		}
	}
	return b.String()
}

// View renders the monitor.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sections []string

	header := headerStyle.Render("Agent Console") + " " + m.renderBadge()
	if m.state.TaskID != "" {
		header += helpStyle.Render("  task " + m.state.TaskID)
	}
	if m.state.Polling || m.state.Submitting || m.busy != "" {
		header += " " + m.spinner.View()
	}
	sections = append(sections, header)
	sections = append(sections, m.renderCards())

	screenshot := "no screenshot"
	if m.state.HasScreenshot() {
		screenshot = "screenshot available"
	}
	sections = append(sections, helpStyle.Render("Browser view: "+screenshot))

	sections = append(sections, m.viewport.View())

	if m.notice != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(noticeColor(m.notice.Level)).
			Render(m.notice.Message))
	}

	sections = append(sections, inputStyle.Render(m.input.View()))
	sections = append(sections, helpStyle.Render(m.renderHelp()))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderBadge() string {
	return badgeStyle.Background(statusColor(m.state.Status)).
		Render(strings.ToUpper(m.state.Status.String()))
}

func (m Model) renderCards() string {
	metrics := m.state.Metrics
	card := func(title, value, detail string) string {
		return cardStyle.Render(
			cardTitleStyle.Render(title) + "\n" +
				cardValueStyle.Render(value) + "\n" +
				helpStyle.Render(detail),
		)
	}
	steps := card("Steps",
		fmt.Sprintf("%d / %d", metrics.CurrentStep, metrics.MaxSteps),
		fmt.Sprintf("%.0f%% · %.2fs avg · %.1fs total", metrics.Progress()*100, metrics.AvgStepDuration, metrics.TotalDuration),
	)
	tokens := card("Tokens",
		fmt.Sprintf("%d", metrics.TotalTokens),
		fmt.Sprintf("%d prompt · %d completion", metrics.PromptTokens, metrics.CompletionTokens),
	)
	retries := card("Retries",
		fmt.Sprintf("%d", metrics.TotalRetries),
		fmt.Sprintf("%d system · %d business", metrics.SystemRetries, metrics.BusinessRetries),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, steps, tokens, retries)
}

func (m Model) renderHelp() string {
	keys := []string{"enter submit"}
	if m.state.CanStop() {
		keys = append(keys, "ctrl+s stop")
	}
	switch m.state.Status {
	case agentrun.StatusRunning:
		keys = append(keys, "ctrl+p pause")
	case agentrun.StatusPaused:
		keys = append(keys, "ctrl+p resume")
	}
	if m.state.CanClear() {
		keys = append(keys, "ctrl+l clear")
	}
	keys = append(keys, "pgup/pgdn scroll", "esc quit")
	return strings.Join(keys, " • ")
}

// Bridge forwards controller events into a running program. Events that
// arrive before Attach are dropped.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

// Attach routes subsequent events to send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = send
}

func (b *Bridge) dispatch(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

// OnChange is a runcontroller.Options.OnChange listener.
func (b *Bridge) OnChange(state runcontroller.ViewState) {
	b.dispatch(stateMsg{state: state})
}

// OnNotice is a runcontroller.Options.OnNotice listener.
func (b *Bridge) OnNotice(notice runcontroller.Notice) {
	b.dispatch(noticeMsg{notice: notice})
}

// Run starts the monitor on the alternate screen and blocks until the
// operator quits. The controller is closed on return.
func Run(ctx context.Context, ctrl RunController, bridge *Bridge, renderer *MarkdownRenderer) error {
	defer func() { _ = ctrl.Close() }()

	program := tea.NewProgram(NewModel(ctrl, renderer),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if bridge != nil {
		bridge.Attach(program.Send)
	}
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
