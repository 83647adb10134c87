package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"model-engine-manager/internal/artifacts"
	"model-engine-manager/internal/session"
	"model-engine-manager/internal/settings"
)

type manageMode int

const (
	manageModeBrowse manageMode = iota
	manageModeDataPrompt
)

type sessionEventMsg struct {
	ev session.Event
}

var (
	manageTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	manageMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	manageErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	manageOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	manageMissStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	managePanelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	manageSelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	manageActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

type manageModel struct {
	env      *env
	sess     *session.Session
	statuses []artifacts.Status

	cursor int
	width  int
	height int
	mode   manageMode

	pendingPrecision artifacts.Precision
	input            textinput.Model

	spin      spinner.Model
	logs      []string
	logView   viewport.Model
	viewReady bool

	statusMessage string
	fatalErr      error
}

const manageLogKeep = 500

func runManage(args []string) error {
	fs := flag.NewFlagSet("manage", flag.ContinueOnError)
	settingsPath := fs.String("settings", settings.DefaultPath(), "settings file path")
	catalogPath := fs.String("catalog", DefaultCatalogPath, "catalog file path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("manage requires an interactive terminal (TTY)")
	}

	e, err := loadEnv(*settingsPath, *catalogPath)
	if err != nil {
		return err
	}
	if err := e.session.TrySelect(0); err != nil {
		return err
	}

	input := textinput.New()
	input.Placeholder = "path/to/calibration.yaml"

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := manageModel{
		env:   e,
		sess:  e.session,
		spin:  spin,
		input: input,
		mode:  manageModeBrowse,
	}
	m.refreshStatuses()

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("manage requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(manageModel); ok {
		return fm.fatalErr
	}
	return nil
}

func (m *manageModel) refreshStatuses() {
	statuses := make([]artifacts.Status, len(m.env.entries))
	for i, entry := range m.env.entries {
		statuses[i] = m.env.resolver.Resolve(entry)
	}
	m.statuses = statuses
}

func waitForEvent(s *session.Session) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.Events()
		if !ok {
			return nil
		}
		return sessionEventMsg{ev: ev}
	}
}

func (m manageModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.sess))
}

func (m manageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLogView()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case sessionEventMsg:
		m.sess.Apply(msg.ev)
		switch ev := msg.ev.(type) {
		case session.LogEvent:
			m.appendLog(ev.Line)
		case session.StateEvent:
			m.statusMessage = fmt.Sprintf("job %s", ev.State)
		case session.DoneEvent:
			m.statusMessage = ev.Outcome.Message
			m.appendLog(ev.Outcome.Message)
			m.refreshStatuses()
		}
		return m, waitForEvent(m.sess)

	case tea.KeyMsg:
		if m.mode == manageModeDataPrompt {
			return m.updateDataPrompt(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m manageModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		if m.sess.Busy() {
			m.statusMessage = "a job is running - press c to cancel it first (ctrl+c to force quit)"
			return m, nil
		}
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.selectCursor()
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.env.entries)-1 {
			m.cursor++
			m.selectCursor()
		}
		return m, nil
	case "d":
		m.startAction(func() error { return m.sess.StartDownload() })
		return m, nil
	case "1":
		m.startAction(func() error { return m.sess.StartBuild(artifacts.PrecisionFP32, "") })
		return m, nil
	case "2":
		m.startAction(func() error { return m.sess.StartBuild(artifacts.PrecisionFP16, "") })
		return m, nil
	case "3":
		if m.sess.Busy() {
			m.statusMessage = "a job is already running"
			return m, nil
		}
		m.mode = manageModeDataPrompt
		m.pendingPrecision = artifacts.PrecisionINT8
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink
	case "c":
		if err := m.sess.CancelActive(); err != nil {
			m.statusMessage = err.Error()
		} else {
			m.statusMessage = "cancellation requested"
		}
		return m, nil
	case "r":
		m.refreshStatuses()
		m.sess.RefreshStatus()
		m.statusMessage = "status refreshed"
		return m, nil
	}
	return m, nil
}

func (m manageModel) updateDataPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = manageModeBrowse
		m.input.Blur()
		return m, nil
	case "enter":
		path := strings.TrimSpace(m.input.Value())
		m.mode = manageModeBrowse
		m.input.Blur()
		m.startAction(func() error { return m.sess.StartBuild(m.pendingPrecision, path) })
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// startAction runs a session mutation and routes its synchronous
// error, if any, to the status line. Busy rejections land here too.
func (m *manageModel) startAction(action func() error) {
	if err := action(); err != nil {
		m.statusMessage = err.Error()
		return
	}
	if entry, ok := m.sess.Selected(); ok {
		m.statusMessage = fmt.Sprintf("job started for %s", entry.ModelName())
	}
}

func (m *manageModel) selectCursor() {
	if err := m.sess.TrySelect(m.cursor); err != nil {
		m.statusMessage = err.Error()
	}
}

func (m *manageModel) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > manageLogKeep {
		m.logs = m.logs[len(m.logs)-manageLogKeep:]
	}
	if m.viewReady {
		m.logView.SetContent(strings.Join(m.logs, "\n"))
		m.logView.GotoBottom()
	}
}

func (m *manageModel) resizeLogView() {
	listHeight := len(m.env.entries) + 6
	logHeight := m.height - listHeight - 4
	if logHeight < 3 {
		logHeight = 3
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	if !m.viewReady {
		m.logView = viewport.New(width, logHeight)
		m.viewReady = true
	} else {
		m.logView.Width = width
		m.logView.Height = logHeight
	}
	m.logView.SetContent(strings.Join(m.logs, "\n"))
	m.logView.GotoBottom()
}

func (m manageModel) View() string {
	var b strings.Builder

	b.WriteString(manageTitleStyle.Render("Model Engine Manager"))
	b.WriteString("\n\n")

	for i, entry := range m.env.entries {
		st := artifacts.Status{}
		if i < len(m.statuses) {
			st = m.statuses[i]
		}
		row := fmt.Sprintf("%-20s %-10s %s %s %s %s",
			entry.Label(), entry.Task,
			flagIcon("weights", st.Weights),
			flagIcon("fp32", st.FP32),
			flagIcon("fp16", st.FP16),
			flagIcon("int8", st.INT8),
		)
		if i == m.cursor {
			row = manageSelStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.sess.Busy() {
		job := m.sess.ActiveJob()
		b.WriteString(m.spin.View())
		b.WriteString(manageActiveStyle.Render(" " + job.Spec().Describe()))
		b.WriteString("\n")
	}
	if m.statusMessage != "" {
		style := manageMutedStyle
		if strings.Contains(m.statusMessage, "fail") || strings.Contains(m.statusMessage, "error") {
			style = manageErrorStyle
		}
		b.WriteString(style.Render(m.statusMessage))
		b.WriteString("\n")
	}

	if m.mode == manageModeDataPrompt {
		b.WriteString("\n")
		b.WriteString("calibration descriptor for int8 build (enter to confirm, esc to abort):\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.viewReady {
		b.WriteString(managePanelStyle.Render(m.logView.View()))
		b.WriteString("\n")
	}

	b.WriteString(manageMutedStyle.Render("↑/↓ select · d download · 1 fp32 · 2 fp16 · 3 int8 · c cancel · r refresh · q quit"))
	return b.String()
}

func flagIcon(label string, present bool) string {
	if present {
		return manageOKStyle.Render("✔" + label)
	}
	return manageMissStyle.Render("✘" + label)
}
