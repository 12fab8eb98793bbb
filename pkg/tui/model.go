// Package tui — терминальный интерфейс оператора OpsDesk на Bubble Tea.
//
// Один диалог на сессию. Когда оркестратор приостанавливает ход на
// подтверждении gated действия, интерфейс переключается в режим
// confirm: y выполняет действие, n отменяет, Esc тоже отменяет.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/opsdesk/opsdesk-ai/pkg/confirm"
	"github.com/opsdesk/opsdesk-ai/pkg/orchestrator"
)

// ===== STYLES =====

var (
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	confirmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("220")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// mode — текущий режим ввода.
type mode int

const (
	modeInput   mode = iota // обычный ввод сообщения
	modeWaiting             // ждем ответ оркестратора
	modeConfirm             // ждем y/n по pending action
)

// turnDoneMsg — результат фонового вызова оркестратора.
type turnDoneMsg struct {
	out orchestrator.TurnOutput
	err error
}

// Session — параметры диалога, которым управляет TUI.
type Session struct {
	ConversationID string
	UserID         string
	TenantID       string
	AgentID        string
}

// Model — состояние Bubble Tea программы.
type Model struct {
	orch    *orchestrator.Orchestrator
	session Session

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	mode    mode
	pending *confirm.PendingAction
	lines   []string
	width   int
	ready   bool
}

// NewModel создает TUI модель.
func NewModel(orch *orchestrator.Orchestrator, session Session) Model {
	ti := textinput.New()
	ti.Placeholder = "Сообщение агенту..."
	ti.Focus()
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		orch:    orch,
		session: session,
		input:   ti,
		spin:    sp,
		mode:    modeInput,
		lines: []string{
			systemStyle.Render(fmt.Sprintf("OpsDesk AI · агент: %s · диалог: %s", session.AgentID, session.ConversationID)),
			systemStyle.Render("Enter — отправить, Ctrl+C — выход"),
		},
	}
}

// Init реализует tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update реализует tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		inputHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - inputHeight
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		}
		switch m.mode {
		case modeInput:
			return m.updateInput(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		case modeWaiting:
			return m, nil // ввод заблокирован до ответа
		}

	case turnDoneMsg:
		return m.handleTurnDone(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// updateInput обрабатывает клавиши в режиме ввода.
func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.appendLine(userStyle.Render("Вы: ") + text)
		m.mode = modeWaiting

		return m, tea.Batch(m.spin.Tick, m.runTurn(text))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateConfirm обрабатывает y/n по pending action.
func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "д":
		m.appendLine(systemStyle.Render("→ подтверждено"))
		m.mode = modeWaiting
		return m, tea.Batch(m.spin.Tick, m.resume(true))
	case "n", "н", "esc":
		m.appendLine(systemStyle.Render("→ отменено"))
		m.mode = modeWaiting
		return m, tea.Batch(m.spin.Tick, m.resume(false))
	}
	return m, nil
}

// runTurn запускает ход в фоне.
func (m Model) runTurn(text string) tea.Cmd {
	orch, s := m.orch, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		out, err := orch.Run(ctx, orchestrator.TurnInput{
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			TenantID:       s.TenantID,
			AgentID:        s.AgentID,
			Text:           text,
		})
		return turnDoneMsg{out: out, err: err}
	}
}

// resume продолжает ход после решения пользователя.
func (m Model) resume(approve bool) tea.Cmd {
	orch, s, action := m.orch, m.session, m.pending
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		out, err := orch.Resume(ctx, orchestrator.ResumeInput{
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			TenantID:       s.TenantID,
			AgentID:        s.AgentID,
			ActionID:       action.ID,
			Approve:        approve,
		})
		return turnDoneMsg{out: out, err: err}
	}
}

// handleTurnDone обрабатывает результат хода.
func (m Model) handleTurnDone(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	m.pending = nil

	if msg.err != nil {
		m.appendLine(errorStyle.Render("Ошибка: " + msg.err.Error()))
		m.mode = modeInput
		return m, nil
	}

	if msg.out.Suspended() {
		m.pending = msg.out.Pending
		m.appendLine(confirmStyle.Render(fmt.Sprintf(
			"Требуется подтверждение: %s\nАргументы: %s\n[y — выполнить / n — отменить]",
			m.pending.ToolName, m.pending.Args)))
		m.mode = modeConfirm
		return m, nil
	}

	reply := msg.out.Reply
	if reply == "" {
		reply = "(пустой ответ)"
	}
	m.appendLine(agentStyle.Render("Агент: ") + reply)

	if msg.out.Degraded {
		m.appendLine(systemStyle.Render("⚠ ход завершен по лимиту итераций"))
	}
	if len(msg.out.QA.Flags) > 0 {
		m.appendLine(systemStyle.Render(fmt.Sprintf("QA: %s [%s]",
			msg.out.QA.Severity, strings.Join(msg.out.QA.Flags, ", "))))
	}

	m.mode = modeInput
	return m, nil
}

// appendLine добавляет строку в историю и прокручивает вниз.
func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line, "")
	m.refreshViewport()
}

// refreshViewport перерисовывает содержимое с учетом ширины.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	content := wordwrap.String(strings.Join(m.lines, "\n"), width-2)
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

// View реализует tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Загрузка..."
	}

	var footer string
	switch m.mode {
	case modeWaiting:
		footer = statusStyle.Render(m.spin.View() + " думаю...")
	case modeConfirm:
		footer = statusStyle.Render("подтвердите действие: y / n")
	default:
		footer = m.input.View()
	}

	return m.viewport.View() + "\n" + footer
}

// Run запускает TUI программу.
func Run(orch *orchestrator.Orchestrator, session Session) error {
	p := tea.NewProgram(NewModel(orch, session), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
