package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/opsdesk/opsdesk-ai/pkg/confirm"
	"github.com/opsdesk/opsdesk-ai/pkg/orchestrator"
)

func testSession() Session {
	return Session{
		ConversationID: "conv-1",
		UserID:         "u1",
		AgentID:        "sales",
	}
}

// Test 1: начальное состояние модели
func TestModel_New(t *testing.T) {
	m := NewModel(nil, testSession())

	assert.Equal(t, modeInput, m.mode, "fresh model should accept input")
	assert.Nil(t, m.pending, "no pending action at start")
	assert.False(t, m.ready, "viewport not ready before WindowSizeMsg")
}

// Test 2: WindowSizeMsg инициализирует viewport
func TestModel_Update_WindowSizeMsg(t *testing.T) {
	m := NewModel(nil, testSession())

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model := updated.(Model)

	assert.True(t, model.ready, "viewport should be ready after resize")
	assert.Equal(t, 80, model.viewport.Width)
}

// Test 3: suspension переключает в режим подтверждения
func TestModel_TurnDone_Suspension(t *testing.T) {
	m := NewModel(nil, testSession())
	m.ready = true
	m.width = 80

	pending := &confirm.PendingAction{
		ID:       "a-1",
		ToolName: "update_machine_status",
		Args:     `{"machine_id":"m-1","status":"offline"}`,
	}

	updated, _ := m.Update(turnDoneMsg{out: orchestrator.TurnOutput{Pending: pending}})
	model := updated.(Model)

	assert.Equal(t, modeConfirm, model.mode, "suspension should enter confirm mode")
	assert.Equal(t, "a-1", model.pending.ID)
}

// Test 4: ошибка хода возвращает режим ввода
func TestModel_TurnDone_Error(t *testing.T) {
	m := NewModel(nil, testSession())
	m.ready = true
	m.width = 80
	m.mode = modeWaiting

	updated, _ := m.Update(turnDoneMsg{err: assert.AnError})
	model := updated.(Model)

	assert.Equal(t, modeInput, model.mode, "error should re-enable input")
	assert.Nil(t, model.pending)
}

// Test 5: обычный ответ рендерится и возвращает ввод
func TestModel_TurnDone_Reply(t *testing.T) {
	m := NewModel(nil, testSession())

	// Viewport должен получить реальные размеры, иначе View()
	// не отрисует содержимое
	sized, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model := sized.(Model)
	model.mode = modeWaiting

	updated, _ := model.Update(turnDoneMsg{out: orchestrator.TurnOutput{Reply: "Готово."}})
	model = updated.(Model)

	assert.Equal(t, modeInput, model.mode)
	assert.Contains(t, model.View(), "Готово.")
}
