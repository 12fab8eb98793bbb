package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
)

func sampleTurn() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleUser, Content: "выключи m-1"},
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "tc-1", Name: "update_machine_status", Args: `{"machine_id":"m-1","status":"offline"}`},
			},
		},
		{Role: llm.RoleTool, Content: `{"status":"offline"}`, ToolCallID: "tc-1"},
		{Role: llm.RoleAssistant, Content: "Готово."},
	}
}

func verifyWireShape(t *testing.T, history []llm.Message) {
	t.Helper()

	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}

	// Tool calls на assistant сообщении пережили round-trip
	if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].ID != "tc-1" {
		t.Errorf("assistant tool calls lost: %+v", history[1])
	}
	// Tool-сообщение сохранило привязку
	if history[2].ToolCallID != "tc-1" {
		t.Errorf("tool_call_id lost: %+v", history[2])
	}
	// Порядок хронологический
	if history[3].Content != "Готово." {
		t.Errorf("ordering broken: %+v", history[3])
	}
}

func TestMemoryConversationsRoundTrip(t *testing.T) {
	store := NewMemoryConversations()
	ctx := context.Background()

	if err := store.Append(ctx, "conv-1", sampleTurn()...); err != nil {
		t.Fatal(err)
	}

	history, err := store.History(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	verifyWireShape(t, history)

	// Чужой диалог пуст
	other, _ := store.History(ctx, "conv-2")
	if len(other) != 0 {
		t.Errorf("unexpected cross-conversation leak: %d messages", len(other))
	}
}

func TestSQLiteConversationsRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	store, err := NewSQLiteConversations(db)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Append(ctx, "conv-1", sampleTurn()...); err != nil {
		t.Fatal(err)
	}

	history, err := store.History(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	verifyWireShape(t, history)
}
