package confirm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
)

func testGate(store Store) *Gate {
	return NewGate([]string{"update_machine_status", "send_quote"}, store, 15*time.Minute)
}

func TestGateIsGated(t *testing.T) {
	g := testGate(NewMemoryStore())

	if !g.IsGated("update_machine_status") {
		t.Error("update_machine_status must be gated")
	}
	if g.IsGated("get_sales_report") {
		t.Error("get_sales_report must not be gated")
	}
}

func TestGateSingleOpenActionInvariant(t *testing.T) {
	g := testGate(NewMemoryStore())
	ctx := context.Background()

	call := llm.ToolCall{ID: "tc-1", Name: "update_machine_status", Args: `{"machine_id":"m-1","status":"offline"}`}
	first, err := g.Suspend(ctx, "conv-1", "u1", call, call.Args, "выключить m-1")
	if err != nil {
		t.Fatalf("first suspend failed: %v", err)
	}

	// Второе действие в том же диалоге отклоняется, а не заменяет первое
	call2 := llm.ToolCall{ID: "tc-2", Name: "send_quote", Args: `{"customer_id":"c-1","amount":100,"currency":"RUB"}`}
	if _, err := g.Suspend(ctx, "conv-1", "u1", call2, call2.Args, "КП"); !errors.Is(err, ErrActionPending) {
		t.Errorf("second suspend error = %v, want ErrActionPending", err)
	}

	open, ok, err := g.Open(ctx, "conv-1")
	if err != nil || !ok {
		t.Fatalf("open action not found: %v", err)
	}
	if open.ID != first.ID || open.ToolName != "update_machine_status" {
		t.Errorf("open action silently replaced: %+v", open)
	}

	// Другой диалог — своё действие
	if _, err := g.Suspend(ctx, "conv-2", "u1", call2, call2.Args, "КП"); err != nil {
		t.Errorf("suspend in another conversation failed: %v", err)
	}
}

func TestGateResolveLifecycle(t *testing.T) {
	g := testGate(NewMemoryStore())
	ctx := context.Background()

	call := llm.ToolCall{ID: "tc-1", Name: "send_quote", Args: `{}`}
	action, err := g.Suspend(ctx, "conv-1", "u1", call, "{}", "КП")
	if err != nil {
		t.Fatal(err)
	}

	if err := g.Cancel(ctx, action.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Отменённое действие больше не открыто
	if _, ok, _ := g.Open(ctx, "conv-1"); ok {
		t.Error("cancelled action still reported open")
	}

	// Повторное разрешение — ошибка
	if err := g.Confirm(ctx, action.ID); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("double resolve error = %v, want ErrActionNotFound", err)
	}

	// После разрешения можно создать новое действие
	if _, err := g.Suspend(ctx, "conv-1", "u1", call, "{}", "КП"); err != nil {
		t.Errorf("suspend after resolve failed: %v", err)
	}
}

func TestGateTTLExpiry(t *testing.T) {
	store := NewMemoryStore()
	g := testGate(store)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	call := llm.ToolCall{ID: "tc-1", Name: "send_quote", Args: `{}`}
	action, err := g.Suspend(ctx, "conv-1", "u1", call, "{}", "КП")
	if err != nil {
		t.Fatal(err)
	}

	// До истечения TTL действие открыто
	if _, ok, _ := g.Open(ctx, "conv-1"); !ok {
		t.Fatal("action should be open before TTL")
	}

	// После истечения Open помечает его expired и возвращает само
	// действие: вызывающий код закрывает его повисший tool call
	now = now.Add(16 * time.Minute)
	expired, ok, _ := g.Open(ctx, "conv-1")
	if ok {
		t.Error("expired action still reported open")
	}
	if expired.ID != action.ID || expired.Status != StatusExpired {
		t.Errorf("expired action not surfaced for history repair: %+v", expired)
	}

	// Повторный Open больше ничего не возвращает
	if again, ok, _ := g.Open(ctx, "conv-1"); ok || again.ID != "" {
		t.Errorf("second Open after expiry = %+v, want zero action", again)
	}

	if err := g.Confirm(ctx, action.ID); !errors.Is(err, ErrActionNotFound) {
		t.Errorf("confirm of expired action = %v, want ErrActionNotFound", err)
	}

	// Протухшее действие не блокирует новое
	if _, err := g.Suspend(ctx, "conv-1", "u1", call, "{}", "КП"); err != nil {
		t.Errorf("suspend after expiry failed: %v", err)
	}
}

func TestMemoryStoreExpireStale(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.Create(ctx, PendingAction{
		ID: "a1", ConversationID: "c1", Status: StatusCreated,
		CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	})
	store.Create(ctx, PendingAction{
		ID: "a2", ConversationID: "c2", Status: StatusCreated,
		CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	})

	n, err := store.ExpireStale(ctx, "c1", now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expired %d actions, want 1", n)
	}

	if _, ok, _ := store.Open(ctx, "c1"); ok {
		t.Error("expired action c1 still open")
	}
	// Экспирация скоупится диалогом: чужое протухшее действие
	// не трогаем, его историю чинить некому
	if _, ok, _ := store.Open(ctx, "c2"); !ok {
		t.Error("stale action in another conversation must not be touched")
	}
}
