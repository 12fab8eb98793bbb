package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// Gate решает, какие инструменты требуют подтверждения,
// и управляет жизненным циклом pending actions.
type Gate struct {
	gated map[string]struct{}
	store Store
	ttl   time.Duration

	now func() time.Time
}

// NewGate создает Gate с перечнем gated инструментов.
func NewGate(gatedTools []string, store Store, ttl time.Duration) *Gate {
	gated := make(map[string]struct{}, len(gatedTools))
	for _, name := range gatedTools {
		gated[name] = struct{}{}
	}
	return &Gate{
		gated: gated,
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// IsGated сообщает требует ли инструмент подтверждения.
func (g *Gate) IsGated(toolName string) bool {
	_, ok := g.gated[toolName]
	return ok
}

// Suspend сохраняет gated вызов как pending action.
//
// args — УЖЕ валидированный JSON аргументов. Если у диалога есть
// другое открытое действие, возвращается ErrActionPending —
// вызывающий код превращает его в error-строку для модели.
func (g *Gate) Suspend(ctx context.Context, conversationID, userID string, call llm.ToolCall, args, summary string) (PendingAction, error) {
	now := g.now()

	// Чистим протухшие действия этого диалога перед проверкой
	// инварианта — забытое вчерашнее "да/нет" не должно его блокировать.
	if _, err := g.store.ExpireStale(ctx, conversationID, now); err != nil {
		return PendingAction{}, fmt.Errorf("failed to expire stale actions: %w", err)
	}

	action := PendingAction{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		ToolName:       call.Name,
		Args:           args,
		ToolCallID:     call.ID,
		Summary:        summary,
		Status:         StatusCreated,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.ttl),
	}

	if err := g.store.Create(ctx, action); err != nil {
		return PendingAction{}, err
	}

	utils.Info("Action suspended for confirmation",
		"action_id", action.ID,
		"conversation_id", conversationID,
		"tool", call.Name,
		"expires_at", action.ExpiresAt.Format(time.RFC3339))

	return action, nil
}

// Open возвращает открытое действие диалога с учётом TTL.
//
// Если действие найдено, но протухло, оно помечается expired и
// возвращается с ok=false. Не-нулевое действие при ok=false —
// сигнал вызывающему коду: в истории диалога остался tool call
// без ответа, её нужно дописать синтетическим tool-сообщением.
func (g *Gate) Open(ctx context.Context, conversationID string) (PendingAction, bool, error) {
	action, ok, err := g.store.Open(ctx, conversationID)
	if err != nil || !ok {
		return PendingAction{}, false, err
	}

	if action.Expired(g.now()) {
		if err := g.store.Resolve(ctx, action.ID, StatusExpired); err != nil {
			return PendingAction{}, false, fmt.Errorf("failed to expire action: %w", err)
		}
		utils.Info("Pending action expired", "action_id", action.ID, "tool", action.ToolName)
		action.Status = StatusExpired
		return action, false, nil
	}

	return action, true, nil
}

// Confirm переводит действие в confirmed.
func (g *Gate) Confirm(ctx context.Context, actionID string) error {
	return g.store.Resolve(ctx, actionID, StatusConfirmed)
}

// Cancel переводит действие в cancelled.
func (g *Gate) Cancel(ctx context.Context, actionID string) error {
	return g.store.Resolve(ctx, actionID, StatusCancelled)
}
