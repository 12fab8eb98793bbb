// Package confirm — human-in-the-loop подтверждение мутирующих инструментов.
//
// Gated инструмент не выполняется сразу: вызов сохраняется как
// PendingAction, диалог приостанавливается, и только явное "да"
// пользователя в СЛЕДУЮЩЕМ ходе запускает handler. Отказ или
// истечение TTL навсегда закрывают действие.
package confirm

import (
	"context"
	"errors"
	"time"
)

// Status — состояние pending action.
type Status string

const (
	StatusCreated   Status = "created"   // Ожидает решения пользователя
	StatusConfirmed Status = "confirmed" // Подтверждено и выполнено
	StatusCancelled Status = "cancelled" // Отклонено пользователем
	StatusExpired   Status = "expired"   // TTL истёк без решения
)

// PendingAction — отложенный вызов gated инструмента.
//
// Args хранит УЖЕ валидированные аргументы: при resume повторная
// валидация не нужна, handler получает ровно то, что одобрил
// пользователь.
type PendingAction struct {
	ID             string // uuid
	ConversationID string
	UserID         string
	ToolName       string
	Args           string // Канонический JSON аргументов
	ToolCallID     string // ID tool call из ответа модели
	Summary        string // Человекочитаемое описание для подтверждения
	Status         Status
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired сообщает истёк ли TTL действия на момент now.
func (a PendingAction) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

var (
	// ErrActionPending — в диалоге уже есть открытое действие.
	// Инвариант: не более одного created действия на диалог.
	ErrActionPending = errors.New("another action is already awaiting confirmation")

	// ErrActionNotFound — действие не существует или уже разрешено.
	ErrActionNotFound = errors.New("pending action not found")
)

// Store — персистентность pending actions.
type Store interface {
	// Create сохраняет новое действие со статусом created.
	// Возвращает ErrActionPending если у диалога уже есть открытое.
	Create(ctx context.Context, action PendingAction) error

	// Open возвращает открытое (created) действие диалога, если есть.
	Open(ctx context.Context, conversationID string) (PendingAction, bool, error)

	// Resolve переводит действие из created в терминальный статус.
	// Возвращает ErrActionNotFound если действие не в статусе created.
	Resolve(ctx context.Context, actionID string, status Status) error

	// ExpireStale помечает created действия диалога с истёкшим TTL
	// как expired. Возвращает количество затронутых. Область —
	// один диалог: экспирация всегда происходит там, где вызывающий
	// код может починить историю диалога.
	ExpireStale(ctx context.Context, conversationID string, now time.Time) (int, error)
}
