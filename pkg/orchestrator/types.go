// Package orchestrator — многоходовой цикл tool-calling поверх gateway.
//
// Один вход (Run) на обычный ход диалога, второй (Resume) на
// продолжение после человеческого подтверждения. Оба входа stateless:
// всё, что переживает вызов, лежит во внешних store'ах.
package orchestrator

import (
	"context"

	"github.com/opsdesk/opsdesk-ai/pkg/confirm"
	"github.com/opsdesk/opsdesk-ai/pkg/gateway"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/qa"
	"github.com/opsdesk/opsdesk-ai/pkg/selector"
)

// DefaultMaxIterations — потолок вызовов модели за один ход.
//
// Ограничивает стоимость и латентность против "зациклившейся"
// модели, бесконечно запрашивающей инструменты.
const DefaultMaxIterations = 3

// Caller — контракт вызова AI вендора.
// Gateway реализует его; тесты подставляют скриптованный mock.
type Caller interface {
	Call(ctx context.Context, req gateway.Request) (llm.Result, error)
}

// TurnInput — входящий ход диалога.
type TurnInput struct {
	ConversationID string
	UserID         string
	TenantID       string
	AgentID        string
	Text           string
	Images         []string // base64 data-uri вложений (уже подготовленных)

	// Function — ключ rate limit'а. Пусто = "chat".
	Function string
}

// TurnOutput — результат хода.
//
// Ровно один из исходов: Reply (финальный ответ) или Pending
// (ход приостановлен, ждём подтверждения пользователя).
type TurnOutput struct {
	Reply   string
	Pending *confirm.PendingAction

	Route        selector.Route
	ToolsInvoked bool
	// Degraded — цикл исчерпал итерации с незакрытыми tool calls;
	// Reply содержит лучший доступный контент (возможно пустой).
	Degraded bool
	QA       qa.Verdict
}

// Suspended сообщает, приостановлен ли ход на подтверждении.
func (o TurnOutput) Suspended() bool {
	return o.Pending != nil
}

// ResumeInput — решение пользователя по pending action.
type ResumeInput struct {
	ConversationID string
	UserID         string
	TenantID       string
	AgentID        string
	ActionID       string
	Approve        bool
}

// cancelledResult — текст tool-сообщения при отказе пользователя.
// Handler при этом не вызывается; модель получает факт отмены
// и формулирует вежливое подтверждение.
const cancelledResult = "Action was cancelled by the user. Do not retry it; acknowledge the cancellation."

// skippedResult — текст tool-сообщения для вызовов, не выполненных
// из-за приостановки хода. Держит историю wire-валидной: каждый
// tool call получает свой tool-ответ.
const skippedResult = "Skipped: the turn was suspended awaiting user confirmation of a prior action."

// expiredResult — текст tool-сообщения для действия, чей TTL истёк
// без решения пользователя. Дописывается в историю при обнаружении
// экспирации: висящий tool call без ответа ломает wire-контракт.
const expiredResult = "Action expired without user confirmation and was not executed. Do not retry it; ask the user if it is still needed."

// toolMessage собирает tool-сообщение с привязкой к исходному вызову.
func toolMessage(call llm.ToolCall, result string) llm.Message {
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    result,
		ToolCallID: call.ID,
	}
}
