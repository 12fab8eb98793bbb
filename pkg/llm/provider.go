// Интерфейс Провайдера через который работает всё приложение.

package llm

import "context"

// Provider — контракт для любого AI-вендора.
//
// opts принимает GenerateOption и []tools.ToolDefinition (через any,
// чтобы избежать циклического импорта с pkg/tools).
type Provider interface {
	// Generate отправляет историю сообщений и возвращает ответ модели.
	Generate(ctx context.Context, messages []Message, opts ...any) (Message, error)
}
