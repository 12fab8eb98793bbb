// Абстракции для потоковой передачи (streaming) ответов от LLM.
package llm

import "context"

// StreamingProvider — интерфейс для LLM провайдеров с поддержкой стриминга.
//
// Отдельный интерфейс от Provider для обратной совместимости:
// провайдеры могут реализовать оба или только Provider.
// Контракт запроса тот же, что у Generate — меняется только доставка.
type StreamingProvider interface {
	Provider

	// GenerateStream выполняет запрос с потоковой передачей ответа.
	//
	// Callback вызывается для каждой порции данных. Возвращает финальное
	// накопленное сообщение после завершения стриминга — tool calls
	// доступны только в нём (вендоры не стримят их по частям надёжно).
	GenerateStream(
		ctx context.Context,
		messages []Message,
		callback func(StreamChunk),
		opts ...any,
	) (Message, error)
}

// StreamChunk представляет одну порцию данных из потокового ответа.
type StreamChunk struct {
	// Type определяет тип чанка
	Type ChunkType

	// Content — накопленный текстовый контент на данный момент
	Content string

	// Delta — инкрементальное изменение (для live UI)
	Delta string

	// Done — флаг завершения стриминга
	Done bool

	// Error — ошибка (только когда Type == ChunkError)
	Error error
}

// ChunkType определяет тип стримингового чанка.
type ChunkType string

const (
	// ChunkContent — обычный контент ответа.
	ChunkContent ChunkType = "content"

	// ChunkError — ошибка стриминга.
	ChunkError ChunkType = "error"

	// ChunkDone — завершение стриминга.
	ChunkDone ChunkType = "done"
)
