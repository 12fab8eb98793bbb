// Базовые типы — универсальный язык общения с моделями.
package llm

// Role — роль сообщения в диалоге.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message — одно сообщение диалога.
//
// Content содержит текст. Если Images не пусто, провайдер разворачивает
// сообщение в мультимодальный формат (text part + image parts).
//
// ToolCallID обязателен для Role == RoleTool: связывает результат
// инструмента с вызовом, который его породил.
// ToolCalls присутствует на assistant-сообщениях, когда модель
// запросила выполнение инструментов.
type Message struct {
	Role       Role
	Content    string
	Images     []string // base64 data-uri или http ссылки
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall — структурированный запрос модели на вызов инструмента.
//
// Args — сырой JSON от модели, НЕ валидированный. Валидация происходит
// на границе Executor перед вызовом handler'а.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// Result — нормализованный результат одного вызова провайдера.
//
// Provider и Model фиксируют кто реально ответил — важно при fallback,
// когда фактический вендор отличается от запрошенного.
type Result struct {
	Content   string
	ToolCalls []ToolCall
	Provider  string
	Model     string
}

// HasToolCalls проверяет что модель запросила выполнение инструментов.
func (r Result) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// AsMessage конвертирует результат в assistant-сообщение для истории.
func (r Result) AsMessage() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}
