// Интерфейс Tool и структуры определений.

package tools

import "context"

// JSONSchema представляет JSON Schema для параметров инструмента.
//
// Используется вместо interface{} для типобезопасности.
// Формат соответствует JSON Schema specification для Function Calling API.
type JSONSchema map[string]any

// ToolDefinition описывает инструмент для LLM (Function Calling API format).
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  JSONSchema `json:"parameters"` // JSON Schema объекта аргументов
}

// RequiredFields возвращает список обязательных полей из JSON Schema.
func (d ToolDefinition) RequiredFields() []string {
	requiredVal, ok := d.Parameters["required"]
	if !ok {
		return nil
	}

	var fields []string
	switch req := requiredVal.(type) {
	case []string:
		fields = req
	case []any:
		for _, item := range req {
			if s, ok := item.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	return fields
}

// Tool — контракт, который должен реализовать любой инструмент.
//
// "Raw In, String Out": Execute получает сырой JSON аргументов и
// возвращает строку результата (обычно JSON). Handler'ы могут делать
// durable side effects (записи, исходящие сообщения), но итог всегда
// строка — успешный payload или структурированная ошибка.
type Tool interface {
	// Definition возвращает описание инструмента для LLM.
	Definition() ToolDefinition

	// Execute выполняет логику инструмента.
	// argsJSON — сырой JSON с аргументами, который прислала LLM.
	Execute(ctx context.Context, argsJSON string) (string, error)
}
