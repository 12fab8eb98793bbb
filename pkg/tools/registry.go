package tools

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Registry — потокобезопасный набор инструментов, доступных модели.
// Регистрация проверяет схему: кривое определение роняет запуск,
// а не первый запрос к вендору.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry создает пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// validateToolDefinition проверяет, что определение — валидная
// JSON Schema уровня, который принимают все вендоры: непустое имя,
// parameters типа object, required (если есть) — массив строк.
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Parameters == nil {
		return fmt.Errorf("tool '%s': parameters cannot be nil", def.Name)
	}

	// Parameters объявлен как map[string]any, но значения могли
	// прийти откуда угодно — прогоняем через JSON, чтобы проверить
	// ровно ту форму, которую увидит вендор
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool '%s': failed to marshal parameters: %w", def.Name, err)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("tool '%s': parameters must be a JSON object, got: %s", def.Name, string(raw))
	}

	typeVal, ok := params["type"]
	if !ok {
		return fmt.Errorf("tool '%s': parameters must have 'type' field", def.Name)
	}
	typeStr, ok := typeVal.(string)
	if !ok {
		return fmt.Errorf("tool '%s': parameters.type must be a string, got: %T", def.Name, typeVal)
	}
	if typeStr != "object" {
		return fmt.Errorf("tool '%s': parameters.type must be 'object', got: '%s'", def.Name, typeStr)
	}

	requiredVal, exists := params["required"]
	if !exists {
		return nil
	}
	required, ok := requiredVal.([]interface{})
	if !ok {
		return fmt.Errorf("tool '%s': parameters.required must be an array", def.Name)
	}
	for i, item := range required {
		if _, ok := item.(string); !ok {
			return fmt.Errorf("tool '%s': parameters.required[%d] must be a string, got: %T", def.Name, i, item)
		}
	}

	return nil
}

// Register валидирует определение и добавляет инструмент.
// Повторная регистрация того же имени заменяет инструмент.
func (r *Registry) Register(tool Tool) error {
	def := tool.Definition()
	if err := validateToolDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = tool
	return nil
}

// Get ищет инструмент по имени.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not found", name)
	}
	return tool, nil
}

// GetDefinitions возвращает определения всех инструментов —
// этот список уходит вендору в каждом запросе цикла.
func (r *Registry) GetDefinitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}
