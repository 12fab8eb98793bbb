// Executor — граница выполнения инструментов.
//
// Контракт "никогда не роняем ход": что бы ни случилось с handler'ом —
// невалидные аргументы, ошибка, panic — наружу уходит строка результата,
// которая скармливается обратно модели. Модель сама реагирует (повторяет
// с исправленными аргументами, извиняется), вместо падения всего запроса.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// Executor валидирует и выполняет tool calls из ответов модели.
type Executor struct {
	registry *Registry

	// defaultTimeout — защитный timeout для выполнения инструментов.
	// Если tool не завершится за это время, он будет отменён.
	defaultTimeout time.Duration
}

// NewExecutor создает Executor поверх реестра.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry:       registry,
		defaultTimeout: 30 * time.Second,
	}
}

// SetDefaultTimeout устанавливает защитный timeout для всех инструментов.
//
// Thread-safe: вызывать до начала Execute().
func (e *Executor) SetDefaultTimeout(timeout time.Duration) {
	e.defaultTimeout = timeout
}

// ValidateArgs проверяет что сырые аргументы tool call десериализуются
// и содержат все обязательные поля из схемы инструмента.
//
// Возвращает валидированную map аргументов. Вызывается ДО handler'а —
// при ошибке handler не запускается вообще.
func ValidateArgs(def ToolDefinition, argsJSON string) (map[string]any, error) {
	cleaned := utils.CleanJsonBlock(argsJSON)
	if cleaned == "" {
		cleaned = "{}"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(cleaned), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a valid JSON object: %w", err)
	}

	for _, field := range def.RequiredFields() {
		if _, ok := args[field]; !ok {
			return nil, fmt.Errorf("missing required field '%s'", field)
		}
	}

	return args, nil
}

// Execute выполняет один tool call и всегда возвращает строку результата.
//
// Порядок:
//  1. Поиск инструмента в registry
//  2. Валидация аргументов против схемы (required fields)
//  3. Вызов handler'а с recover'ом паник и защитным timeout
//
// Ошибка на любом шаге конвертируется в error-строку — единственное
// место в системе, где panic перехватывается.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) string {
	start := time.Now()

	tool, err := e.registry.Get(call.Name)
	if err != nil {
		return fmt.Sprintf("Error: tool not found: %s", call.Name)
	}

	cleanArgs := utils.CleanJsonBlock(call.Args)

	if _, err := ValidateArgs(tool.Definition(), cleanArgs); err != nil {
		utils.Warn("Tool arguments rejected",
			"tool", call.Name,
			"error", err)
		return fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
	}

	result := e.run(ctx, tool, call.Name, cleanArgs)

	utils.Debug("Tool executed",
		"tool", call.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"result_length", len(result))

	return result
}

// run вызывает handler в отдельной goroutine с timeout и recover'ом.
func (e *Executor) run(ctx context.Context, tool Tool, name, argsJSON string) string {
	toolCtx, cancel := context.WithTimeout(ctx, e.defaultTimeout)
	defer cancel()

	type execResult struct {
		output string
		err    error
	}
	resultChan := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.Error("Tool handler panicked", "tool", name, "panic", r)
				resultChan <- execResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		output, err := tool.Execute(toolCtx, argsJSON)
		resultChan <- execResult{output, err}
	}()

	select {
	case <-toolCtx.Done():
		if toolCtx.Err() == context.DeadlineExceeded {
			utils.Warn("Tool execution timeout", "tool", name, "timeout", e.defaultTimeout)
			return fmt.Sprintf("Error: tool %q exceeded timeout of %v", name, e.defaultTimeout)
		}
		return "Error: tool execution was cancelled"

	case res := <-resultChan:
		if res.err != nil {
			return fmt.Sprintf("Error: %v", res.err)
		}
		return res.output
	}
}
