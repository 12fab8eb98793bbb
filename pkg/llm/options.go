// Package llm provides options pattern for LLM generation parameters.
//
// Функциональные опции позволяют переопределять параметры генерации
// в рантайме (из selector'а или напрямую), сохраняя дефолты из config.yaml.
package llm

// GenerateOptions holds parameters for LLM generation.
type GenerateOptions struct {
	// Model is the model identifier (e.g., "gpt-4o-mini", "glm-4.6")
	Model string

	// Temperature controls randomness (0.0 = deterministic)
	Temperature float64

	// MaxTokens limits the response length. 0 = vendor default.
	MaxTokens int

	// Format specifies response format ("json_object" for structured output)
	Format string

	// ToolChoice — директива выбора инструментов ("auto", "none").
	// Пустая строка = не передавать в запрос.
	ToolChoice string

	// ParallelToolCalls controls whether the model may call multiple
	// tools at once. nil = vendor default.
	ParallelToolCalls *bool
}

// GenerateOption is a functional option for configuring GenerateOptions.
type GenerateOption func(*GenerateOptions)

// ApplyOptions собирает GenerateOptions из смешанного списка opts.
// Не-GenerateOption значения (например []tools.ToolDefinition) игнорируются.
func ApplyOptions(opts ...any) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		if fn, ok := opt.(GenerateOption); ok {
			fn(&o)
		}
	}
	return o
}

// WithModel sets the model for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithTemperature sets the temperature for generation.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithMaxTokens sets the maximum tokens for generation.
func WithMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = tokens
	}
}

// WithFormat sets the response format ("json_object" для структурированного вывода).
func WithFormat(format string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Format = format
	}
}

// WithToolChoice задаёт директиву tool_choice для запроса.
func WithToolChoice(choice string) GenerateOption {
	return func(o *GenerateOptions) {
		o.ToolChoice = choice
	}
}

// WithParallelToolCalls управляет параллельными вызовами инструментов.
// Оркестратор выключает их: один tool call за итерацию упрощает
// suspend/resume протокол подтверждений.
func WithParallelToolCalls(enabled bool) GenerateOption {
	return func(o *GenerateOptions) {
		o.ParallelToolCalls = &enabled
	}
}
