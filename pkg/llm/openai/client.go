// Package openai реализует адаптер LLM провайдера для OpenAI-совместимых API.
//
// Оба поддерживаемых вендора говорят на нормализованной chat-completions
// схеме, поэтому один клиент покрывает их всех: различия — только
// credentials и endpoint (BaseURL), которые приходят из конфигурации.
//
// Поддерживает Function Calling (tools) и Vision (изображения).
// Работает только через интерфейс llm.Provider.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// Client реализует llm.Provider и llm.StreamingProvider
// для OpenAI-совместимых API.
type Client struct {
	api      *openai.Client
	provider string
	model    string
}

// NewClient создает клиент для вендора providerTag.
//
// Поддержка custom BaseURL позволяет подключать non-OpenAI вендоров
// (Zai, DeepSeek и т.д.) через ту же схему.
func NewClient(providerTag string, creds config.ProviderDef, defaultModel string) *Client {
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	}

	return &Client{
		api:      openai.NewClientWithConfig(cfg),
		provider: providerTag,
		model:    defaultModel,
	}
}

// Generate выполняет запрос к API и возвращает ответ модели.
//
// opts принимает:
//   - []tools.ToolDefinition — definitions инструментов для Function Calling
//   - llm.GenerateOption — переопределение model/temperature/max_tokens и т.д.
//
// Все ошибки возвращаются, никаких panic. Non-2xx ответ вендора
// конвертируется в *llm.APIError с HTTP статусом — gateway использует
// его для классификации fallback.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts ...any) (llm.Message, error) {
	startTime := time.Now()

	req, err := c.buildRequest(messages, opts...)
	if err != nil {
		return llm.Message{}, err
	}

	utils.Debug("LLM request started",
		"provider", c.provider,
		"model", req.Model,
		"messages_count", len(messages),
		"tools_count", len(req.Tools))

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		utils.Error("LLM API request failed",
			"error", err,
			"provider", c.provider,
			"model", req.Model,
			"duration_ms", time.Since(startTime).Milliseconds())
		return llm.Message{}, c.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return llm.Message{}, llm.ErrNoChoices
	}

	result := mapFromOpenAI(resp.Choices[0].Message)

	utils.Info("LLM response received",
		"provider", c.provider,
		"model", req.Model,
		"tool_calls_count", len(result.ToolCalls),
		"content_length", len(result.Content),
		"duration_ms", time.Since(startTime).Milliseconds())

	return result, nil
}

// buildRequest собирает ChatCompletionRequest из сообщений и опций.
func (c *Client) buildRequest(messages []llm.Message, opts ...any) (openai.ChatCompletionRequest, error) {
	o := llm.ApplyOptions(opts...)

	model := c.model
	if o.Model != "" {
		model = o.Model
	}

	openaiMsgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		openaiMsgs[i] = mapToOpenAI(m)
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    openaiMsgs,
		Temperature: float32(o.Temperature),
		MaxTokens:   o.MaxTokens,
	}

	if o.Format == "json_object" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	// Tools передаются через opts как []tools.ToolDefinition
	for _, opt := range opts {
		if toolDefs, ok := opt.([]tools.ToolDefinition); ok {
			req.Tools = convertToolsToOpenAI(toolDefs)
			// LLM сама решает когда вызывать tools
			req.ToolChoice = "auto"
		}
	}

	if o.ToolChoice != "" {
		req.ToolChoice = o.ToolChoice
	}
	if o.ParallelToolCalls != nil {
		req.ParallelToolCalls = *o.ParallelToolCalls
	}

	return req, nil
}

// wrapError конвертирует ошибку SDK в типизированную *llm.APIError.
//
// Сетевые ошибки (без HTTP статуса) возвращаются как есть — для них
// fallback классификация не применяется.
func (c *Client) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &llm.APIError{
			Provider:   c.provider,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.APIError{
			Provider:   c.provider,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
		}
	}

	return fmt.Errorf("%s api error: %w", c.provider, err)
}

// mapToOpenAI конвертирует наше внутреннее сообщение в формат SDK.
//
// Три ветки:
//   - tool result: роль tool + tool_call_id
//   - assistant с tool calls: replay вызовов в историю (вендор требует
//     их присутствия перед соответствующими tool-сообщениями)
//   - vision: MultiContent с image parts
func mapToOpenAI(m llm.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		ToolCallID: m.ToolCallID,
	}

	if len(m.ToolCalls) > 0 {
		msg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			msg.ToolCalls[i] = openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Args,
				},
			}
		}
	}

	// Если картинок нет, отправляем просто текст
	if len(m.Images) == 0 {
		msg.Content = m.Content
		return msg
	}

	// Vision запрос: text part + image parts в исходном порядке
	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: m.Content,
		},
	}

	for _, imgURL := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    imgURL, // base64 data-uri или http ссылка
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	msg.MultiContent = parts
	return msg
}

// mapFromOpenAI конвертирует ответ SDK обратно в наш формат.
func mapFromOpenAI(choice openai.ChatCompletionMessage) llm.Message {
	result := llm.Message{
		Role:    llm.Role(choice.Role),
		Content: choice.Content,
	}

	if len(choice.ToolCalls) > 0 {
		result.ToolCalls = make([]llm.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			result.ToolCalls[i] = llm.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: tc.Function.Arguments,
			}
		}
	}

	return result
}

// convertToolsToOpenAI конвертирует определения инструментов
// в формат OpenAI Function Calling.
//
// ToolDefinition.Parameters уже является JSON Schema объектом,
// поэтому напрямую передаётся в SDK.
func convertToolsToOpenAI(defs []tools.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(defs))

	for i, def := range defs {
		result[i] = openai.Tool{
			Type: "function",
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}

	return result
}

// Compile-time проверки интерфейсов
var (
	_ llm.Provider          = (*Client)(nil)
	_ llm.StreamingProvider = (*Client)(nil)
)
