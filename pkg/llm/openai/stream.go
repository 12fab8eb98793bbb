// Потоковая генерация для OpenAI-совместимых API.
package openai

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// GenerateStream выполняет запрос с потоковой передачей ответа.
//
// Контракт запроса тот же, что у Generate. Callback получает чанки
// по мере поступления; финальное сообщение (включая tool calls,
// собранные из дельт) возвращается после закрытия стрима.
func (c *Client) GenerateStream(
	ctx context.Context,
	messages []llm.Message,
	callback func(llm.StreamChunk),
	opts ...any,
) (llm.Message, error) {
	startTime := time.Now()

	req, err := c.buildRequest(messages, opts...)
	if err != nil {
		return llm.Message{}, err
	}
	req.Stream = true

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return llm.Message{}, c.wrapError(err)
	}
	defer stream.Close()

	var content strings.Builder
	// index → накапливаемый tool call (дельты приходят по частям)
	toolCalls := make(map[int]*llm.ToolCall)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			wrapped := c.wrapError(err)
			if callback != nil {
				callback(llm.StreamChunk{Type: llm.ChunkError, Error: wrapped})
			}
			return llm.Message{}, wrapped
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			if callback != nil {
				callback(llm.StreamChunk{
					Type:    llm.ChunkContent,
					Content: content.String(),
					Delta:   delta.Content,
				})
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := toolCalls[idx]
			if !ok {
				acc = &llm.ToolCall{}
				toolCalls[idx] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Name = tc.Function.Name
			}
			acc.Args += tc.Function.Arguments
		}
	}

	result := llm.Message{
		Role:    llm.RoleAssistant,
		Content: content.String(),
	}

	// Восстанавливаем порядок tool calls по индексам
	if len(toolCalls) > 0 {
		indexes := make([]int, 0, len(toolCalls))
		for idx := range toolCalls {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			result.ToolCalls = append(result.ToolCalls, *toolCalls[idx])
		}
	}

	if callback != nil {
		callback(llm.StreamChunk{
			Type:    llm.ChunkDone,
			Content: result.Content,
			Done:    true,
		})
	}

	utils.Info("LLM stream completed",
		"provider", c.provider,
		"model", req.Model,
		"tool_calls_count", len(result.ToolCalls),
		"content_length", len(result.Content),
		"duration_ms", time.Since(startTime).Milliseconds())

	return result, nil
}
