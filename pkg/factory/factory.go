// Package factory создает LLM провайдеров по тегу вендора.
//
// Закрытый switch: неизвестный вендор — ошибка конфигурации, а не
// тихий fallback. Все текущие вендоры OpenAI-совместимы, поэтому
// резолвятся в один адаптер с разными credentials/endpoint.
package factory

import (
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/llm/openai"
)

// NewProvider создает провайдера для вендора tag.
func NewProvider(tag string, creds config.ProviderDef, defaultModel string) (llm.Provider, error) {
	switch tag {
	case "openai", "zai", "deepseek":
		return openai.NewClient(tag, creds, defaultModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: '%s'", tag)
	}
}

// NewStreamingProvider создает провайдера с поддержкой стриминга.
func NewStreamingProvider(tag string, creds config.ProviderDef, defaultModel string) (llm.StreamingProvider, error) {
	p, err := NewProvider(tag, creds, defaultModel)
	if err != nil {
		return nil, err
	}

	sp, ok := p.(llm.StreamingProvider)
	if !ok {
		return nil, fmt.Errorf("provider '%s' does not support streaming", tag)
	}
	return sp, nil
}
