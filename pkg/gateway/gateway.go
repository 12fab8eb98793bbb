// Package gateway — единая точка входа для вызовов AI вендоров.
//
// Gateway нормализует запрос (история + опции), резолвит провайдера
// и применяет политику деградации: при 429 от основного вендора
// выполняется ровно один retry на fallback паре (provider, model).
// Других автоматических retry нет — timeouts, 5xx и сетевые ошибки
// уходят наверх как есть.
package gateway

import (
	"context"
	"sync"

	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/factory"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// Fallback — резервная пара (вендор, модель) для retry при rate limit.
type Fallback struct {
	Provider string
	Model    string
}

// Request — нормализованный запрос к AI вендору.
type Request struct {
	Provider    string // Тег вендора ("openai", "zai")
	Model       string // Реальное имя модели в API вендора
	Messages    []llm.Message
	Temperature float64
	MaxTokens   int
	Format      string // "json_object" для структурированных ответов
	Tools       []tools.ToolDefinition
	ToolChoice  string
	// ParallelToolCalls nil = дефолт вендора.
	ParallelToolCalls *bool

	Fallback *Fallback // nil = без деградации
}

// newProviderFunc — конструктор провайдера, injectable для тестов.
type newProviderFunc func(tag string, creds config.ProviderDef, defaultModel string) (llm.Provider, error)

// Gateway кеширует провайдеров по тегу и выполняет запросы.
type Gateway struct {
	cfg *config.AppConfig

	mu        sync.Mutex
	providers map[string]llm.Provider

	newProvider newProviderFunc
}

// New создает Gateway поверх конфигурации вендоров.
func New(cfg *config.AppConfig) *Gateway {
	return &Gateway{
		cfg:         cfg,
		providers:   make(map[string]llm.Provider),
		newProvider: factory.NewProvider,
	}
}

// provider возвращает кешированного провайдера или создает нового.
func (g *Gateway) provider(tag string) (llm.Provider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.providers[tag]; ok {
		return p, nil
	}

	creds, ok := g.cfg.GetProvider(tag)
	if !ok {
		return nil, &llm.APIError{
			Provider: tag,
			Message:  "provider is not configured",
		}
	}

	p, err := g.newProvider(tag, creds, "")
	if err != nil {
		return nil, err
	}
	g.providers[tag] = p
	return p, nil
}

// Call выполняет запрос с политикой одноразового fallback при 429.
//
// Fallback срабатывает ТОЛЬКО на rate limit основного вендора.
// Если fallback тоже вернул ошибку (включая 429) — она финальная.
func (g *Gateway) Call(ctx context.Context, req Request) (llm.Result, error) {
	result, err := g.callOnce(ctx, req.Provider, req.Model, req)
	if err == nil {
		return result, nil
	}

	apiErr, ok := llm.AsAPIError(err)
	if !ok || !apiErr.IsRateLimited() || req.Fallback == nil {
		return llm.Result{}, err
	}

	utils.Warn("Primary provider rate limited, trying fallback",
		"primary_provider", req.Provider,
		"primary_model", req.Model,
		"fallback_provider", req.Fallback.Provider,
		"fallback_model", req.Fallback.Model)

	return g.callOnce(ctx, req.Fallback.Provider, req.Fallback.Model, req)
}

// callOnce выполняет один запрос без retry.
func (g *Gateway) callOnce(ctx context.Context, providerTag, model string, req Request) (llm.Result, error) {
	p, err := g.provider(providerTag)
	if err != nil {
		return llm.Result{}, err
	}

	opts := buildOpts(model, req)

	msg, err := p.Generate(ctx, req.Messages, opts...)
	if err != nil {
		return llm.Result{}, err
	}

	return llm.Result{
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
		Provider:  providerTag,
		Model:     model,
	}, nil
}

// buildOpts собирает opts для Provider.Generate из Request.
func buildOpts(model string, req Request) []any {
	opts := []any{
		llm.WithModel(model),
		llm.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(req.MaxTokens))
	}
	if req.Format != "" {
		opts = append(opts, llm.WithFormat(req.Format))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, req.Tools)
	}
	if req.ToolChoice != "" {
		opts = append(opts, llm.WithToolChoice(req.ToolChoice))
	}
	if req.ParallelToolCalls != nil {
		opts = append(opts, llm.WithParallelToolCalls(*req.ParallelToolCalls))
	}
	return opts
}
