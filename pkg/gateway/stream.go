package gateway

import (
	"context"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// CallStream — потоковый вариант Call с той же политикой fallback.
//
// Нюанс: если основной вендор вернул 429 ДО первого чанка, retry
// на fallback прозрачен для подписчика. Если стрим уже начался и
// оборвался — fallback не выполняется (частичный ответ уже ушёл
// callback'у, повтор дал бы дубли).
func (g *Gateway) CallStream(
	ctx context.Context,
	req Request,
	callback func(llm.StreamChunk),
) (llm.Result, error) {
	started := false
	wrapped := func(chunk llm.StreamChunk) {
		if chunk.Type == llm.ChunkContent {
			started = true
		}
		if callback != nil {
			callback(chunk)
		}
	}

	result, err := g.streamOnce(ctx, req.Provider, req.Model, req, wrapped)
	if err == nil {
		return result, nil
	}

	apiErr, ok := llm.AsAPIError(err)
	if !ok || !apiErr.IsRateLimited() || req.Fallback == nil || started {
		return llm.Result{}, err
	}

	utils.Warn("Primary provider rate limited mid-handshake, falling back",
		"primary_provider", req.Provider,
		"fallback_provider", req.Fallback.Provider)

	return g.streamOnce(ctx, req.Fallback.Provider, req.Fallback.Model, req, wrapped)
}

// streamOnce выполняет один потоковый запрос.
//
// Если провайдер не умеет стриминг, деградируем до обычного Call
// с синтетическими чанками (content целиком + done).
func (g *Gateway) streamOnce(
	ctx context.Context,
	providerTag, model string,
	req Request,
	callback func(llm.StreamChunk),
) (llm.Result, error) {
	p, err := g.provider(providerTag)
	if err != nil {
		return llm.Result{}, err
	}

	sp, ok := p.(llm.StreamingProvider)
	if !ok {
		result, err := g.callOnce(ctx, providerTag, model, req)
		if err != nil {
			return llm.Result{}, err
		}
		if callback != nil {
			callback(llm.StreamChunk{Type: llm.ChunkContent, Content: result.Content, Delta: result.Content})
			callback(llm.StreamChunk{Type: llm.ChunkDone, Content: result.Content, Done: true})
		}
		return result, nil
	}

	opts := buildOpts(model, req)

	msg, err := sp.GenerateStream(ctx, req.Messages, callback, opts...)
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
