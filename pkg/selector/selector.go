// Package selector выбирает модель для хода диалога.
//
// Выбор — чистая функция от входа и политики: никаких обращений
// к сети или состоянию. Предикаты проверяются строго по порядку,
// первый сработавший определяет tier; дальше tier резолвится
// в конкретную пару (provider, model) через конфигурацию.
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opsdesk/opsdesk-ai/pkg/agent"
	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/gateway"
)

// Input — сигналы для выбора модели.
type Input struct {
	Agent          agent.Profile
	MessageText    string
	HasAttachments bool
	HistoryLength  int
}

// Route — результат выбора: всё, что нужно gateway для вызова.
type Route struct {
	Alias       string // Алиас модели из конфигурации
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Reason      string // Какой предикат сработал (для логов)

	Fallback *gateway.Fallback
}

// Предикаты по тексту запроса. Паттерны двуязычные — пользователи
// пишут и по-русски, и по-английски. Вместо \b используется явная
// граница (?:^|[^\p{L}]): в RE2 \b знает только ASCII и не видит
// начало кириллического слова.
var (
	reportPattern   = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(отч[её]т|сводк|бриф|доклад|report|briefing|summary)`)
	analysisPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(анализ|стратег|прогноз|сравн|analy[sz]|strateg|forecast|compar)`)
)

// Policy — скомпилированная политика маршрутизации.
type Policy struct {
	cfg *config.AppConfig
}

// NewPolicy создает политику из конфигурации.
//
// Проверяет, что все четыре tier'а разрезолвлены: дыра в routing —
// ошибка конфигурации, а не runtime сюрприз.
func NewPolicy(cfg *config.AppConfig) (*Policy, error) {
	for tier, alias := range map[string]string{
		"multimodal": cfg.Routing.Multimodal,
		"heavy":      cfg.Routing.Heavy,
		"mid":        cfg.Routing.Mid,
		"fast":       cfg.Routing.Fast,
	} {
		if alias == "" {
			return nil, fmt.Errorf("routing.%s is not configured", tier)
		}
		if _, ok := cfg.GetModel(alias); !ok {
			return nil, fmt.Errorf("routing.%s references unknown model alias '%s'", tier, alias)
		}
	}
	return &Policy{cfg: cfg}, nil
}

// Select выбирает модель по упорядоченным предикатам.
//
// Порядок фиксированный:
//  1. Vision-агент с вложениями → multimodal
//  2. Запрос отчёта/сводки → heavy с пониженной температурой
//  3. Complex-агент или аналитический запрос → mid
//  4. Иначе → fast
func (p *Policy) Select(in Input) Route {
	text := strings.TrimSpace(in.MessageText)

	if in.Agent.VisionHeavy && in.HasAttachments {
		return p.route(p.cfg.Routing.Multimodal, "vision agent with attachments", nil)
	}

	if reportPattern.MatchString(text) {
		temp := p.cfg.Routing.ReportTemperature
		return p.route(p.cfg.Routing.Heavy, "report/briefing request", &temp)
	}

	if in.Agent.ComplexReasoning || analysisPattern.MatchString(text) {
		return p.route(p.cfg.Routing.Mid, "complex reasoning", nil)
	}

	return p.route(p.cfg.Routing.Fast, "default", nil)
}

// route резолвит алиас в полный Route.
func (p *Policy) route(alias, reason string, tempOverride *float64) Route {
	def, _ := p.cfg.GetModel(alias) // алиасы проверены в NewPolicy

	r := Route{
		Alias:       alias,
		Provider:    def.Provider,
		Model:       def.ModelName,
		MaxTokens:   def.MaxTokens,
		Temperature: def.Temperature,
		Reason:      reason,
	}
	if tempOverride != nil {
		r.Temperature = *tempOverride
	}

	if def.Fallback != nil {
		fbDef, ok := p.cfg.GetModel(def.Fallback.Model)
		fbModel := def.Fallback.Model
		// Fallback.Model может быть алиасом или сырым именем модели
		if ok {
			fbModel = fbDef.ModelName
		}
		r.Fallback = &gateway.Fallback{
			Provider: def.Fallback.Provider,
			Model:    fbModel,
		}
	}

	return r
}
