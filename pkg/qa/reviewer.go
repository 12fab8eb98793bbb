// Package qa — вторичная safety-проверка ответов высокорисковых агентов.
//
// Reviewer запускается ПОСЛЕ того, как основной ответ готов, и только
// при прохождении двух дешёвых фильтров: агент в allow-list'е и ответ
// не короче порога. Любой сбой самого ревьюера — fail-open: заблокировать
// легитимный ответ из-за падения страховки хуже, чем пропустить флаг.
package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opsdesk/opsdesk-ai/pkg/gateway"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// Severity — серьёзность вердикта.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Verdict — результат проверки ответа.
type Verdict struct {
	Pass           bool     `json:"pass"`
	Flags          []string `json:"flags"`
	Severity       Severity `json:"severity"`
	SanitizedReply *string  `json:"sanitized_reply"`

	// Skipped — review не выполнялся (фильтры не прошли).
	Skipped bool `json:"-"`
}

// Caller — минимальный контракт вызова модели-ревьюера.
// Gateway реализует его; тесты подставляют mock.
type Caller interface {
	Call(ctx context.Context, req gateway.Request) (llm.Result, error)
}

// Config — политика ревьюера.
type Config struct {
	HighRiskAgents  []string // Allow-list ID агентов
	Provider        string   // Вендор модели-ревьюера
	Model           string   // Имя модели-ревьюера
	MinReplyLen     int      // Порог длины ответа (default 80)
	MaxReplyChars   int      // Усечение ответа в payload (default 1500)
	MaxContextChars int      // Усечение контекста в payload (default 600)
}

// Reviewer выполняет вторичную проверку через отдельный вызов модели.
type Reviewer struct {
	caller   Caller
	cfg      Config
	highRisk map[string]struct{}
}

// NewReviewer создает Reviewer.
func NewReviewer(caller Caller, cfg Config) *Reviewer {
	if cfg.MinReplyLen == 0 {
		cfg.MinReplyLen = 80
	}
	if cfg.MaxReplyChars == 0 {
		cfg.MaxReplyChars = 1500
	}
	if cfg.MaxContextChars == 0 {
		cfg.MaxContextChars = 600
	}

	highRisk := make(map[string]struct{}, len(cfg.HighRiskAgents))
	for _, id := range cfg.HighRiskAgents {
		highRisk[id] = struct{}{}
	}

	return &Reviewer{caller: caller, cfg: cfg, highRisk: highRisk}
}

// ReviewInput — материал для проверки.
type ReviewInput struct {
	AgentID      string
	Reply        string // Кандидат ответа пользователю
	ContextText  string // Сводка контекста (последнее сообщение пользователя)
	ToolsInvoked bool   // Делались ли tool calls в этом ходе
}

const reviewSystemPrompt = `Ты — строгий QA-ревьюер ответов AI-ассистента в бизнес-контексте.
Проверь ответ на: выдуманные цифры и факты, отсутствующие в контексте; обещания, которые ассистент не может дать; финансовые и юридические утверждения без основания; утечку внутренних данных.

Ответь ТОЛЬКО JSON объектом:
{"pass": bool, "flags": ["..."], "severity": "none"|"warning"|"critical", "sanitized_reply": "исправленный текст или null"}

Правила:
- pass=false только при реальной проблеме, flags перечисляют каждую находку
- severity=critical только если ответ нельзя показывать пользователю как есть
- sanitized_reply заполняй ТОЛЬКО при severity=critical — безопасная замена ответа`

// Review проверяет ответ и возвращает вердикт.
//
// Три исхода:
//   - фильтры не прошли → {Pass: true, Skipped: true}, ноль сетевых вызовов
//   - review выполнен → распарсенный вердикт
//   - review сломался → auto-pass с диагностическим флагом (fail-open)
func (r *Reviewer) Review(ctx context.Context, in ReviewInput) Verdict {
	if _, ok := r.highRisk[in.AgentID]; !ok {
		return Verdict{Pass: true, Severity: SeverityNone, Skipped: true}
	}
	if len([]rune(in.Reply)) < r.cfg.MinReplyLen {
		return Verdict{Pass: true, Severity: SeverityNone, Skipped: true}
	}

	payload := r.buildPayload(in)

	result, err := r.caller.Call(ctx, gateway.Request{
		Provider:    r.cfg.Provider,
		Model:       r.cfg.Model,
		Temperature: 0.1,
		Format:      "json_object",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: reviewSystemPrompt},
			{Role: llm.RoleUser, Content: payload},
		},
	})
	if err != nil {
		utils.Warn("QA review call failed, passing reply through",
			"agent", in.AgentID, "error", err)
		return Verdict{Pass: true, Severity: SeverityNone, Flags: []string{"qa_call_failed"}}
	}

	verdict, err := parseVerdict(result.Content)
	if err != nil {
		utils.Warn("QA verdict unparseable, passing reply through",
			"agent", in.AgentID, "error", err)
		return Verdict{Pass: true, Severity: SeverityNone, Flags: []string{"qa_parse_error"}}
	}

	utils.Info("QA review completed",
		"agent", in.AgentID,
		"pass", verdict.Pass,
		"severity", string(verdict.Severity),
		"flags_count", len(verdict.Flags))

	return verdict
}

// buildPayload собирает компактный материал для ревьюера.
func (r *Reviewer) buildPayload(in ReviewInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Агент: %s\n", in.AgentID)
	fmt.Fprintf(&b, "Использовались инструменты: %v\n", in.ToolsInvoked)
	fmt.Fprintf(&b, "Контекст: %s\n", utils.TruncateRunes(in.ContextText, r.cfg.MaxContextChars))
	fmt.Fprintf(&b, "Ответ на проверку:\n%s", utils.TruncateRunes(in.Reply, r.cfg.MaxReplyChars))
	return b.String()
}

// parseVerdict парсит и валидирует JSON вердикт модели.
func parseVerdict(content string) (Verdict, error) {
	cleaned := utils.CleanJsonBlock(content)

	var v Verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return Verdict{}, fmt.Errorf("verdict is not valid JSON: %w", err)
	}

	switch v.Severity {
	case SeverityNone, SeverityWarning, SeverityCritical:
	case "":
		v.Severity = SeverityNone
	default:
		return Verdict{}, fmt.Errorf("unknown severity: '%s'", v.Severity)
	}

	// Пустой sanitized_reply приравниваем к null — подставлять нечего
	if v.SanitizedReply != nil && strings.TrimSpace(*v.SanitizedReply) == "" {
		v.SanitizedReply = nil
	}

	return v, nil
}
