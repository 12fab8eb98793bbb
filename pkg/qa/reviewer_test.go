package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opsdesk/opsdesk-ai/pkg/gateway"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
)

// mockCaller считает вызовы и возвращает заданный ответ.
type mockCaller struct {
	calls   int
	content string
	err     error
	lastReq gateway.Request
}

func (m *mockCaller) Call(_ context.Context, req gateway.Request) (llm.Result, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return llm.Result{}, m.err
	}
	return llm.Result{Content: m.content}, nil
}

func newTestReviewer(caller Caller) *Reviewer {
	return NewReviewer(caller, Config{
		HighRiskAgents: []string{"sales"},
		Provider:       "zai",
		Model:          "glm-4.5-air",
	})
}

const longReply = "Выручка сети за отчетный период составила 1 245 000 рублей, что на 12% выше плана. Рекомендую расширить сеть."

func TestReviewSkipFilters(t *testing.T) {
	t.Run("non high-risk agent skips with zero calls", func(t *testing.T) {
		caller := &mockCaller{}
		r := newTestReviewer(caller)

		v := r.Review(context.Background(), ReviewInput{AgentID: "support", Reply: longReply})
		if !v.Pass || !v.Skipped {
			t.Errorf("verdict = %+v, want pass+skipped", v)
		}
		if caller.calls != 0 {
			t.Errorf("expected zero network calls, got %d", caller.calls)
		}
	})

	t.Run("short reply skips regardless of agent", func(t *testing.T) {
		caller := &mockCaller{}
		r := newTestReviewer(caller)

		v := r.Review(context.Background(), ReviewInput{AgentID: "sales", Reply: "Ок, сделано."})
		if !v.Pass || !v.Skipped {
			t.Errorf("verdict = %+v, want pass+skipped", v)
		}
		if caller.calls != 0 {
			t.Errorf("expected zero network calls, got %d", caller.calls)
		}
	})
}

func TestReviewExecutesForHighRisk(t *testing.T) {
	caller := &mockCaller{content: `{"pass": false, "flags": ["fabricated_figure"], "severity": "warning", "sanitized_reply": null}`}
	r := newTestReviewer(caller)

	v := r.Review(context.Background(), ReviewInput{AgentID: "sales", Reply: longReply, ContextText: "как дела с продажами?"})

	if caller.calls != 1 {
		t.Fatalf("expected exactly one review call, got %d", caller.calls)
	}
	if v.Pass || v.Skipped {
		t.Errorf("verdict = %+v, want fail, not skipped", v)
	}
	if v.Severity != SeverityWarning {
		t.Errorf("severity = %s, want warning", v.Severity)
	}
	if len(v.Flags) != 1 || v.Flags[0] != "fabricated_figure" {
		t.Errorf("flags = %v", v.Flags)
	}

	// Запрос ревьюера: low temp, json формат
	if caller.lastReq.Format != "json_object" {
		t.Errorf("review call format = %q, want json_object", caller.lastReq.Format)
	}
	if caller.lastReq.Temperature > 0.2 {
		t.Errorf("review temperature = %v, want low", caller.lastReq.Temperature)
	}
}

func TestReviewFailOpen(t *testing.T) {
	t.Run("call failure passes with diagnostic flag", func(t *testing.T) {
		caller := &mockCaller{err: errors.New("vendor down")}
		r := newTestReviewer(caller)

		v := r.Review(context.Background(), ReviewInput{AgentID: "sales", Reply: longReply})
		if !v.Pass {
			t.Error("fail-open violated: call failure must pass")
		}
		if len(v.Flags) != 1 || v.Flags[0] != "qa_call_failed" {
			t.Errorf("flags = %v, want [qa_call_failed]", v.Flags)
		}
	})

	t.Run("unparseable verdict passes with diagnostic flag", func(t *testing.T) {
		caller := &mockCaller{content: "я не могу оценить этот ответ"}
		r := newTestReviewer(caller)

		v := r.Review(context.Background(), ReviewInput{AgentID: "sales", Reply: longReply})
		if !v.Pass {
			t.Error("fail-open violated: parse failure must pass")
		}
		if len(v.Flags) != 1 || v.Flags[0] != "qa_parse_error" {
			t.Errorf("flags = %v, want [qa_parse_error]", v.Flags)
		}
	})

	t.Run("unknown severity treated as parse error", func(t *testing.T) {
		caller := &mockCaller{content: `{"pass": true, "flags": [], "severity": "catastrophic"}`}
		r := newTestReviewer(caller)

		v := r.Review(context.Background(), ReviewInput{AgentID: "sales", Reply: longReply})
		if !v.Pass || v.Flags[0] != "qa_parse_error" {
			t.Errorf("verdict = %+v, want fail-open parse error", v)
		}
	})
}

func TestReviewCriticalSanitizedReply(t *testing.T) {
	caller := &mockCaller{content: "```json\n" +
		`{"pass": false, "flags": ["fabricated_dollar_figure"], "severity": "critical", "sanitized_reply": "Не могу подтвердить точную сумму, уточню и вернусь."}` +
		"\n```"}
	r := newTestReviewer(caller)

	v := r.Review(context.Background(), ReviewInput{AgentID: "sales", Reply: longReply})
	if v.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical", v.Severity)
	}
	if v.SanitizedReply == nil || !strings.Contains(*v.SanitizedReply, "уточню") {
		t.Errorf("sanitized reply missing: %+v", v)
	}
}

func TestParseVerdictEmptySanitizedReply(t *testing.T) {
	v, err := parseVerdict(`{"pass": true, "flags": [], "severity": "none", "sanitized_reply": "  "}`)
	if err != nil {
		t.Fatal(err)
	}
	if v.SanitizedReply != nil {
		t.Error("blank sanitized_reply must collapse to nil")
	}
}
