package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opsdesk/opsdesk-ai/pkg/agent"
	"github.com/opsdesk/opsdesk-ai/pkg/config"
	"github.com/opsdesk/opsdesk-ai/pkg/confirm"
	"github.com/opsdesk/opsdesk-ai/pkg/gateway"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/qa"
	"github.com/opsdesk/opsdesk-ai/pkg/ratelimit"
	"github.com/opsdesk/opsdesk-ai/pkg/selector"
	"github.com/opsdesk/opsdesk-ai/pkg/state"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
)

// scriptedCaller отдает ответы из очереди и записывает все запросы.
type scriptedCaller struct {
	script   []llm.Result
	requests []gateway.Request
}

func (c *scriptedCaller) Call(_ context.Context, req gateway.Request) (llm.Result, error) {
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return llm.Result{}, errors.New("script exhausted")
	}
	result := c.script[0]
	c.script = c.script[1:]
	return result, nil
}

// countingTool — инструмент, считающий вызовы handler'а.
type countingTool struct {
	name   string
	result string
	calls  int
}

func (f *countingTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        f.name,
		Description: "test tool " + f.name,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
	}
}

func (f *countingTool) Execute(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.result, nil
}

// harness — собранный оркестратор с ручками для тестов.
type harness struct {
	orch     *Orchestrator
	caller   *scriptedCaller
	autoTool *countingTool
	gated    *countingTool
	store    state.ConversationStore
}

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		Models: config.ModelsConfig{
			Definitions: map[string]config.ModelDef{
				"vision": {Provider: "openai", ModelName: "gpt-4o"},
				"heavy":  {Provider: "openai", ModelName: "gpt-4o"},
				"mid":    {Provider: "openai", ModelName: "gpt-4o-mini"},
				"fast":   {Provider: "zai", ModelName: "glm-4.5-air", Temperature: 0.7},
			},
		},
		Routing: config.RoutingConfig{
			Multimodal: "vision", Heavy: "heavy", Mid: "mid", Fast: "fast",
			ReportTemperature: 0.2,
		},
		Agents: map[string]config.AgentDef{
			"sales": {Name: "Продажи", SystemPrompt: "Ты ассистент продаж.", HighRisk: true},
		},
	}
}

func newHarness(t *testing.T, script []llm.Result, opts ...Option) *harness {
	t.Helper()
	cfg := testAppConfig()

	agents, err := agent.FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	policy, err := selector.NewPolicy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	autoTool := &countingTool{name: "get_sales_report", result: `{"total": 42}`}
	gated := &countingTool{name: "update_machine_status", result: `{"status": "offline"}`}

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{autoTool, gated} {
		if err := registry.Register(tool); err != nil {
			t.Fatal(err)
		}
	}

	caller := &scriptedCaller{script: script}
	store := state.NewMemoryConversations()
	gate := confirm.NewGate([]string{"update_machine_status"}, confirm.NewMemoryStore(), 15*time.Minute)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Window: time.Minute, DefaultMax: 100})

	orch := New(agents, policy, caller, registry, tools.NewExecutor(registry), gate, limiter, store, opts...)

	return &harness{orch: orch, caller: caller, autoTool: autoTool, gated: gated, store: store}
}

func turn(text string) TurnInput {
	return TurnInput{
		ConversationID: "conv-1",
		UserID:         "u1",
		AgentID:        "sales",
		Text:           text,
	}
}

func assistantReply(content string) llm.Result {
	return llm.Result{Content: content, Provider: "zai", Model: "glm-4.5-air"}
}

func assistantToolCall(id, name, args string) llm.Result {
	return llm.Result{ToolCalls: []llm.ToolCall{{ID: id, Name: name, Args: args}}}
}

func TestRunSimpleReply(t *testing.T) {
	h := newHarness(t, []llm.Result{assistantReply("Привет! Чем помочь?")})

	out, err := h.orch.Run(context.Background(), turn("привет"))
	if err != nil {
		t.Fatal(err)
	}

	if out.Reply != "Привет! Чем помочь?" {
		t.Errorf("reply = %q", out.Reply)
	}
	if out.Suspended() || out.Degraded || out.ToolsInvoked {
		t.Errorf("unexpected flags: %+v", out)
	}

	// История: user + assistant
	history, _ := h.store.History(context.Background(), "conv-1")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != llm.RoleUser || history[1].Role != llm.RoleAssistant {
		t.Errorf("history roles: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestRunToolCallOrdering(t *testing.T) {
	h := newHarness(t, []llm.Result{
		assistantToolCall("tc-1", "get_sales_report", "{}"),
		assistantReply("Всего продано 42."),
	})

	out, err := h.orch.Run(context.Background(), turn("сколько продали?"))
	if err != nil {
		t.Fatal(err)
	}

	if out.Reply != "Всего продано 42." {
		t.Errorf("reply = %q", out.Reply)
	}
	if !out.ToolsInvoked {
		t.Error("ToolsInvoked must be set")
	}
	if h.autoTool.calls != 1 {
		t.Errorf("tool handler called %d times, want 1", h.autoTool.calls)
	}

	// Второй вызов модели обязан видеть tool-сообщение с matching id
	if len(h.caller.requests) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(h.caller.requests))
	}
	second := h.caller.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "tc-1" {
		t.Errorf("last message before second call = %+v, want tool msg for tc-1", last)
	}
	if last.Content != `{"total": 42}` {
		t.Errorf("tool result content = %q", last.Content)
	}
	// Перед tool-сообщением — assistant с самим tool call
	prev := second[len(second)-2]
	if prev.Role != llm.RoleAssistant || len(prev.ToolCalls) != 1 || prev.ToolCalls[0].ID != "tc-1" {
		t.Errorf("assistant tool call replay missing: %+v", prev)
	}
}

func TestRunIterationCap(t *testing.T) {
	// Модель бесконечно просит инструменты
	script := []llm.Result{
		assistantToolCall("tc-1", "get_sales_report", "{}"),
		assistantToolCall("tc-2", "get_sales_report", "{}"),
		assistantToolCall("tc-3", "get_sales_report", "{}"),
		assistantToolCall("tc-4", "get_sales_report", "{}"),
	}
	h := newHarness(t, script)

	out, err := h.orch.Run(context.Background(), turn("зациклись"))
	if err != nil {
		t.Fatal(err)
	}

	if len(h.caller.requests) != DefaultMaxIterations {
		t.Errorf("provider calls = %d, want %d", len(h.caller.requests), DefaultMaxIterations)
	}
	if !out.Degraded {
		t.Error("Degraded must be set when cap is hit")
	}
	if out.Suspended() {
		t.Error("cap exhaustion is not a suspension")
	}
}

func TestRunGatedSuspend(t *testing.T) {
	h := newHarness(t, []llm.Result{
		assistantToolCall("tc-1", "update_machine_status", `{"machine_id":"m-1","status":"offline"}`),
	})

	out, err := h.orch.Run(context.Background(), turn("выключи m-1"))
	if err != nil {
		t.Fatal(err)
	}

	if !out.Suspended() {
		t.Fatal("expected suspension on gated tool")
	}
	if out.Pending.ToolName != "update_machine_status" {
		t.Errorf("pending tool = %s", out.Pending.ToolName)
	}
	if h.gated.calls != 0 {
		t.Errorf("gated handler called %d times before confirmation, want 0", h.gated.calls)
	}

	// Повторный ход при открытом действии возвращает его же
	again, err := h.orch.Run(context.Background(), turn("ну что там?"))
	if err != nil {
		t.Fatal(err)
	}
	if !again.Suspended() || again.Pending.ID != out.Pending.ID {
		t.Errorf("open action not re-surfaced: %+v", again.Pending)
	}
}

func TestResumeCancel(t *testing.T) {
	h := newHarness(t, []llm.Result{
		assistantToolCall("tc-1", "update_machine_status", `{"machine_id":"m-1","status":"offline"}`),
		assistantReply("Хорошо, точку не трогаю."),
	})

	out, err := h.orch.Run(context.Background(), turn("выключи m-1"))
	if err != nil {
		t.Fatal(err)
	}

	resumed, err := h.orch.Resume(context.Background(), ResumeInput{
		ConversationID: "conv-1",
		UserID:         "u1",
		AgentID:        "sales",
		ActionID:       out.Pending.ID,
		Approve:        false,
	})
	if err != nil {
		t.Fatal(err)
	}

	if h.gated.calls != 0 {
		t.Errorf("handler invoked %d times on cancel, want 0", h.gated.calls)
	}
	if resumed.Reply != "Хорошо, точку не трогаю." {
		t.Errorf("reply = %q", resumed.Reply)
	}

	// Модель получила синтетическое tool-сообщение об отмене
	lastReq := h.caller.requests[len(h.caller.requests)-1].Messages
	var toolMsg *llm.Message
	for i := range lastReq {
		if lastReq[i].Role == llm.RoleTool && lastReq[i].ToolCallID == "tc-1" {
			toolMsg = &lastReq[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("cancellation tool message missing")
	}
	if toolMsg.Content != cancelledResult {
		t.Errorf("cancellation content = %q", toolMsg.Content)
	}
}

func TestResumeConfirm(t *testing.T) {
	h := newHarness(t, []llm.Result{
		assistantToolCall("tc-1", "update_machine_status", `{"machine_id":"m-1","status":"offline"}`),
		assistantReply("Готово: точка m-1 выключена."),
	})

	out, err := h.orch.Run(context.Background(), turn("выключи m-1"))
	if err != nil {
		t.Fatal(err)
	}

	resumed, err := h.orch.Resume(context.Background(), ResumeInput{
		ConversationID: "conv-1",
		UserID:         "u1",
		AgentID:        "sales",
		ActionID:       out.Pending.ID,
		Approve:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if h.gated.calls != 1 {
		t.Errorf("handler invoked %d times on confirm, want 1", h.gated.calls)
	}
	if resumed.Reply != "Готово: точка m-1 выключена." {
		t.Errorf("reply = %q", resumed.Reply)
	}
	if !resumed.ToolsInvoked {
		t.Error("ToolsInvoked must be set after confirmed execution")
	}

	// Действие разрешено: новый ход не блокируется
	h.caller.script = []llm.Result{assistantReply("Привет!")}
	next, err := h.orch.Run(context.Background(), turn("привет"))
	if err != nil {
		t.Fatal(err)
	}
	if next.Suspended() {
		t.Error("resolved action still blocks new turns")
	}
}

func TestRunExpiredActionClosesDanglingToolCall(t *testing.T) {
	h := newHarness(t, []llm.Result{
		assistantToolCall("tc-1", "update_machine_status", `{"machine_id":"m-1","status":"offline"}`),
		assistantReply("Подтверждение истекло, статус точки не менял."),
	})
	// Мгновенно протухающие действия
	h.orch.gate = confirm.NewGate([]string{"update_machine_status"}, confirm.NewMemoryStore(), time.Nanosecond)

	out, err := h.orch.Run(context.Background(), turn("выключи m-1"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Suspended() {
		t.Fatal("expected suspension on gated tool")
	}

	// Следующий ход: действие протухло, диалог не блокируется
	next, err := h.orch.Run(context.Background(), turn("ну что там?"))
	if err != nil {
		t.Fatal(err)
	}
	if next.Suspended() {
		t.Error("expired action must not block the turn")
	}
	if h.gated.calls != 0 {
		t.Errorf("handler called %d times for expired action, want 0", h.gated.calls)
	}

	// Запрос вендору обязан быть wire-валидным: tool call tc-1
	// закрыт tool-сообщением
	req := h.caller.requests[len(h.caller.requests)-1].Messages
	var closing *llm.Message
	for i := range req {
		if req[i].Role == llm.RoleTool && req[i].ToolCallID == "tc-1" {
			closing = &req[i]
		}
	}
	if closing == nil {
		t.Fatal("dangling tool call tc-1: no tool message in provider request")
	}
	if closing.Content != expiredResult {
		t.Errorf("closing tool message content = %q", closing.Content)
	}

	// И персистентная история закрыта навсегда, не только этот запрос
	history, _ := h.store.History(context.Background(), "conv-1")
	closed := false
	for _, m := range history {
		if m.Role == llm.RoleTool && m.ToolCallID == "tc-1" {
			closed = true
		}
	}
	if !closed {
		t.Error("expired tool call not closed in persisted history")
	}
}

func TestRunGatedInvalidArgsContinues(t *testing.T) {
	// Gated вызов без обязательных полей: валидация до suspend
	script := []llm.Result{
		{ToolCalls: []llm.ToolCall{{ID: "tc-1", Name: "update_machine_status", Args: "not json"}}},
		assistantReply("Не смог разобрать параметры, уточните точку."),
	}
	h := newHarness(t, script)
	// У gated инструмента в harness нет required полей, поэтому
	// ломаем сам JSON: валидация должна отвергнуть аргументы.

	out, err := h.orch.Run(context.Background(), turn("выключи"))
	if err != nil {
		t.Fatal(err)
	}

	if out.Suspended() {
		t.Error("invalid gated args must not create a pending action")
	}
	if h.gated.calls != 0 {
		t.Errorf("handler called %d times, want 0", h.gated.calls)
	}
	if out.Reply == "" {
		t.Error("model should get an error tool message and produce a reply")
	}
}

func TestRunRateLimited(t *testing.T) {
	h := newHarness(t, []llm.Result{assistantReply("ok"), assistantReply("ok")})

	// Подменяем limiter на квоту 1
	h.orch.limiter = ratelimit.NewMemoryLimiter(ratelimit.Config{Window: time.Minute, DefaultMax: 1})

	if _, err := h.orch.Run(context.Background(), turn("раз")); err != nil {
		t.Fatal(err)
	}
	_, err := h.orch.Run(context.Background(), turn("два"))
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Errorf("second turn error = %v, want ErrRateLimited", err)
	}
}

func TestRunQASubstitution(t *testing.T) {
	longReply := "Выручка за период составила ровно 9 999 999 рублей, гарантирую эту цифру и готов подписать договор."

	qaCaller := &scriptedCaller{script: []llm.Result{
		{Content: `{"pass": false, "flags": ["fabricated_figure"], "severity": "critical", "sanitized_reply": "Точную сумму уточню по данным бекенда и вернусь."}`},
	}}
	reviewer := qa.NewReviewer(qaCaller, qa.Config{
		HighRiskAgents: []string{"sales"},
		Provider:       "zai",
		Model:          "glm-4.5-air",
	})

	h := newHarness(t, []llm.Result{assistantReply(longReply)}, WithReviewer(reviewer))

	out, err := h.orch.Run(context.Background(), turn("какая выручка?"))
	if err != nil {
		t.Fatal(err)
	}

	if out.Reply != "Точную сумму уточню по данным бекенда и вернусь." {
		t.Errorf("sanitized reply not substituted, got: %q", out.Reply)
	}
	if out.QA.Severity != qa.SeverityCritical {
		t.Errorf("QA severity = %s", out.QA.Severity)
	}
	if len(qaCaller.requests) != 1 {
		t.Errorf("QA calls = %d, want 1", len(qaCaller.requests))
	}
}
