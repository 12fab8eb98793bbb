package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/agent"
	"github.com/opsdesk/opsdesk-ai/pkg/confirm"
	"github.com/opsdesk/opsdesk-ai/pkg/gateway"
	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/qa"
	"github.com/opsdesk/opsdesk-ai/pkg/ratelimit"
	"github.com/opsdesk/opsdesk-ai/pkg/selector"
	"github.com/opsdesk/opsdesk-ai/pkg/state"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// Orchestrator связывает limiter, selector, gateway, инструменты,
// gate и QA в один ход диалога.
type Orchestrator struct {
	agents        *agent.Registry
	policy        *selector.Policy
	caller        Caller
	registry      *tools.Registry
	executor      *tools.Executor
	gate          *confirm.Gate
	limiter       ratelimit.Limiter
	conversations state.ConversationStore
	reviewer      *qa.Reviewer // nil = без QA

	maxIterations int
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithMaxIterations переопределяет потолок вызовов модели за ход.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithReviewer включает QA проверку финальных ответов.
func WithReviewer(r *qa.Reviewer) Option {
	return func(o *Orchestrator) { o.reviewer = r }
}

// New создает Orchestrator.
func New(
	agents *agent.Registry,
	policy *selector.Policy,
	caller Caller,
	registry *tools.Registry,
	executor *tools.Executor,
	gate *confirm.Gate,
	limiter ratelimit.Limiter,
	conversations state.ConversationStore,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		agents:        agents,
		policy:        policy,
		caller:        caller,
		registry:      registry,
		executor:      executor,
		gate:          gate,
		limiter:       limiter,
		conversations: conversations,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run обрабатывает один ход диалога.
//
// Порядок: rate limit → открытые pending actions → история →
// выбор модели → цикл tool-calling → QA финального ответа.
func (o *Orchestrator) Run(ctx context.Context, in TurnInput) (TurnOutput, error) {
	function := in.Function
	if function == "" {
		function = "chat"
	}

	if err := o.limiter.Allow(ctx, in.UserID, function); err != nil {
		return TurnOutput{}, err
	}

	profile, err := o.agents.Get(in.AgentID)
	if err != nil {
		return TurnOutput{}, err
	}

	// Открытое действие блокирует новые ходы: сначала да/нет.
	pending, open, err := o.gate.Open(ctx, in.ConversationID)
	if err != nil {
		return TurnOutput{}, err
	}
	if open {
		return TurnOutput{Pending: &pending}, nil
	}
	// Gate только что пометил действие expired: в истории висит
	// tool call без ответа. Дописываем синтетическое tool-сообщение
	// ДО загрузки истории, иначе каждый следующий вызов вендора
	// уйдёт с wire-невалидной историей.
	if pending.ID != "" {
		if err := o.repairExpired(ctx, in.ConversationID, pending); err != nil {
			return TurnOutput{}, err
		}
	}

	history, err := o.conversations.History(ctx, in.ConversationID)
	if err != nil {
		return TurnOutput{}, fmt.Errorf("failed to load conversation history: %w", err)
	}

	userMsg := llm.Message{
		Role:    llm.RoleUser,
		Content: in.Text,
		Images:  in.Images,
	}

	route := o.policy.Select(selector.Input{
		Agent:          profile,
		MessageText:    in.Text,
		HasAttachments: len(in.Images) > 0,
		HistoryLength:  len(history),
	})

	utils.Info("Turn started",
		"conversation_id", in.ConversationID,
		"agent", profile.ID,
		"model", route.Model,
		"route_reason", route.Reason)

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: profile.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, userMsg)

	out, newMessages, err := o.runLoop(ctx, loopState{
		conversationID: in.ConversationID,
		userID:         in.UserID,
		tenantID:       in.TenantID,
		profile:        profile,
		route:          route,
		messages:       messages,
		contextText:    in.Text,
	})
	if err != nil {
		return TurnOutput{}, err
	}

	// Персистим ход целиком: пользовательское сообщение плюс всё,
	// что цикл нагенерировал (assistant, tool результаты).
	persisted := append([]llm.Message{userMsg}, newMessages...)
	if err := o.conversations.Append(ctx, in.ConversationID, persisted...); err != nil {
		return TurnOutput{}, fmt.Errorf("failed to persist turn: %w", err)
	}

	return out, nil
}

// repairExpired закрывает повисший tool call протухшего действия
// синтетическим tool-сообщением в персистентной истории.
func (o *Orchestrator) repairExpired(ctx context.Context, conversationID string, action confirm.PendingAction) error {
	msg := toolMessage(llm.ToolCall{ID: action.ToolCallID, Name: action.ToolName}, expiredResult)
	if err := o.conversations.Append(ctx, conversationID, msg); err != nil {
		return fmt.Errorf("failed to close expired tool call in history: %w", err)
	}
	utils.Info("Expired action closed in history",
		"conversation_id", conversationID,
		"action_id", action.ID,
		"tool", action.ToolName)
	return nil
}

// loopState — всё, что нужно одному прогону цикла.
type loopState struct {
	conversationID string
	userID         string
	tenantID       string
	profile        agent.Profile
	route          selector.Route
	messages       []llm.Message // system + история + новые сообщения
	contextText    string        // для QA payload
}

// runLoop — цикл tool-calling, общий для Run и Resume.
//
// Возвращает результат хода и НОВЫЕ сообщения (без system и истории),
// которые вызывающий код персистит.
func (o *Orchestrator) runLoop(ctx context.Context, st loopState) (TurnOutput, []llm.Message, error) {
	ctx = tools.WithScope(ctx, tools.Scope{UserID: st.userID, TenantID: st.tenantID})

	out := TurnOutput{Route: st.route}
	var newMessages []llm.Message
	parallelOff := false
	lastContent := ""

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		result, err := o.caller.Call(ctx, gateway.Request{
			Provider:          st.route.Provider,
			Model:             st.route.Model,
			Messages:          st.messages,
			Temperature:       st.route.Temperature,
			MaxTokens:         st.route.MaxTokens,
			Tools:             o.registry.GetDefinitions(),
			ParallelToolCalls: &parallelOff,
			Fallback:          st.route.Fallback,
		})
		if err != nil {
			return TurnOutput{}, nil, err
		}

		assistantMsg := result.AsMessage()
		st.messages = append(st.messages, assistantMsg)
		newMessages = append(newMessages, assistantMsg)
		lastContent = result.Content

		if !result.HasToolCalls() {
			out.Reply = o.finalize(ctx, &out, st, result.Content)
			return out, newMessages, nil
		}

		out.ToolsInvoked = true

		toolMsgs, pending, err := o.processToolCalls(ctx, st, result.ToolCalls)
		if err != nil {
			return TurnOutput{}, nil, err
		}
		st.messages = append(st.messages, toolMsgs...)
		newMessages = append(newMessages, toolMsgs...)

		if pending != nil {
			out.Pending = pending
			return out, newMessages, nil
		}
	}

	// Потолок итераций: отдаём лучший доступный контент вместо
	// бесконечного цикла.
	utils.Warn("Iteration cap reached with tool calls still pending",
		"conversation_id", st.conversationID,
		"max_iterations", o.maxIterations)

	out.Degraded = true
	out.Reply = o.finalize(ctx, &out, st, lastContent)
	return out, newMessages, nil
}

// processToolCalls выполняет вызовы строго по порядку.
//
// Auto-инструменты выполняются сразу. Первый gated вызов
// приостанавливает ход: оставшиеся вызовы получают синтетические
// "skipped" tool-сообщения, чтобы история осталась wire-валидной.
// Ответ на сам gated вызов будет дописан при resume.
func (o *Orchestrator) processToolCalls(
	ctx context.Context,
	st loopState,
	calls []llm.ToolCall,
) ([]llm.Message, *confirm.PendingAction, error) {
	var msgs []llm.Message

	for i, call := range calls {
		if !o.gate.IsGated(call.Name) {
			result := o.executor.Execute(ctx, call)
			msgs = append(msgs, toolMessage(call, result))
			continue
		}

		pending, errResult, err := o.suspendGated(ctx, st, call)
		if err != nil {
			return nil, nil, err
		}
		if errResult != "" {
			// Валидация не прошла или уже есть открытое действие:
			// модель получает ошибку и продолжает ход.
			msgs = append(msgs, toolMessage(call, errResult))
			continue
		}

		for _, rest := range calls[i+1:] {
			msgs = append(msgs, toolMessage(rest, skippedResult))
		}
		return msgs, pending, nil
	}

	return msgs, nil, nil
}

// suspendGated валидирует аргументы gated вызова и создает PendingAction.
//
// Возвращает (action, "", nil) при успехе, ("", errString, nil) когда
// вызов отвергнут и ход продолжается, и ошибку при сбое хранилища.
func (o *Orchestrator) suspendGated(
	ctx context.Context,
	st loopState,
	call llm.ToolCall,
) (*confirm.PendingAction, string, error) {
	tool, err := o.registry.Get(call.Name)
	if err != nil {
		return nil, fmt.Sprintf("Error: tool not found: %s", call.Name), nil
	}

	args, err := tools.ValidateArgs(tool.Definition(), call.Args)
	if err != nil {
		return nil, fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err), nil
	}

	// Канонизируем аргументы: при resume handler получит ровно то,
	// что одобрил пользователь.
	canonical, err := json.Marshal(args)
	if err != nil {
		return nil, "", fmt.Errorf("failed to canonicalize arguments: %w", err)
	}

	summary := fmt.Sprintf("%s: %s", tool.Definition().Description, string(canonical))

	action, err := o.gate.Suspend(ctx, st.conversationID, st.userID, call, string(canonical), summary)
	if err != nil {
		if errors.Is(err, confirm.ErrActionPending) {
			return nil, fmt.Sprintf(
				"Error: another action is already awaiting user confirmation; %s was not scheduled", call.Name), nil
		}
		return nil, "", err
	}

	return &action, "", nil
}

// finalize прогоняет финальный ответ через QA и применяет substitution.
func (o *Orchestrator) finalize(ctx context.Context, out *TurnOutput, st loopState, reply string) string {
	if o.reviewer == nil {
		return reply
	}

	verdict := o.reviewer.Review(ctx, qa.ReviewInput{
		AgentID:      st.profile.ID,
		Reply:        reply,
		ContextText:  st.contextText,
		ToolsInvoked: out.ToolsInvoked,
	})
	out.QA = verdict

	if verdict.Severity == qa.SeverityCritical && verdict.SanitizedReply != nil {
		utils.Warn("Reply replaced by QA sanitized version",
			"conversation_id", st.conversationID,
			"agent", st.profile.ID,
			"flags", fmt.Sprintf("%v", verdict.Flags))
		return *verdict.SanitizedReply
	}

	return reply
}
