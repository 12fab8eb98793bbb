package orchestrator

import (
	"context"
	"fmt"

	"github.com/opsdesk/opsdesk-ai/pkg/llm"
	"github.com/opsdesk/opsdesk-ai/pkg/selector"
	"github.com/opsdesk/opsdesk-ai/pkg/tools"
	"github.com/opsdesk/opsdesk-ai/pkg/utils"
)

// Resume продолжает ход после решения пользователя по pending action.
//
// Это свежая инвокация со своим полным бюджетом итераций:
// continuation в памяти не хранится, всё восстанавливается из
// персистентной истории и самого действия.
//
// Confirm: handler выполняется, его результат уходит модели как
// tool-сообщение. Cancel: handler НЕ вызывается, модели уходит
// синтетическое tool-сообщение об отмене — она формулирует
// вежливое подтверждение. Rate limit на resume не применяется:
// пользователь завершает уже оплаченный квотой ход.
func (o *Orchestrator) Resume(ctx context.Context, in ResumeInput) (TurnOutput, error) {
	profile, err := o.agents.Get(in.AgentID)
	if err != nil {
		return TurnOutput{}, err
	}

	action, ok, err := o.gate.Open(ctx, in.ConversationID)
	if err != nil {
		return TurnOutput{}, err
	}
	if !ok {
		// Действие могло протухнуть прямо сейчас: закрываем его
		// повисший tool call, прежде чем вернуть ошибку.
		if action.ID != "" {
			if repairErr := o.repairExpired(ctx, in.ConversationID, action); repairErr != nil {
				return TurnOutput{}, repairErr
			}
			return TurnOutput{}, fmt.Errorf("pending action '%s' expired before the decision", action.ID)
		}
		return TurnOutput{}, fmt.Errorf("no pending action to resume in conversation '%s'", in.ConversationID)
	}
	if action.ID != in.ActionID {
		return TurnOutput{}, fmt.Errorf("pending action mismatch: open is '%s', requested '%s'", action.ID, in.ActionID)
	}

	var toolResult string
	if in.Approve {
		if err := o.gate.Confirm(ctx, action.ID); err != nil {
			return TurnOutput{}, err
		}
		// Аргументы уже валидированы при suspend; Executor прогонит
		// валидацию повторно и выполнит handler.
		scoped := tools.WithScope(ctx, tools.Scope{UserID: in.UserID, TenantID: in.TenantID})
		toolResult = o.executor.Execute(
			scoped,
			llm.ToolCall{ID: action.ToolCallID, Name: action.ToolName, Args: action.Args},
		)
		utils.Info("Gated action confirmed and executed",
			"action_id", action.ID, "tool", action.ToolName)
	} else {
		if err := o.gate.Cancel(ctx, action.ID); err != nil {
			return TurnOutput{}, err
		}
		toolResult = cancelledResult
		utils.Info("Gated action cancelled by user",
			"action_id", action.ID, "tool", action.ToolName)
	}

	toolMsg := toolMessage(llm.ToolCall{ID: action.ToolCallID, Name: action.ToolName}, toolResult)

	history, err := o.conversations.History(ctx, in.ConversationID)
	if err != nil {
		return TurnOutput{}, fmt.Errorf("failed to load conversation history: %w", err)
	}

	route := o.policy.Select(selector.Input{
		Agent:         profile,
		MessageText:   action.Summary,
		HistoryLength: len(history),
	})

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: profile.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, toolMsg)

	out, newMessages, err := o.runLoop(ctx, loopState{
		conversationID: in.ConversationID,
		userID:         in.UserID,
		tenantID:       in.TenantID,
		profile:        profile,
		route:          route,
		messages:       messages,
		contextText:    action.Summary,
	})
	if err != nil {
		return TurnOutput{}, err
	}
	out.ToolsInvoked = out.ToolsInvoked || in.Approve

	persisted := append([]llm.Message{toolMsg}, newMessages...)
	if err := o.conversations.Append(ctx, in.ConversationID, persisted...); err != nil {
		return TurnOutput{}, fmt.Errorf("failed to persist resumed turn: %w", err)
	}

	return out, nil
}
