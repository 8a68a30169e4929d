package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
)

// BackboardProvider relays chat through a hosted Backboard thread. The
// thread carries the conversation history, so each call only sends the new
// user turn.
type BackboardProvider struct {
	wrapper     *backboard.Wrapper
	llmProvider string
	modelName   string
	logger      *zap.Logger
}

// NewBackboardProvider creates the Backboard-backed provider. llmProvider
// and modelName are passed through to Backboard when set.
func NewBackboardProvider(wrapper *backboard.Wrapper, llmProvider, modelName string, logger *zap.Logger) *BackboardProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackboardProvider{
		wrapper:     wrapper,
		llmProvider: llmProvider,
		modelName:   modelName,
		logger:      logger,
	}
}

// Name implements Provider.
func (p *BackboardProvider) Name() string { return "backboard" }

// Chat implements Provider.
func (p *BackboardProvider) Chat(ctx context.Context, req *ChatRequest, exec ToolExecutor) (string, error) {
	tools := make([]backboard.ToolDefinition, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, backboard.ToolDefinition{
			Type: "function",
			Function: backboard.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := p.wrapper.Chat(ctx, req.UserID, req.Text, backboard.ChatOptions{
		Remember:    req.Remember,
		LLMProvider: p.llmProvider,
		ModelName:   p.modelName,
		Tools:       tools,
	})
	if err != nil {
		return "", fmt.Errorf("backboard chat: %w", err)
	}

	for round := 0; resp.RequiresAction(); round++ {
		if round >= maxToolRounds {
			return "", fmt.Errorf("backboard chat: tool loop exceeded %d rounds", maxToolRounds)
		}

		outputs := make([]backboard.ToolOutput, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result, err := exec(ctx, call.CallName(), call.Function.Arguments)
			if err != nil {
				p.logger.Warn("tool_call_failed",
					zap.String("tool", call.CallName()),
					zap.Error(err),
				)
				result = fmt.Sprintf(`{"error":%q}`, err.Error())
			}
			outputs = append(outputs, backboard.ToolOutput{
				ToolCallID: call.ID,
				Output:     result,
			})
		}

		resp, err = p.wrapper.SubmitToolOutputs(ctx, req.UserID, resp.RunID, outputs)
		if err != nil {
			return "", fmt.Errorf("backboard submit tool outputs: %w", err)
		}
	}

	return resp.Content, nil
}
