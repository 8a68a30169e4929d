package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 60 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider implements Provider using OpenAI's chat completions API.
// Unlike Backboard there is no hosted thread, so each call is a single
// exchange; the caller injects any needed context into the message text.
type OpenAIProvider struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Chat implements Provider.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest, exec ToolExecutor) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Text))

	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(t.Parameters),
		}))
	}

	for round := 0; ; round++ {
		if round > maxToolRounds {
			return "", fmt.Errorf("openai chat: tool loop exceeded %d rounds", maxToolRounds)
		}

		params := openai.ChatCompletionNewParams{
			Model:    shared.ChatModel(p.model),
			Messages: messages,
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		resp, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New(ErrNoChoicesInResponse)
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		messages = append(messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			result, err := exec(ctx, call.Function.Name, []byte(call.Function.Arguments))
			if err != nil {
				p.logger.Warn("tool_call_failed",
					zap.String("tool", call.Function.Name),
					zap.Error(err),
				)
				result = fmt.Sprintf(`{"error":%q}`, err.Error())
			}
			messages = append(messages, openai.ToolMessage(result, call.ID))
		}
	}
}
