package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"
)

const (
	// DefaultBedrockModelID is the default Bedrock model.
	DefaultBedrockModelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	// DefaultBedrockRegion is used when BEDROCK_REGION is unset.
	DefaultBedrockRegion = "us-east-1"
)

// bedrockAPI is the slice of the Bedrock runtime client we use. Tests
// substitute a stub.
type bedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements Provider on the AWS Bedrock Converse API.
type BedrockProvider struct {
	client  bedrockAPI
	modelID string
	logger  *zap.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS
// credential chain.
func NewBedrockProvider(ctx context.Context, region, modelID string, logger *zap.Logger) (*BedrockProvider, error) {
	if region == "" {
		region = DefaultBedrockRegion
	}
	if modelID == "" {
		modelID = DefaultBedrockModelID
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		logger:  logger,
	}, nil
}

// Name implements Provider.
func (p *BedrockProvider) Name() string { return "bedrock" }

// Chat implements Provider.
func (p *BedrockProvider) Chat(ctx context.Context, req *ChatRequest, exec ToolExecutor) (string, error) {
	messages := []types.Message{{
		Role:    types.ConversationRoleUser,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Text}},
	}}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.modelID),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if len(req.Tools) > 0 {
		toolConfig := &types.ToolConfiguration{}
		for _, t := range req.Tools {
			toolConfig.Tools = append(toolConfig.Tools, &types.ToolMemberToolSpec{
				Value: types.ToolSpecification{
					Name:        aws.String(t.Name),
					Description: aws.String(t.Description),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(t.Parameters),
					},
				},
			})
		}
		input.ToolConfig = toolConfig
	}

	for round := 0; ; round++ {
		if round > maxToolRounds {
			return "", fmt.Errorf("bedrock chat: tool loop exceeded %d rounds", maxToolRounds)
		}

		out, err := p.client.Converse(ctx, input)
		if err != nil {
			return "", fmt.Errorf("bedrock converse: %w", err)
		}

		outMsg, ok := out.Output.(*types.ConverseOutputMemberMessage)
		if !ok {
			return "", fmt.Errorf("bedrock converse: unexpected output type %T", out.Output)
		}

		if out.StopReason != types.StopReasonToolUse {
			return extractText(outMsg.Value), nil
		}

		input.Messages = append(input.Messages, outMsg.Value)

		var resultBlocks []types.ContentBlock
		for _, block := range outMsg.Value.Content {
			toolUse, ok := block.(*types.ContentBlockMemberToolUse)
			if !ok {
				continue
			}

			args, err := marshalToolInput(toolUse.Value.Input)
			if err != nil {
				return "", fmt.Errorf("bedrock converse: decode tool input: %w", err)
			}

			result, err := exec(ctx, aws.ToString(toolUse.Value.Name), args)
			if err != nil {
				p.logger.Warn("tool_call_failed",
					zap.String("tool", aws.ToString(toolUse.Value.Name)),
					zap.Error(err),
				)
				result = fmt.Sprintf(`{"error":%q}`, err.Error())
			}

			resultBlocks = append(resultBlocks, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: toolUse.Value.ToolUseId,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: result},
					},
				},
			})
		}

		input.Messages = append(input.Messages, types.Message{
			Role:    types.ConversationRoleUser,
			Content: resultBlocks,
		})
	}
}

func extractText(msg types.Message) string {
	var text string
	for _, block := range msg.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			if text != "" {
				text += "\n"
			}
			text += t.Value
		}
	}
	return text
}

func marshalToolInput(doc document.Interface) (json.RawMessage, error) {
	if doc == nil {
		return json.RawMessage(`{}`), nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
