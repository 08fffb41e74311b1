package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/troupelabs/troupe/internal/tools"
	"github.com/troupelabs/troupe/pkg/models"
)

// defaultMaxTokens caps completions when the request does not say otherwise.
const defaultMaxTokens = 8192

// AnthropicProvider talks to the Anthropic API, directly or through AWS
// Bedrock. It is the backend for tool-calling agent turns.
type AnthropicProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	bedrock bool
	tracker *TokenTracker
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates the provider. Without Bedrock, an API key
// must come from the config or the ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return &AnthropicProvider{
		client:  anthropic.NewClient(opts...),
		model:   model,
		bedrock: cfg.UseAWSBedrock,
		tracker: NewTokenTracker(),
	}, nil
}

// Name identifies the backend.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Tracker returns the cumulative token tracker.
func (p *AnthropicProvider) Tracker() *TokenTracker {
	return p.tracker
}

// Model returns the configured default model.
func (p *AnthropicProvider) Model() anthropic.Model {
	return p.model
}

// GenerateResponse performs one Messages API call and parses the content
// blocks into text and tool calls.
func (p *AnthropicProvider) GenerateResponse(ctx context.Context, req Request) (*Response, error) {
	model := p.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
		if p.bedrock {
			model = translateModelForBedrock(model)
		}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages, err := buildMessageParams(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toolParams(req.Tools)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	p.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	out := &Response{
		FinishReason: mapStopReason(resp.StopReason),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += variant.Text
		case anthropic.ToolUseBlock:
			args := map[string]interface{}{}
			if len(variant.Input) > 0 {
				if err := json.Unmarshal(variant.Input, &args); err != nil {
					return nil, fmt.Errorf("failed to decode input for tool %s: %w", variant.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:   variant.ID,
				Tool: variant.Name,
				Args: args,
			})
		}
	}
	return out, nil
}

// buildMessageParams converts stored conversation messages, including tool
// call and tool result parts, into API message params.
func buildMessageParams(history []models.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, part := range msg.Parts {
			switch part.Type {
			case models.PartText:
				if part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case models.PartToolCall:
				if part.ToolCall == nil {
					continue
				}
				input, err := json.Marshal(part.ToolCall.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to encode args for tool %s: %w", part.ToolCall.Tool, err)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, input, part.ToolCall.Tool))
			case models.PartToolResult:
				if part.ToolResult == nil {
					continue
				}
				content := part.ToolResult.Content
				if !part.ToolResult.OK {
					content = part.ToolResult.Error
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(part.ToolResult.CallID, content, !part.ToolResult.OK))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

// toolParams exports registry schemas as API tool definitions.
func toolParams(defs []tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		props := make(map[string]interface{}, len(def.Parameters.Properties))
		for name, prop := range def.Parameters.Properties {
			spec := map[string]interface{}{"type": prop.Type}
			if prop.Description != "" {
				spec["description"] = prop.Description
			}
			props[name] = spec
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   def.Parameters.Required,
				},
			},
		})
	}
	return out
}

func mapStopReason(stop anthropic.StopReason) FinishReason {
	switch stop {
	case anthropic.StopReasonEndTurn:
		return FinishEndTurn
	case anthropic.StopReasonToolUse:
		return FinishToolUse
	case anthropic.StopReasonMaxTokens:
		return FinishMaxTokens
	default:
		return FinishOther
	}
}

// translateModelForBedrock converts standard model names to Bedrock
// cross-region inference profile names.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	// Unknown names pass through; they may already be in Bedrock format.
	return model
}

// IsBedrockModel reports whether the name is already a Bedrock inference
// profile.
func IsBedrockModel(model anthropic.Model) bool {
	return strings.HasPrefix(string(model), "us.anthropic")
}
