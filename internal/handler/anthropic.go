package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/adamavenir/mentionrunner/internal/mention"
)

// ToolDefinition is one tool the handler advertises to the model. Its
// InputSchema is run through the handler's SchemaCleaner before being
// sent, so callers supply the schema in its natural, provider-agnostic
// form.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// AnthropicHandler delegates mention replies to the Anthropic Messages
// API, grounded on original_source's claude_agent_sdk_monitor.py. It
// carries no conversational memory across mentions: each invocation is
// a single-turn completion over the mention's content, matching the
// original monitor's stateless-per-mention design.
type AnthropicHandler struct {
	client       anthropic.Client
	model        anthropic.Model
	systemPrompt string
	tools        []ToolDefinition
	cleaner      SchemaCleaner
}

// AnthropicConfig configures an AnthropicHandler from an AgentConfig's
// handler_params.
type AnthropicConfig struct {
	APIKey       string
	Model        string
	SystemPrompt string
	Tools        []ToolDefinition
}

// NewAnthropicHandler builds a handler bound to cfg. An empty Model
// falls back to a current small/fast model, matching the original's
// default of favoring latency over capability for mention replies.
func NewAnthropicHandler(cfg AnthropicConfig) *AnthropicHandler {
	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}
	return &AnthropicHandler{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		tools:        cfg.Tools,
		cleaner:      AnthropicSchemaCleaner{},
	}
}

// Handle implements MessageHandler.
func (h *AnthropicHandler) Handle(ctx context.Context, agentID string, m *mention.CanonicalMention) (Result, error) {
	params := anthropic.MessageNewParams{
		Model:     h.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)),
		},
	}
	if h.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: h.systemPrompt}}
	}
	if len(h.tools) > 0 {
		params.Tools = make([]anthropic.ToolUnionParam, 0, len(h.tools))
		for _, t := range h.tools {
			params.Tools = append(params.Tools, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        t.Name,
					Description: t.Description,
					InputSchema: toolInputSchema(h.cleaner.Clean(t.InputSchema)),
				},
			})
		}
	}

	msg, err := h.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic messages.new for agent %s: %w", agentID, err)
	}

	var reply string
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply += text.Text
		}
	}
	return Result{Reply: reply}, nil
}

// toolInputSchema bridges a cleaned jsonschema.Schema into the
// anthropic SDK's own tool-input-schema shape. The two schema types
// don't share a representation, so this round-trips through JSON
// rather than hand-mapping every field.
func toolInputSchema(schema *jsonschema.Schema) anthropic.ToolInputSchemaParam {
	if schema == nil {
		return anthropic.ToolInputSchemaParam{}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}
	}
	var decoded struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return anthropic.ToolInputSchemaParam{}
	}
	return anthropic.ToolInputSchemaParam{Properties: decoded.Properties}
}
