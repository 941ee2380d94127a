// Package llm wraps the Anthropic SDK behind the C7 invoke() contract: a
// single structured-output completion call per attempt, with retry on
// transient failures and a forced-tool trick to constrain the reply to the
// two-field agent_final_response/routine_number shape.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/utjfc/reg-agent/internal/retry"
	"github.com/utjfc/reg-agent/pkg/models"
)

// replyToolName is the name of the synthetic tool the model is forced to
// call in order to emit its structured reply. Using a tool call rather than
// free text gets schema enforcement for free from the SDK's JSON-schema
// input validation.
const replyToolName = "emit_agent_reply"

// replyToolInstruction is appended to every system prompt so the model
// always closes its turn with the reply tool, whether or not it also used
// domain tools earlier in the same response.
const replyToolInstruction = "You must always call the " + replyToolName +
	" tool exactly once to end your turn, even if you also called other tools. " +
	"Never reply in plain text."

// StructuredReply is the two-field response shape every assistant turn must
// satisfy (§6).
type StructuredReply struct {
	AgentFinalResponse string `json:"agent_final_response"`
	RoutineNumber      *int   `json:"routine_number"`
}

// Message is one entry in the conversation passed to Invoke. ToolCalls is
// set on an assistant message that requested tool execution; ToolCallID and
// Content carry a tool result back when Role is models.RoleTool.
type Message struct {
	Role       models.Role
	Content    string
	ToolCallID string
	ToolCalls  []models.ToolCall
}

// CompletionRequest is one invoke() call (§4.7).
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []models.ToolSchema
	MaxTokens int
}

// InvokeResult is the parsed outcome of a completion. ToolCalls holds any
// domain tools the model invoked; Reply holds the structured reply the model
// is instructed to always emit before ending its turn. The workflow engine
// (§4.6 step 5) dispatches ToolCalls and re-invokes with the results before
// trusting Reply when both are present in the same response.
type InvokeResult struct {
	ToolCalls        []models.ToolCall
	Reply            *StructuredReply
	PromptTokens     int
	CompletionTokens int
}

// Provider is the C7 LLM adapter contract.
type Provider interface {
	Invoke(ctx context.Context, req *CompletionRequest) (*InvokeResult, error)
}

// AnthropicProvider implements Provider against Claude's Messages API.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// Config configures an AnthropicProvider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// NewAnthropicProvider builds a provider. MaxTokens defaults to 4096 and
// DefaultModel must be supplied by the caller's config (§7).
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: API key is required")
	}
	if cfg.DefaultModel == "" {
		return nil, errors.New("llm: default model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Invoke sends one completion request and returns either tool calls to
// dispatch or the parsed structured reply. It retries on network errors,
// HTTP 5xx, and schema-parse failures per the canonical retry table; it does
// not retry tool-argument validation errors, since those are surfaced to the
// caller to let the LLM self-correct on the next turn.
func (p *AnthropicProvider) Invoke(ctx context.Context, req *CompletionRequest) (*InvokeResult, error) {
	result, err := retry.RetryWithBackoff(ctx, retry.LLMCallPolicy(), 3, func(attempt int) (*InvokeResult, error) {
		return p.invokeOnce(ctx, req)
	})
	if err != nil {
		if errors.Is(err, retry.ErrMaxAttemptsExhausted) {
			return nil, fmt.Errorf("llm: max retries exceeded: %w", result.LastError)
		}
		return nil, err
	}
	return result.Value, nil
}

func (p *AnthropicProvider) invokeOnce(ctx context.Context, req *CompletionRequest) (*InvokeResult, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("llm: invalid message history: %w", err)
	}

	tools, err := p.convertTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("llm: invalid tool schema: %w", err)
	}
	tools = append(tools, replyToolParam())

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.tokens(req.MaxTokens)),
		Tools:     tools,
	}
	system := req.System
	if system != "" {
		system += "\n\n"
	}
	system += replyToolInstruction
	params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	result, err := parseResponse(msg)
	if err != nil {
		return nil, err
	}
	result.PromptTokens = int(msg.Usage.InputTokens)
	result.CompletionTokens = int(msg.Usage.OutputTokens)
	return result, nil
}

func parseResponse(msg *anthropic.Message) (*InvokeResult, error) {
	var toolCalls []models.ToolCall
	var reply *StructuredReply

	for _, block := range msg.Content {
		use := block.AsToolUse()
		if use.ID == "" {
			continue
		}
		if use.Name == replyToolName {
			parsed, err := parseStructuredReply(use.Input)
			if err != nil {
				return nil, fmt.Errorf("llm: schema-parse failure: %w", err)
			}
			reply = parsed
			continue
		}
		toolCalls = append(toolCalls, models.ToolCall{
			ID:        use.ID,
			Name:      use.Name,
			Arguments: json.RawMessage(use.Input),
		})
	}

	if reply == nil && len(toolCalls) == 0 {
		return nil, errors.New("llm: schema-parse failure: response contained no tool_use block")
	}

	return &InvokeResult{ToolCalls: toolCalls, Reply: reply}, nil
}

func parseStructuredReply(raw json.RawMessage) (*StructuredReply, error) {
	var reply StructuredReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply.AgentFinalResponse) == "" {
		return nil, errors.New("agent_final_response is empty")
	}
	return &reply, nil
}

func (p *AnthropicProvider) convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		if msg.Role == models.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		for _, call := range msg.ToolCalls {
			var input map[string]any
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &input); err != nil {
					return nil, fmt.Errorf("tool call %s: %w", call.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func (p *AnthropicProvider) convertTools(tools []models.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		raw, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("tool %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

var replyToolParameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"agent_final_response": map[string]any{
			"type":        "string",
			"description": "The human-readable reply to show the user.",
		},
		"routine_number": map[string]any{
			"type":        []string{"integer", "null"},
			"description": "The next step number, or null if the conversation is at a terminal point.",
		},
	},
	"required": []string{"agent_final_response", "routine_number"},
}

func replyToolParam() anthropic.ToolUnionParam {
	raw, _ := json.Marshal(replyToolParameters)
	var schema anthropic.ToolInputSchemaParam
	_ = json.Unmarshal(raw, &schema)

	toolParam := anthropic.ToolUnionParamOfTool(schema, replyToolName)
	toolParam.OfTool.Description = anthropic.String(
		"Emit the final structured reply for this turn. Call this instead of replying in plain text.")
	return toolParam
}

func (p *AnthropicProvider) model(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) tokens(maxTokens int) int {
	if maxTokens <= 0 {
		return p.maxTokens
	}
	return maxTokens
}

func (p *AnthropicProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	providerErr := NewProviderError("anthropic", p.defaultModel, err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithStatus(apiErr.StatusCode)
	}
	return providerErr
}

// Deadline computes the client-side deadline for an invoke() call per §6:
// min(clientDeadline-2s, 28s) from now.
func Deadline(clientDeadline time.Time) time.Duration {
	const maxDeadline = 28 * time.Second
	const margin = 2 * time.Second

	remaining := time.Until(clientDeadline) - margin
	if remaining <= 0 {
		return 0
	}
	if remaining > maxDeadline {
		return maxDeadline
	}
	return remaining
}
