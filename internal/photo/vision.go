package photo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// VisionVerifier checks that an uploaded image is a plausible passport-style
// photo of a youth before it is stored (§4.8 step 2).
type VisionVerifier interface {
	Verify(ctx context.Context, jpegData []byte) (accepted bool, reason string, err error)
}

const visionVerifyToolName = "emit_photo_verdict"

var visionVerifyParameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"accepted": map[string]any{
			"type":        "boolean",
			"description": "True if the image is a plausible passport-style photo of a child/young person.",
		},
		"reason": map[string]any{
			"type":        "string",
			"description": "A short explanation, especially when rejecting.",
		},
	},
	"required": []string{"accepted", "reason"},
}

// AnthropicVisionVerifier implements VisionVerifier against Claude's vision
// support, mirroring internal/llm's forced-tool-call pattern to get a
// structured accept/reject verdict instead of free text.
type AnthropicVisionVerifier struct {
	client anthropic.Client
	model  string
}

// NewAnthropicVisionVerifier builds a verifier using the given model
// (should be a vision-capable Claude model).
func NewAnthropicVisionVerifier(apiKey, model string) (*AnthropicVisionVerifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("photo: vision verifier API key is required")
	}
	if model == "" {
		return nil, errors.New("photo: vision verifier model is required")
	}
	return &AnthropicVisionVerifier{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Verify asks the model whether jpegData is an acceptable player photo.
func (v *AnthropicVisionVerifier) Verify(ctx context.Context, jpegData []byte) (bool, string, error) {
	b64 := base64.StdEncoding.EncodeToString(jpegData)

	tool := anthropic.ToolUnionParamOfTool(mustSchema(visionVerifyParameters), visionVerifyToolName)
	tool.OfTool.Description = anthropic.String("Emit the accept/reject verdict for this photo.")

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(v.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{{
			Type: "text",
			Text: "You check player-registration photo uploads for a youth football club. " +
				"Accept a clear, well-lit photo of a single young person's face/upper body suitable " +
				"for a player ID card. Reject blurry images, images with no visible person, group " +
				"photos, or anything inappropriate. Always call " + visionVerifyToolName + " exactly once.",
		}},
		Tools: []anthropic.ToolUnionParam{tool},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/jpeg", b64),
				anthropic.NewTextBlock("Is this an acceptable player ID photo?"),
			),
		},
	}

	msg, err := v.client.Messages.New(ctx, params)
	if err != nil {
		return false, "", fmt.Errorf("photo: vision verify request: %w", err)
	}

	for _, block := range msg.Content {
		use := block.AsToolUse()
		if use.ID == "" || use.Name != visionVerifyToolName {
			continue
		}
		var verdict struct {
			Accepted bool   `json:"accepted"`
			Reason   string `json:"reason"`
		}
		if err := json.Unmarshal(use.Input, &verdict); err != nil {
			return false, "", fmt.Errorf("photo: parse vision verdict: %w", err)
		}
		return verdict.Accepted, verdict.Reason, nil
	}
	return false, "", errors.New("photo: vision verify: no verdict returned")
}

func mustSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	raw, _ := json.Marshal(params)
	var schema anthropic.ToolInputSchemaParam
	_ = json.Unmarshal(raw, &schema)
	return schema
}
