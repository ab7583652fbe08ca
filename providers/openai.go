package providers

import (
	"context"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"go.uber.org/zap"
)

// OpenAIConfig configures the direct chat completion client
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string       // optional override for OpenAI-compatible endpoints
	HTTPClient *http.Client // optional, for tests and custom transports
}

// OpenAIClient issues chat completions directly against an OpenAI-compatible
// endpoint using the official SDK. It implements the same wire contract as
// the witnessed path; only the transport differs.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client from the given configuration
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client}
}

// Complete issues one chat completion call and decodes the result
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	logger.Debug("Issuing chat completion", zap.String("component", "OpenAI"), zap.String("operation", "Complete"), zap.String("model", req.Model), zap.Int("messages", len(req.Messages)))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toMessageUnions(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	params.Temperature = openai.Float(req.Temperature)
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}

	opts := []option.RequestOption{}
	if len(req.Stop) > 0 {
		opts = append(opts, option.WithJSONSet("stop", req.Stop))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return nil, NewRequestError("chat completion call failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewMalformedPayloadError("completion carried no choices", nil)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, NewMalformedPayloadError("completion carried no assistant content", nil)
	}

	return &CompletionResult{
		Text:        content,
		Model:       resp.Model,
		ID:          resp.ID,
		RawResponse: resp.RawJSON(),
	}, nil
}

// toMessageUnions converts wire messages to SDK message unions
func toMessageUnions(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: param.Opt[string]{Value: m.Content},
					},
				},
			})
		case RoleAssistant:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: param.Opt[string]{Value: m.Content},
					},
				},
			})
		default:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: param.Opt[string]{Value: m.Content},
					},
				},
			})
		}
	}
	return out
}
