package providers

import (
	"encoding/json"

	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"
)

// Chat completion wire model. This is the provider-native JSON shape: the
// same bytes go to the endpoint whether the call is witnessed or direct, and
// the request JSON is what ends up embedded in a claim.

// Role identifies the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single turn in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider request body. Field order is fixed by the
// struct so the encoded JSON is byte-stable for a given request.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int64         `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Seed        *int64        `json:"seed,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// EncodeCompletionRequest serializes the request body for the wire
func EncodeCompletionRequest(req *CompletionRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, NewRequestError("failed to encode completion request", err)
	}
	return data, nil
}

// CompletionResult is the decoded outcome of one completion call
type CompletionResult struct {
	Text        string `json:"text"`
	Model       string `json:"model"`
	ID          string `json:"id"`
	RawResponse string `json:"raw_response"`
}

// DecodeCompletion parses a provider-native chat completion body. A body
// that does not decode, carries no choices or has empty assistant content is
// a malformed payload; those cases are reported distinctly from extraction
// misses so callers can tell schema drift from a pattern mismatch.
func DecodeCompletion(rawBody []byte) (*CompletionResult, error) {
	var completion openai.ChatCompletion
	if err := json.Unmarshal(rawBody, &completion); err != nil {
		logger.Debug("Completion body failed to decode", zap.String("component", "Completion"), zap.String("operation", "DecodeCompletion"), zap.Error(err))
		return nil, NewMalformedPayloadError("completion body is not valid provider JSON", err)
	}

	if len(completion.Choices) == 0 {
		return nil, NewMalformedPayloadError("completion carried no choices", nil)
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		return nil, NewMalformedPayloadError("completion carried no assistant content", nil)
	}

	return &CompletionResult{
		Text:        content,
		Model:       completion.Model,
		ID:          completion.ID,
		RawResponse: string(rawBody),
	}, nil
}

// DefaultCompletionPattern matches the assistant content inside a chat
// completion body and captures it as the provable response slice. The capture
// keeps JSON escapes; decode it with DecodeExtractedString.
const DefaultCompletionPattern = `"content":\s*"(?<response>(?:[^"\\]|\\.)*)"`

// DefaultCompletionRule is DefaultCompletionPattern compiled and validated
var DefaultCompletionRule = MustExtractionRule(DefaultCompletionPattern)
