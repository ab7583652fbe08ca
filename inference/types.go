package inference

import (
	"context"
	"fmt"

	"verinfer/providers"
	"verinfer/shared"
)

// Strategy tags how a result is made verifiable. The tag travels with every
// result and serialized artifact; a client only ever handles artifacts
// carrying its own tag.
type Strategy string

const (
	// StrategyTranscriptProof backs results with a witness-signed claim over
	// the TLS exchange with the provider.
	StrategyTranscriptProof Strategy = "transcript-proof"

	// StrategyReExecution backs results with a deterministic replay recipe:
	// same model, messages, seed and temperature 0 must reproduce the text
	// byte for byte.
	StrategyReExecution Strategy = "re-execution"
)

// Valid reports whether s is a known strategy tag
func (s Strategy) Valid() bool {
	return s == StrategyTranscriptProof || s == StrategyReExecution
}

const defaultMaxTokens = 512

// InferenceRequest describes one completion to generate. Either Messages or
// the single-turn Prompt convenience must be set; SystemPrompt, when present,
// is prepended as a system turn. The request itself is never mutated by the
// client.
type InferenceRequest struct {
	// Model names the provider model. Falls back to the client's configured
	// model when empty.
	Model string

	// Messages is the ordered conversation. Takes precedence over Prompt.
	Messages []providers.ChatMessage

	// Prompt is a single-turn convenience: when Messages is empty it becomes
	// one user message.
	Prompt string

	// SystemPrompt, when set, is prepended as a system message.
	SystemPrompt string

	// MaxTokens bounds the completion length. Zero selects a default;
	// negative values are rejected.
	MaxTokens int64

	// Temperature is the sampling temperature. The zero value is the
	// deterministic setting re-execution relies on.
	Temperature float64

	// Seed pins the provider's sampler. Only meaningful under re-execution;
	// when nil the client assigns one and records it in the attestation.
	Seed *int64

	// StopSequences truncate the completion when emitted by the model
	StopSequences []string
}

// resolve normalizes the request into the provider wire shape. All request
// validation happens here, before any dispatch: a request that resolves is a
// request the strategies can act on.
func (r *InferenceRequest) resolve(defaultModel string) (*providers.CompletionRequest, error) {
	model := r.Model
	if model == "" {
		model = defaultModel
	}
	if model == "" {
		return nil, NewRequestValidationError("request names no model and the client has no default")
	}

	if len(r.Messages) == 0 && r.Prompt == "" {
		return nil, NewRequestValidationError("request carries neither messages nor a prompt")
	}

	messages := make([]providers.ChatMessage, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		messages = append(messages, providers.ChatMessage{Role: providers.RoleSystem, Content: r.SystemPrompt})
	}
	if len(r.Messages) > 0 {
		for i, msg := range r.Messages {
			if msg.Role == "" {
				return nil, NewRequestValidationError(fmt.Sprintf("message %d has no role", i))
			}
			messages = append(messages, msg)
		}
	} else {
		messages = append(messages, providers.ChatMessage{Role: providers.RoleUser, Content: r.Prompt})
	}

	maxTokens := r.MaxTokens
	if maxTokens < 0 {
		return nil, NewRequestValidationError("max tokens must be positive")
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	if r.Temperature < 0 || r.Temperature > 2 {
		return nil, NewRequestValidationError("temperature must be between 0 and 2")
	}

	var seed *int64
	if r.Seed != nil {
		v := *r.Seed
		if v <= 0 {
			return nil, NewRequestValidationError("seed must be a positive integer")
		}
		seed = &v
	}

	var stop []string
	if len(r.StopSequences) > 0 {
		stop = append(stop, r.StopSequences...)
	}

	return &providers.CompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: r.Temperature,
		Seed:        seed,
		Stop:        stop,
	}, nil
}

// CompletionClient is the direct provider boundary used by re-execution, for
// both the original generation and the verification replay.
type CompletionClient interface {
	Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResult, error)
}

// WitnessClient obtains signed claims over witnessed provider exchanges. The
// attestor client satisfies this; tests substitute in-process fakes.
type WitnessClient interface {
	RequestClaim(ctx context.Context, req *shared.ClaimRequestData) (*shared.TranscriptProof, error)
}

// ProofCheckFunc verifies a transcript proof offline. A nil error means the
// proof is sound.
type ProofCheckFunc func(proof *shared.TranscriptProof) error
