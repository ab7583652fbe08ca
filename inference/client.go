// Package inference generates AI completions that carry their own evidence.
// A client is bound to one of two strategies at construction: transcript
// proofs, where an external witness observes the TLS exchange with the
// provider and signs a claim over it, or re-execution, where a seeded
// deterministic request is recorded so anyone can replay it and compare
// outputs. Both strategies produce the same result and artifact shapes, so
// callers store and verify them uniformly.
package inference

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"verinfer/proofverifier"
	"verinfer/providers"
	"verinfer/shared"
)

// DefaultEndpoint is the chat completions URL witnessed and bound when the
// config names none
const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Config wires a client. Everything is explicit; the package reads no
// environment and keeps no global state, so two clients never interfere.
type Config struct {
	// Strategy selects the evidence kind, fixed for the client's lifetime
	Strategy Strategy

	// Model is the default model for requests that name none
	Model string

	// Endpoint is the provider chat completions URL. Under transcript-proof
	// it is the witnessed target and the endpoint verification binds to.
	// Defaults to DefaultEndpoint.
	Endpoint string

	// APIKey authenticates against the provider. Under transcript-proof it
	// travels as a hidden header: forwarded to the endpoint, redacted before
	// the transcript is signed.
	APIKey string

	// Witness obtains signed claims. Required to generate under
	// transcript-proof; verification is offline and works without it.
	Witness WitnessClient

	// Completions is the direct provider client, required under
	// re-execution for the original call and the replay both.
	Completions CompletionClient

	// CheckProof verifies transcript proofs offline. Defaults to
	// proofverifier.VerifyWitnessedProof.
	CheckProof ProofCheckFunc

	// ExtractionRule carves the response text out of the witnessed body.
	// Defaults to the chat completion content rule.
	ExtractionRule *providers.ExtractionRule

	// OwnerAddress labels issued claims with their requester. When empty an
	// ephemeral key is generated and its address used.
	OwnerAddress string
}

// Client is the inference facade: generate a result, verify a result, move
// results through their portable form. A client only handles artifacts of its
// own strategy and rejects the other kind instead of guessing.
type Client struct {
	strategy Strategy
	model    string
	impl     strategyImpl
}

// NewClient builds a client for the configured strategy
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Strategy.Valid() {
		return nil, NewRequestValidationError("unknown strategy " + strconv.Quote(string(cfg.Strategy)))
	}

	var impl strategyImpl
	switch cfg.Strategy {
	case StrategyTranscriptProof:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = DefaultEndpoint
		}
		checkProof := cfg.CheckProof
		if checkProof == nil {
			checkProof = proofverifier.VerifyWitnessedProof
		}
		rule := cfg.ExtractionRule
		if rule == nil {
			rule = providers.DefaultCompletionRule
		}
		owner := cfg.OwnerAddress
		if owner == "" {
			kp, err := shared.GenerateSigningKeyPair()
			if err != nil {
				return nil, NewRequestValidationError("failed to generate an owner key: " + err.Error())
			}
			owner = strings.ToLower(kp.GetEthAddress().Hex())
		}
		impl = &transcriptStrategy{
			witness:    cfg.Witness,
			checkProof: checkProof,
			rule:       rule,
			endpoint:   endpoint,
			apiKey:     cfg.APIKey,
			owner:      owner,
		}

	case StrategyReExecution:
		impl = &reexecStrategy{completions: cfg.Completions}
	}

	logger.Debug("Built inference client",
		zap.String("component", "Client"),
		zap.String("strategy", string(cfg.Strategy)),
		zap.String("model", cfg.Model))

	return &Client{
		strategy: cfg.Strategy,
		model:    cfg.Model,
		impl:     impl,
	}, nil
}

// Strategy returns the client's strategy tag
func (c *Client) Strategy() Strategy {
	return c.strategy
}

// Generate runs one completion and returns it with the evidence the client's
// strategy produces. Failures here are errors; only verification reports
// through outcome data.
func (c *Client) Generate(ctx context.Context, req *InferenceRequest) (*VerifiableResult, error) {
	if req == nil {
		return nil, NewRequestValidationError("request is nil")
	}
	cr, err := req.resolve(c.model)
	if err != nil {
		return nil, err
	}
	return c.impl.generate(ctx, cr)
}

// Verify judges a result produced by this client's strategy. The outcome is
// fresh per call: verification failures, including tampered evidence and
// collaborator faults, are reported as data with IsValid false. Only
// artifacts of the wrong strategy are refused outright.
func (c *Client) Verify(ctx context.Context, result *VerifiableResult) (*VerificationOutcome, error) {
	if result == nil {
		return nil, NewRequestValidationError("result is nil")
	}
	if result.Strategy != c.strategy {
		return nil, NewStrategyMismatchError(c.strategy, result.Strategy)
	}
	return c.impl.verify(ctx, result), nil
}

// SerializeResult converts a result of this client's strategy into its
// portable form
func (c *Client) SerializeResult(result *VerifiableResult) (*SerializedProof, error) {
	if result == nil {
		return nil, NewSerializationError("cannot serialize a nil result", nil)
	}
	if result.Strategy != c.strategy {
		return nil, NewStrategyMismatchError(c.strategy, result.Strategy)
	}
	return Serialize(result)
}

// VerifySerialized deserializes a portable artifact and verifies it. The
// artifact must carry this client's strategy tag and its payload must have
// the shape that tag promises.
func (c *Client) VerifySerialized(ctx context.Context, sp *SerializedProof) (*VerificationOutcome, error) {
	if sp == nil {
		return nil, NewSerializationError("cannot verify a nil artifact", nil)
	}
	if sp.Provider != c.strategy {
		return nil, NewStrategyMismatchError(c.strategy, sp.Provider)
	}
	result, err := Deserialize(sp)
	if err != nil {
		return nil, err
	}
	return c.impl.verify(ctx, result), nil
}

// VerifySerializedProof verifies a portable artifact with no pre-existing
// client: a throwaway client is built from the artifact's own provider tag
// and the given config. This is the path for verifying an artifact produced
// elsewhere; transcript proofs verify fully offline this way, while
// re-execution artifacts still need cfg.Completions for the replay.
func VerifySerializedProof(ctx context.Context, sp *SerializedProof, cfg Config) (*VerificationOutcome, error) {
	if sp == nil {
		return nil, NewSerializationError("cannot verify a nil artifact", nil)
	}
	if !sp.Provider.Valid() {
		return nil, NewProviderMismatchError(sp.Provider, "unknown provider tag")
	}
	cfg.Strategy = sp.Provider
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client.VerifySerialized(ctx, sp)
}
