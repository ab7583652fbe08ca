package inference

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"verinfer/providers"
	"verinfer/shared"
)

// ReExecutionAttestation is the replay recipe attached to a re-execution
// result: everything needed to re-issue the identical provider call. The
// field layout matches the provider wire shape on purpose, a verifier replays
// exactly these values.
type ReExecutionAttestation struct {
	Model       string                  `json:"model"`
	Messages    []providers.ChatMessage `json:"messages"`
	MaxTokens   int64                   `json:"max_tokens"`
	Temperature float64                 `json:"temperature"`
	Seed        int64                   `json:"seed"`
	Stop        []string                `json:"stop,omitempty"`
}

// VerifiableResult pairs a completion with the evidence backing it. Exactly
// one of Proof and Attestation is set, matching the Strategy tag; a result
// that violates this never serializes.
type VerifiableResult struct {
	// Text is the completion text the evidence vouches for
	Text string `json:"text"`

	// RawResponse is the provider-native response JSON when the strategy has
	// access to it. Witnessed exchanges redact the body, so transcript-proof
	// results leave it empty; the proof's extracted slice is the attested
	// content.
	RawResponse string `json:"rawResponse,omitempty"`

	// Timestamp records when the completion was generated
	Timestamp time.Time `json:"timestamp"`

	// Model is the model the completion was requested from
	Model string `json:"model"`

	// Strategy tags which kind of evidence this result carries
	Strategy Strategy `json:"provider"`

	// Proof is the witness-signed claim, set under StrategyTranscriptProof
	Proof *shared.TranscriptProof `json:"proof,omitempty"`

	// Attestation is the replay recipe, set under StrategyReExecution
	Attestation *ReExecutionAttestation `json:"attestation,omitempty"`
}

// validate checks the tag and evidence agree. Both serialization and
// verification refuse results that fail this.
func (r *VerifiableResult) validate() error {
	switch r.Strategy {
	case StrategyTranscriptProof:
		if r.Proof == nil {
			return NewSerializationError("transcript-proof result carries no proof", nil)
		}
		if r.Attestation != nil {
			return NewSerializationError("transcript-proof result also carries an attestation", nil)
		}
	case StrategyReExecution:
		if r.Attestation == nil {
			return NewSerializationError("re-execution result carries no attestation", nil)
		}
		if r.Proof != nil {
			return NewSerializationError("re-execution result also carries a proof", nil)
		}
	default:
		return NewSerializationError("result carries an unknown strategy tag", nil)
	}
	return nil
}

// SerializedProof is the portable form of a VerifiableResult and the only
// externally durable one. It is plain JSON: safe to store, transmit and
// verify later on a client that shares no state with the generator.
type SerializedProof struct {
	// PayloadJSON is the strategy evidence, encoded. Its shape is dictated
	// by the Provider tag.
	PayloadJSON string `json:"payloadJson"`

	// Text is the completion text the payload vouches for
	Text string `json:"text"`

	// Timestamp records when the completion was generated
	Timestamp time.Time `json:"timestamp"`

	// Model is the model the completion was requested from
	Model string `json:"model"`

	// Provider tags which strategy produced the payload and therefore how it
	// must be interpreted.
	Provider Strategy `json:"provider"`
}

// Serialize converts a result into its portable form. The result must be
// internally consistent; the evidence is embedded as JSON under the result's
// own strategy tag.
func Serialize(result *VerifiableResult) (*SerializedProof, error) {
	if result == nil {
		return nil, NewSerializationError("cannot serialize a nil result", nil)
	}
	if err := result.validate(); err != nil {
		return nil, err
	}

	var payload []byte
	var err error
	switch result.Strategy {
	case StrategyTranscriptProof:
		payload, err = json.Marshal(result.Proof)
	case StrategyReExecution:
		payload, err = json.Marshal(result.Attestation)
	}
	if err != nil {
		return nil, NewSerializationError("failed to encode evidence payload", err)
	}

	return &SerializedProof{
		PayloadJSON: string(payload),
		Text:        result.Text,
		Timestamp:   result.Timestamp,
		Model:       result.Model,
		Provider:    result.Strategy,
	}, nil
}

// Deserialize reconstructs a result from its portable form, dispatching on
// the artifact's own provider tag. The payload must actually have the shape
// the tag promises: a payload that decodes but lacks the tagged strategy's
// required fields is a provider mismatch, never a silent misparse.
func Deserialize(sp *SerializedProof) (*VerifiableResult, error) {
	if sp == nil {
		return nil, NewSerializationError("cannot deserialize a nil artifact", nil)
	}

	result := &VerifiableResult{
		Text:      sp.Text,
		Timestamp: sp.Timestamp,
		Model:     sp.Model,
		Strategy:  sp.Provider,
	}

	switch sp.Provider {
	case StrategyTranscriptProof:
		var proof shared.TranscriptProof
		if err := json.Unmarshal([]byte(sp.PayloadJSON), &proof); err != nil {
			return nil, NewSerializationError("transcript payload is not valid JSON", err)
		}
		if proof.Identifier == "" || len(proof.Signatures) == 0 {
			logger.Debug("Payload does not match its provider tag", zap.String("component", "Result"), zap.String("operation", "Deserialize"), zap.String("tag", string(sp.Provider)))
			return nil, NewProviderMismatchError(sp.Provider, "payload does not have the shape of a transcript proof")
		}
		result.Proof = &proof

	case StrategyReExecution:
		var att ReExecutionAttestation
		if err := json.Unmarshal([]byte(sp.PayloadJSON), &att); err != nil {
			return nil, NewSerializationError("attestation payload is not valid JSON", err)
		}
		if att.Model == "" || att.Seed == 0 || len(att.Messages) == 0 {
			logger.Debug("Payload does not match its provider tag", zap.String("component", "Result"), zap.String("operation", "Deserialize"), zap.String("tag", string(sp.Provider)))
			return nil, NewProviderMismatchError(sp.Provider, "payload does not have the shape of a re-execution attestation")
		}
		result.Attestation = &att

	default:
		return nil, NewProviderMismatchError(sp.Provider, "unknown provider tag")
	}

	return result, nil
}

// EncodeSerializedProof renders the portable artifact as JSON bytes
func EncodeSerializedProof(sp *SerializedProof) ([]byte, error) {
	if sp == nil {
		return nil, NewSerializationError("cannot encode a nil artifact", nil)
	}
	data, err := json.Marshal(sp)
	if err != nil {
		return nil, NewSerializationError("failed to encode artifact", err)
	}
	return data, nil
}

// DecodeSerializedProof parses JSON bytes back into the portable artifact
func DecodeSerializedProof(data []byte) (*SerializedProof, error) {
	var sp SerializedProof
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, NewSerializationError("artifact is not valid JSON", err)
	}
	if sp.Provider == "" {
		return nil, NewSerializationError("artifact carries no provider tag", nil)
	}
	return &sp, nil
}
