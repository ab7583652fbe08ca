package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"verinfer/providers"
	"verinfer/shared"
)

// strategyImpl is the seam between the client facade and the two evidence
// strategies. generate turns a resolved provider request into an evidenced
// result; verify judges a result and always answers with an outcome, never an
// error.
type strategyImpl interface {
	generate(ctx context.Context, cr *providers.CompletionRequest) (*VerifiableResult, error)
	verify(ctx context.Context, result *VerifiableResult) *VerificationOutcome
}

// transcriptStrategy routes generation through a witness so the provider
// exchange is attested, and verifies the resulting proofs offline. The
// provider API key travels in the secret parameters: it reaches the endpoint
// but is redacted before the transcript is signed, so it never appears in a
// proof.
type transcriptStrategy struct {
	witness    WitnessClient
	checkProof ProofCheckFunc
	rule       *providers.ExtractionRule
	endpoint   string
	apiKey     string
	owner      string
}

func (s *transcriptStrategy) generate(ctx context.Context, cr *providers.CompletionRequest) (*VerifiableResult, error) {
	if s.witness == nil {
		return nil, NewProofGenerationError("no witness client configured", nil)
	}

	body, err := providers.EncodeCompletionRequest(cr)
	if err != nil {
		return nil, NewProofGenerationError("failed to encode witnessed request", err)
	}

	// The same pattern drives the reveal and the assertion, so the redacted
	// transcript contains exactly the span the match needs and the witness
	// extracts the response as a claim parameter.
	params := providers.WitnessParams{
		URL:    s.endpoint,
		Method: "POST",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(body),
		ResponseMatches: []providers.ResponseMatch{
			{Type: "regex", Value: s.rule.Pattern()},
		},
		ResponseRedactions: []providers.ResponseRedaction{
			{Regex: s.rule.Pattern()},
		},
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, NewProofGenerationError("failed to encode witness parameters", err)
	}

	claimReq := &shared.ClaimRequestData{
		Provider:   "http",
		Parameters: paramsJSON,
		Owner:      s.owner,
	}
	if s.apiKey != "" {
		secretJSON, err := json.Marshal(providers.WitnessSecretParams{
			AuthorisationHeader: "Bearer " + s.apiKey,
		})
		if err != nil {
			return nil, NewProofGenerationError("failed to encode secret parameters", err)
		}
		claimReq.SecretParams = secretJSON
	}

	logger.Info("Requesting witnessed completion",
		zap.String("component", "TranscriptStrategy"),
		zap.String("operation", "Generate"),
		zap.String("model", cr.Model),
		zap.String("endpoint", s.endpoint))

	proof, err := s.witness.RequestClaim(ctx, claimReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewTimeoutError("witnessed generation", err)
		}
		return nil, NewProofGenerationError("witness failed to issue a claim", err)
	}
	if proof == nil {
		return nil, NewProofGenerationError("witness returned no proof", nil)
	}

	captured, ok := proof.ExtractedParameters[s.rule.GroupName()]
	if !ok {
		return nil, NewProofGenerationError("proof carries no extracted response", nil)
	}
	text, err := providers.DecodeExtractedString(captured)
	if err != nil {
		return nil, err
	}

	return &VerifiableResult{
		Text:      text,
		Timestamp: time.Now().UTC(),
		Model:     cr.Model,
		Strategy:  StrategyTranscriptProof,
		Proof:     proof,
	}, nil
}

// verify checks the proof offline and then ties it back to the result: the
// signed extraction must vouch for the result text, and the witnessed
// endpoint must be the one this client is bound to.
func (s *transcriptStrategy) verify(_ context.Context, result *VerifiableResult) *VerificationOutcome {
	if result.Proof == nil {
		return invalidOutcome("result carries no transcript proof")
	}

	if err := s.checkProof(result.Proof); err != nil {
		logger.Debug("Proof failed verification",
			zap.String("component", "TranscriptStrategy"),
			zap.String("operation", "Verify"),
			zap.Error(err))
		return invalidOutcome("proof verification failed: " + err.Error())
	}

	captured, ok := result.Proof.ExtractedParameters[s.rule.GroupName()]
	if !ok {
		return invalidOutcome("proof carries no extracted response")
	}
	attested, err := providers.DecodeExtractedString(captured)
	if err != nil {
		return invalidOutcome("extracted response is malformed: " + err.Error())
	}
	if attested != result.Text {
		return invalidOutcome("proof does not vouch for the result text")
	}

	var params providers.WitnessParams
	if err := json.Unmarshal([]byte(result.Proof.Parameters), &params); err != nil {
		return invalidOutcome("proof parameters are not valid JSON: " + err.Error())
	}
	if s.endpoint != "" && params.URL != s.endpoint {
		return invalidOutcome(fmt.Sprintf("proof attests endpoint %s, client is bound to %s", params.URL, s.endpoint))
	}

	return &VerificationOutcome{
		IsValid:          true,
		VerifiedEndpoint: params.URL,
	}
}
