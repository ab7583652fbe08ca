package inference

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"verinfer/providers"
)

// reexecStrategy makes results reproducible instead of witnessed: it pins the
// sampler with a seed and temperature 0, records the full request in an
// attestation, and verifies by replaying the request and comparing outputs
// byte for byte. Verification cost is one more provider call, and it only
// holds on models with deterministic seeded sampling.
type reexecStrategy struct {
	completions CompletionClient
}

// assignSeed draws a seed uniformly from [1, 2^31-1]. Zero is excluded so an
// attestation with no seed is distinguishable from one with a drawn seed.
func assignSeed() int64 {
	return rand.Int64N(math.MaxInt32) + 1
}

func (s *reexecStrategy) generate(ctx context.Context, cr *providers.CompletionRequest) (*VerifiableResult, error) {
	if s.completions == nil {
		return nil, NewGenerationError(cr.Model, "no completion client configured", nil)
	}

	if cr.Seed == nil {
		seed := assignSeed()
		cr.Seed = &seed
	}
	// Pin the sampler regardless of what the request asked for. A nonzero
	// temperature would make the replay a coin flip.
	cr.Temperature = 0

	logger.Info("Generating seeded completion",
		zap.String("component", "ReExecutionStrategy"),
		zap.String("operation", "Generate"),
		zap.String("model", cr.Model),
		zap.Int64("seed", *cr.Seed))

	res, err := s.completions.Complete(ctx, cr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewTimeoutError("seeded generation", err)
		}
		return nil, NewGenerationError(cr.Model, "completion call failed", err)
	}

	att := &ReExecutionAttestation{
		Model:       cr.Model,
		Messages:    cr.Messages,
		MaxTokens:   cr.MaxTokens,
		Temperature: cr.Temperature,
		Seed:        *cr.Seed,
		Stop:        cr.Stop,
	}

	return &VerifiableResult{
		Text:        res.Text,
		RawResponse: res.RawResponse,
		Timestamp:   time.Now().UTC(),
		Model:       cr.Model,
		Strategy:    StrategyReExecution,
		Attestation: att,
	}, nil
}

// verify replays the attested request and compares outputs. The replayed text
// is exposed on match and mismatch alike; OutputMatches always equals
// IsValid.
func (s *reexecStrategy) verify(ctx context.Context, result *VerifiableResult) *VerificationOutcome {
	att := result.Attestation
	if att == nil {
		return invalidOutcome("result carries no re-execution attestation")
	}
	if att.Seed == 0 {
		return invalidOutcome("attestation carries no seed, the replay would not be deterministic")
	}
	if s.completions == nil {
		return invalidOutcome("no completion client configured for re-execution")
	}

	seed := att.Seed
	replay := &providers.CompletionRequest{
		Model:       att.Model,
		Messages:    att.Messages,
		MaxTokens:   att.MaxTokens,
		Temperature: att.Temperature,
		Seed:        &seed,
		Stop:        att.Stop,
	}

	res, err := s.completions.Complete(ctx, replay)
	if err != nil {
		logger.Debug("Replay call failed",
			zap.String("component", "ReExecutionStrategy"),
			zap.String("operation", "Verify"),
			zap.Error(err))
		return invalidOutcome("re-execution failed: " + err.Error())
	}

	matches := res.Text == result.Text
	outcome := &VerificationOutcome{
		IsValid:          matches,
		OutputMatches:    &matches,
		ReExecutedOutput: res.Text,
	}
	if !matches {
		outcome.Error = "re-executed output does not match the recorded text"
	}
	return outcome
}
