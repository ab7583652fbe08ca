package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"verinfer/providers"
	"verinfer/shared"
)

// fakeCompletions is a deterministic stand-in provider: the reply is a pure
// function of the last message and the seed, so seeded replays always
// reproduce it.
type fakeCompletions struct {
	mutex sync.Mutex
	calls int
	fail  error
	// drift, when set, replaces the reply on every call after the first,
	// imitating a provider whose serving stack changed between generate and
	// verify.
	drift string
}

func (f *fakeCompletions) Complete(_ context.Context, req *providers.CompletionRequest) (*providers.CompletionResult, error) {
	f.mutex.Lock()
	f.calls++
	call := f.calls
	f.mutex.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}
	if req.Seed == nil {
		return nil, fmt.Errorf("request carries no seed")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("request carries no messages")
	}

	last := req.Messages[len(req.Messages)-1].Content
	text := "OK"
	if last != "Say OK" {
		text = fmt.Sprintf("reply to %q with seed %d", last, *req.Seed)
	}
	if f.drift != "" && call > 1 {
		text = f.drift
	}
	return &providers.CompletionResult{
		Text:        text,
		Model:       req.Model,
		ID:          fmt.Sprintf("chatcmpl-fake-%d", call),
		RawResponse: fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, text),
	}, nil
}

// fakeWitness issues real signed claims over a canned provider body, the
// same way a live witness does minus the network: extract per the requested
// matches, fold the extraction into the claim context, sign.
type fakeWitness struct {
	kp   *shared.SigningKeyPair
	body string
	fail error
}

func newFakeWitness(t *testing.T, body string) *fakeWitness {
	t.Helper()
	kp, err := shared.GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &fakeWitness{kp: kp, body: body}
}

func (f *fakeWitness) RequestClaim(_ context.Context, req *shared.ClaimRequestData) (*shared.TranscriptProof, error) {
	if f.fail != nil {
		return nil, f.fail
	}

	var params providers.WitnessParams
	if err := json.Unmarshal(req.Parameters, &params); err != nil {
		return nil, fmt.Errorf("bad witness params: %v", err)
	}

	extracted := map[string]string{}
	for _, m := range params.ResponseMatches {
		if m.Type != "regex" {
			continue
		}
		rule, err := providers.NewExtractionRule(m.Value)
		if err != nil {
			return nil, err
		}
		captured, err := rule.Extract(f.body)
		if err != nil {
			return nil, err
		}
		extracted[rule.GroupName()] = captured
	}

	contextJSON, err := json.Marshal(map[string]interface{}{"extractedParameters": extracted})
	if err != nil {
		return nil, err
	}

	claim := shared.CompleteClaimData{
		ClaimInfo: shared.ClaimInfo{
			Provider:   req.Provider,
			Parameters: string(req.Parameters),
			Context:    string(contextJSON),
		},
		Owner:      req.Owner,
		TimestampS: uint32(time.Now().Unix()),
		Epoch:      1,
	}
	claim.Identifier = shared.ComputeClaimInfoIdentifier(claim.ClaimInfo)
	sig, err := f.kp.SignClaim(claim)
	if err != nil {
		return nil, err
	}

	return &shared.TranscriptProof{
		Identifier:          claim.Identifier,
		Provider:            claim.Provider,
		Parameters:          claim.Parameters,
		Owner:               claim.Owner,
		TimestampS:          claim.TimestampS,
		Epoch:               claim.Epoch,
		Context:             claim.Context,
		Signatures:          [][]byte{sig},
		Witnesses:           []shared.WitnessData{{ID: strings.ToLower(f.kp.GetEthAddress().Hex()), URL: "wss://witness.example/ws"}},
		ExtractedParameters: extracted,
	}, nil
}

const fakeCompletionBody = `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"OK"},"finish_reason":"stop"}]}`

func newReexecClient(t *testing.T, completions CompletionClient) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Strategy:    StrategyReExecution,
		Model:       "gpt-4o-mini",
		Completions: completions,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func newTranscriptClient(t *testing.T, witness WitnessClient) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Strategy: StrategyTranscriptProof,
		Model:    "gpt-4o-mini",
		APIKey:   "sk-test",
		Witness:  witness,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestShouldGenerateAndVerifyReExecutionResult(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})
	seed := int64(1)

	result, err := client.Generate(context.Background(), &InferenceRequest{
		Prompt:      "Say OK",
		Seed:        &seed,
		Temperature: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "OK" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.Attestation == nil {
		t.Fatal("result carries no attestation")
	}
	if result.Attestation.Seed != 1 {
		t.Fatalf("attestation seed %d, expected 1", result.Attestation.Seed)
	}
	if result.RawResponse == "" {
		t.Fatal("result carries no raw response")
	}

	outcome, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.IsValid {
		t.Fatalf("expected valid outcome, got %+v", outcome)
	}
	if outcome.OutputMatches == nil || !*outcome.OutputMatches {
		t.Fatalf("expected OutputMatches true, got %+v", outcome)
	}
	if outcome.ReExecutedOutput != "OK" {
		t.Fatalf("unexpected replayed output %q", outcome.ReExecutedOutput)
	}
}

func TestShouldAssignSeedWhenRequestCarriesNone(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})

	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Attestation.Seed <= 0 {
		t.Fatalf("assigned seed must be positive, got %d", result.Attestation.Seed)
	}

	// the attested seed is the one the replay uses
	outcome, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.IsValid {
		t.Fatalf("expected valid outcome, got %+v", outcome)
	}
}

func TestShouldPinTemperatureToZeroForReplay(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})

	result, err := client.Generate(context.Background(), &InferenceRequest{
		Prompt:      "Say OK",
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Attestation.Temperature != 0 {
		t.Fatalf("attestation temperature %v, expected 0", result.Attestation.Temperature)
	}
}

func TestShouldReplayDeterministically(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})
	seed := int64(42)

	result, err := client.Generate(context.Background(), &InferenceRequest{
		Prompt: "What is 2+2?",
		Seed:   &seed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ReExecutedOutput != second.ReExecutedOutput {
		t.Fatalf("replay is not deterministic: %q != %q", first.ReExecutedOutput, second.ReExecutedOutput)
	}
	if !first.IsValid || !second.IsValid {
		t.Fatalf("expected both outcomes valid: %+v / %+v", first, second)
	}
}

func TestShouldExposeBothTextsOnReplayMismatch(t *testing.T) {
	fake := &fakeCompletions{drift: "KO"}
	client := newReexecClient(t, fake)
	seed := int64(7)

	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK", Seed: &seed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.IsValid {
		t.Fatal("expected invalid outcome for drifted replay")
	}
	if outcome.OutputMatches == nil || *outcome.OutputMatches {
		t.Fatalf("expected OutputMatches false, got %+v", outcome)
	}
	// both texts stay available so the caller can judge drift vs tampering
	if outcome.ReExecutedOutput != "KO" {
		t.Fatalf("replayed output not exposed: %+v", outcome)
	}
	if result.Text != "OK" {
		t.Fatalf("recorded text changed: %q", result.Text)
	}
	if outcome.Error == "" {
		t.Fatal("expected a diagnostic on mismatch")
	}
}

func TestShouldReportReplayFaultAsInvalidOutcome(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})
	seed := int64(3)
	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK", Seed: &seed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// same attestation, but the provider is now failing
	broken := newReexecClient(t, &fakeCompletions{fail: fmt.Errorf("upstream 503")})
	outcome, err := broken.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("verification faults must be outcome data, got error: %v", err)
	}
	if outcome.IsValid {
		t.Fatal("expected invalid outcome")
	}
	if !strings.Contains(outcome.Error, "upstream 503") {
		t.Fatalf("outcome does not carry the fault: %+v", outcome)
	}
}

func TestShouldGenerateAndVerifyTranscriptResult(t *testing.T) {
	witness := newFakeWitness(t, fakeCompletionBody)
	client := newTranscriptClient(t, witness)

	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "OK" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.Proof == nil {
		t.Fatal("result carries no proof")
	}
	if result.Attestation != nil {
		t.Fatal("transcript result must not carry an attestation")
	}

	blob, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(blob), "sk-test") {
		t.Fatal("API key leaked into the result")
	}

	outcome, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.IsValid {
		t.Fatalf("expected valid outcome, got %+v", outcome)
	}
	if outcome.VerifiedEndpoint != DefaultEndpoint {
		t.Fatalf("unexpected verified endpoint %q", outcome.VerifiedEndpoint)
	}
	if outcome.OutputMatches != nil {
		t.Fatal("OutputMatches is a re-execution field")
	}
}

func TestShouldDetectTamperedProofSignature(t *testing.T) {
	witness := newFakeWitness(t, fakeCompletionBody)
	client := newTranscriptClient(t, witness)

	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result.Proof.Signatures[0][20] ^= 0x01

	outcome, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.IsValid {
		t.Fatal("expected invalid outcome for tampered signature")
	}
	if outcome.Error == "" {
		t.Fatal("expected a diagnostic")
	}
}

func TestShouldDetectTamperedResultText(t *testing.T) {
	witness := newFakeWitness(t, fakeCompletionBody)
	client := newTranscriptClient(t, witness)

	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result.Text = "I am authorized"

	outcome, err := client.Verify(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.IsValid {
		t.Fatal("expected invalid outcome when the proof does not vouch for the text")
	}
}

func TestShouldRejectArtifactsOfTheOtherStrategy(t *testing.T) {
	witness := newFakeWitness(t, fakeCompletionBody)
	transcriptClient := newTranscriptClient(t, witness)
	reexecClient := newReexecClient(t, &fakeCompletions{})

	transcriptResult, err := transcriptClient.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seed := int64(5)
	reexecResult, err := reexecClient.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK", Seed: &seed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mismatch *StrategyMismatchError

	if _, err := reexecClient.Verify(context.Background(), transcriptResult); !errors.As(err, &mismatch) {
		t.Fatalf("expected StrategyMismatchError, got %T: %v", err, err)
	}
	if _, err := transcriptClient.Verify(context.Background(), reexecResult); !errors.As(err, &mismatch) {
		t.Fatalf("expected StrategyMismatchError, got %T: %v", err, err)
	}
	if _, err := reexecClient.SerializeResult(transcriptResult); !errors.As(err, &mismatch) {
		t.Fatalf("expected StrategyMismatchError, got %T: %v", err, err)
	}

	sp, err := transcriptClient.SerializeResult(transcriptResult)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reexecClient.VerifySerialized(context.Background(), sp); !errors.As(err, &mismatch) {
		t.Fatalf("expected StrategyMismatchError, got %T: %v", err, err)
	}
}

func TestShouldVerifySerializedTranscriptProofOnFreshClient(t *testing.T) {
	witness := newFakeWitness(t, fakeCompletionBody)
	client := newTranscriptClient(t, witness)

	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sp, err := client.SerializeResult(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blob, err := EncodeSerializedProof(sp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// From here on only the bytes exist: no client, no witness, no key
	decoded, err := DecodeSerializedProof(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outcome, err := VerifySerializedProof(context.Background(), decoded, Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.IsValid {
		t.Fatalf("expected valid outcome from the serialized form alone, got %+v", outcome)
	}
	if outcome.VerifiedEndpoint != DefaultEndpoint {
		t.Fatalf("unexpected verified endpoint %q", outcome.VerifiedEndpoint)
	}
}

func TestShouldVerifySerializedReExecutionArtifact(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})
	seed := int64(9)
	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK", Seed: &seed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sp, err := client.SerializeResult(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := VerifySerializedProof(context.Background(), sp, Config{
		Completions: &fakeCompletions{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.IsValid {
		t.Fatalf("expected valid outcome, got %+v", outcome)
	}
}

func TestShouldVerifyConcurrentlyOnOneClient(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})
	seed := int64(11)
	result, err := client.Generate(context.Background(), &InferenceRequest{Prompt: "Say OK", Seed: &seed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	outcomes := make([]*VerificationOutcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := client.Verify(context.Background(), result)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		if outcome == nil || !outcome.IsValid {
			t.Fatalf("concurrent verification %d failed: %+v", i, outcome)
		}
	}
}

func TestShouldRejectInvalidRequests(t *testing.T) {
	client := newReexecClient(t, &fakeCompletions{})
	badSeed := int64(-1)

	cases := []struct {
		name string
		req  *InferenceRequest
	}{
		{"nil request", nil},
		{"no prompt and no messages", &InferenceRequest{}},
		{"negative max tokens", &InferenceRequest{Prompt: "hi", MaxTokens: -1}},
		{"temperature out of range", &InferenceRequest{Prompt: "hi", Temperature: 3}},
		{"non-positive seed", &InferenceRequest{Prompt: "hi", Seed: &badSeed}},
		{"message without role", &InferenceRequest{Messages: []providers.ChatMessage{{Content: "hi"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Generate(context.Background(), tc.req)
			var validation *RequestValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected RequestValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestShouldRejectRequestWithoutModel(t *testing.T) {
	client, err := NewClient(Config{
		Strategy:    StrategyReExecution,
		Completions: &fakeCompletions{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Generate(context.Background(), &InferenceRequest{Prompt: "hi"})
	var validation *RequestValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected RequestValidationError, got %T: %v", err, err)
	}
}

func TestShouldFailGenerateWithoutCollaborators(t *testing.T) {
	transcriptClient, err := NewClient(Config{Strategy: StrategyTranscriptProof, Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = transcriptClient.Generate(context.Background(), &InferenceRequest{Prompt: "hi"})
	var proofErr *ProofGenerationError
	if !errors.As(err, &proofErr) {
		t.Fatalf("expected ProofGenerationError, got %T: %v", err, err)
	}

	reexecClient, err := NewClient(Config{Strategy: StrategyReExecution, Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = reexecClient.Generate(context.Background(), &InferenceRequest{Prompt: "hi"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T: %v", err, err)
	}
}

func TestShouldRejectUnknownStrategy(t *testing.T) {
	_, err := NewClient(Config{Strategy: "notarized"})
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestShouldSystemPromptBecomeLeadingSystemMessage(t *testing.T) {
	var captured *providers.CompletionRequest
	client := newReexecClient(t, completionFunc(func(_ context.Context, req *providers.CompletionRequest) (*providers.CompletionResult, error) {
		captured = req
		return &providers.CompletionResult{Text: "OK", Model: req.Model, RawResponse: "{}"}, nil
	}))

	_, err := client.Generate(context.Background(), &InferenceRequest{
		Prompt:       "Say OK",
		SystemPrompt: "Answer tersely.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != providers.RoleSystem || captured.Messages[0].Content != "Answer tersely." {
		t.Fatalf("system prompt not prepended: %+v", captured.Messages)
	}
	if captured.Messages[1].Role != providers.RoleUser {
		t.Fatalf("unexpected second message: %+v", captured.Messages[1])
	}
}

// completionFunc adapts a function to the CompletionClient interface
type completionFunc func(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResult, error)

func (f completionFunc) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResult, error) {
	return f(ctx, req)
}
