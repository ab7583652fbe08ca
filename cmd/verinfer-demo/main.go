package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"verinfer/attestor"
	"verinfer/inference"
	"verinfer/proofverifier"
	"verinfer/providers"
	"verinfer/shared"
)

// End-to-end showcase of both verification strategies: a completion is
// generated, verified, serialized, and the serialized artifact is verified
// again on a fresh client holding no state from the generator.
//
// An in-process witness stands in for a hosted attestor network; it signs
// claims the exact same way, so the proofs it issues verify through the same
// offline path.

func main() {
	_ = godotenv.Load()

	if err := shared.InitializeGlobalLogger("verinfer-demo"); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	appLogger := shared.GetLogger()
	defer appLogger.Sync()

	inference.SetLogger(appLogger.Logger)
	providers.SetLogger(appLogger.Logger)
	attestor.SetLogger(appLogger.Logger)
	proofverifier.SetLogger(appLogger.Logger)

	apiKey := shared.GetEnvOrDefault("OPENAI_API_KEY", "")
	model := shared.GetEnvOrDefault("VERINFER_MODEL", "gpt-4o-mini")
	endpoint := shared.GetEnvOrDefault("VERINFER_ENDPOINT", inference.DefaultEndpoint)

	fmt.Println("verinfer demo: verifiable AI inference")
	fmt.Printf("   model:    %s\n", model)
	fmt.Printf("   endpoint: %s\n", endpoint)
	fmt.Println()

	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY is not set; both strategies need provider access to generate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := runReExecutionDemo(ctx, apiKey, model); err != nil {
		log.Fatalf("re-execution demo failed: %v", err)
	}
	fmt.Println()
	if err := runTranscriptDemo(ctx, apiKey, model, endpoint); err != nil {
		log.Fatalf("transcript-proof demo failed: %v", err)
	}

	fmt.Println()
	fmt.Println("demo completed")
}

func runReExecutionDemo(ctx context.Context, apiKey, model string) error {
	fmt.Println("== re-execution strategy ==")

	client, err := inference.NewClient(inference.Config{
		Strategy:    inference.StrategyReExecution,
		Model:       model,
		Completions: providers.NewOpenAIClient(providers.OpenAIConfig{APIKey: apiKey}),
	})
	if err != nil {
		return err
	}

	seed := int64(1)
	fmt.Println("step 1: generate a seeded deterministic completion")
	result, err := client.Generate(ctx, &inference.InferenceRequest{
		Prompt:      "Reply with exactly the word OK and nothing else.",
		Seed:        &seed,
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return err
	}
	fmt.Printf("   text: %q (seed %d)\n", result.Text, result.Attestation.Seed)

	fmt.Println("step 2: verify by replaying the attested request")
	outcome, err := client.Verify(ctx, result)
	if err != nil {
		return err
	}
	fmt.Printf("   isValid=%v outputMatches=%v\n", outcome.IsValid, *outcome.OutputMatches)
	if !outcome.IsValid {
		fmt.Printf("   recorded: %q\n   replayed: %q\n", result.Text, outcome.ReExecutedOutput)
		fmt.Println("   (mismatch at temperature 0 usually means provider drift, not tampering)")
	}

	fmt.Println("step 3: serialize and verify the portable artifact on a fresh client")
	sp, err := client.SerializeResult(result)
	if err != nil {
		return err
	}
	blob, err := inference.EncodeSerializedProof(sp)
	if err != nil {
		return err
	}
	fmt.Printf("   artifact: %d bytes of JSON\n", len(blob))

	decoded, err := inference.DecodeSerializedProof(blob)
	if err != nil {
		return err
	}
	fresh, err := inference.VerifySerializedProof(ctx, decoded, inference.Config{
		Completions: providers.NewOpenAIClient(providers.OpenAIConfig{APIKey: apiKey}),
	})
	if err != nil {
		return err
	}
	fmt.Printf("   isValid=%v (replayed from the artifact alone)\n", fresh.IsValid)
	return nil
}

func runTranscriptDemo(ctx context.Context, apiKey, model, endpoint string) error {
	fmt.Println("== transcript-proof strategy ==")

	fmt.Println("step 1: start an in-process witness")
	keyPair, err := shared.GenerateSigningKeyPair()
	if err != nil {
		return err
	}
	witness, err := attestor.NewWitness(attestor.WitnessConfig{
		KeyPair:   keyPair,
		PublicURL: "ws://localhost/ws",
	})
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	server := &http.Server{Handler: witness.Handler()}
	go server.Serve(listener)
	defer server.Close()
	witnessURL := fmt.Sprintf("ws://%s/ws", listener.Addr())
	fmt.Printf("   witness %s at %s\n", witness.Address(), witnessURL)

	witnessClient := attestor.NewClient(attestor.ClientConfig{URL: witnessURL})
	defer witnessClient.Close()

	client, err := inference.NewClient(inference.Config{
		Strategy: inference.StrategyTranscriptProof,
		Model:    model,
		Endpoint: endpoint,
		APIKey:   apiKey,
		Witness:  witnessClient,
	})
	if err != nil {
		return err
	}

	fmt.Println("step 2: generate through the witnessed exchange")
	result, err := client.Generate(ctx, &inference.InferenceRequest{
		Prompt:      "Reply with exactly the word OK and nothing else.",
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return err
	}
	fmt.Printf("   text: %q\n", result.Text)
	fmt.Printf("   claim: %s signed by %d witness(es)\n", result.Proof.Identifier, len(result.Proof.Witnesses))

	fmt.Println("step 3: verify the proof offline")
	outcome, err := client.Verify(ctx, result)
	if err != nil {
		return err
	}
	fmt.Printf("   isValid=%v endpoint=%s\n", outcome.IsValid, outcome.VerifiedEndpoint)

	fmt.Println("step 4: serialize, discard the result, verify from bytes alone")
	sp, err := client.SerializeResult(result)
	if err != nil {
		return err
	}
	blob, err := inference.EncodeSerializedProof(sp)
	if err != nil {
		return err
	}
	fmt.Printf("   artifact: %d bytes of JSON\n", len(blob))

	decoded, err := inference.DecodeSerializedProof(blob)
	if err != nil {
		return err
	}
	// A fresh verifier with no credentials and no witness connection: the
	// proof carries everything it needs.
	fresh, err := inference.VerifySerializedProof(ctx, decoded, inference.Config{Endpoint: endpoint})
	if err != nil {
		return err
	}
	fmt.Printf("   isValid=%v (no credentials, no shared state)\n", fresh.IsValid)
	return nil
}
