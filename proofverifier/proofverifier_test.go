package proofverifier

import (
	"strings"
	"testing"
	"time"

	"verinfer/shared"
)

// issueTestProof builds a claim the way a witness does and signs it with a
// fresh key, returning the proof and the key pair behind it.
func issueTestProof(t *testing.T) (*shared.TranscriptProof, *shared.SigningKeyPair) {
	t.Helper()
	kp, err := shared.GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claim := shared.CompleteClaimData{
		ClaimInfo: shared.ClaimInfo{
			Provider:   "http",
			Parameters: `{"url":"https://api.openai.com/v1/chat/completions","method":"POST"}`,
			Context:    `{"extractedParameters":{"response":"Paris"},"purpose":"inference"}`,
		},
		Owner:      kp.GetEthAddress().Hex(),
		TimestampS: uint32(time.Now().Unix()),
		Epoch:      1,
	}
	claim.Identifier = shared.ComputeClaimInfoIdentifier(claim.ClaimInfo)

	sig, err := kp.SignClaim(claim)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return &shared.TranscriptProof{
		Identifier: claim.Identifier,
		Provider:   claim.Provider,
		Parameters: claim.Parameters,
		Owner:      claim.Owner,
		TimestampS: claim.TimestampS,
		Epoch:      claim.Epoch,
		Context:    claim.Context,
		Signatures: [][]byte{sig},
		Witnesses: []shared.WitnessData{
			{ID: strings.ToLower(kp.GetEthAddress().Hex()), URL: "wss://witness.example/ws"},
		},
		ExtractedParameters: map[string]string{"response": "Paris"},
	}, kp
}

func TestShouldVerifyWellFormedProof(t *testing.T) {
	proof, _ := issueTestProof(t)
	if err := VerifyWitnessedProof(proof); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShouldVerifyProofWithRawRecoveryID(t *testing.T) {
	proof, kp := issueTestProof(t)

	// Re-sign without the ethers.js +27 offset; the verifier must accept both
	raw, err := kp.SignData(shared.CreateSignDataForClaim(shared.ClaimDataFromProof(proof)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw[64] >= 27 {
		t.Fatalf("expected raw recovery ID, got %d", raw[64])
	}
	proof.Signatures = [][]byte{raw}

	if err := VerifyWitnessedProof(proof); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShouldRejectTamperedParameters(t *testing.T) {
	proof, _ := issueTestProof(t)
	proof.Parameters = strings.Replace(proof.Parameters, "POST", "GET", 1)

	err := VerifyWitnessedProof(proof)
	if err == nil {
		t.Fatal("expected error for tampered parameters")
	}
	if !strings.Contains(err.Error(), "identifier mismatch") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestShouldRejectTamperedSignature(t *testing.T) {
	proof, _ := issueTestProof(t)
	proof.Signatures[0][10] ^= 0xff

	if err := VerifyWitnessedProof(proof); err == nil {
		t.Fatal("expected error for tampered signature")
	}
}

func TestShouldRejectSignatureFromWrongKey(t *testing.T) {
	proof, _ := issueTestProof(t)

	other, err := shared.GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig, err := other.SignClaim(shared.ClaimDataFromProof(proof))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	proof.Signatures = [][]byte{sig}

	err = VerifyWitnessedProof(proof)
	if err == nil {
		t.Fatal("expected error when the listed witness did not sign")
	}
	if !strings.Contains(err.Error(), "did not sign") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestShouldRejectProofWithoutSignatures(t *testing.T) {
	proof, _ := issueTestProof(t)
	proof.Signatures = nil

	err := VerifyWitnessedProof(proof)
	if err == nil {
		t.Fatal("expected error for proof without signatures")
	}
	if !strings.Contains(err.Error(), "no signatures") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestShouldRejectTamperedExtractedParameterMirror(t *testing.T) {
	proof, _ := issueTestProof(t)
	proof.ExtractedParameters["response"] = "Berlin"

	err := VerifyWitnessedProof(proof)
	if err == nil {
		t.Fatal("expected error for tampered extracted parameter mirror")
	}
	if !strings.Contains(err.Error(), "signed claim context") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestShouldRecoverSignerAddresses(t *testing.T) {
	proof, kp := issueTestProof(t)

	signers, err := RecoverSignerAddresses(proof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signers) != 1 || signers[0] != strings.ToLower(kp.GetEthAddress().Hex()) {
		t.Fatalf("unexpected signers: %v", signers)
	}
}

func TestShouldRejectTruncatedSignature(t *testing.T) {
	proof, _ := issueTestProof(t)
	proof.Signatures = [][]byte{proof.Signatures[0][:64]}

	err := VerifyWitnessedProof(proof)
	if err == nil {
		t.Fatal("expected error for truncated signature")
	}
	if !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("unexpected error text: %v", err)
	}
}
