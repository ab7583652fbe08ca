package proofverifier

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"verinfer/shared"
)

// Offline verification of witnessed transcript proofs. Everything needed is
// carried by the proof itself: no credentials, no network, no access to the
// original request. A proof verifies when its identifier recomputes from its
// own fields and every listed witness produced a valid signature over the
// canonical claim payload.

// VerifyWitnessedProof checks a transcript proof. Returns nil when the proof
// is valid; any failed check is reported as an error naming the check.
func VerifyWitnessedProof(proof *shared.TranscriptProof) error {
	if proof == nil {
		return fmt.Errorf("nil proof")
	}
	if proof.Identifier == "" {
		return fmt.Errorf("proof has no identifier")
	}
	if proof.Provider == "" {
		return fmt.Errorf("proof has no provider")
	}
	if len(proof.Signatures) == 0 {
		return fmt.Errorf("proof has no signatures")
	}
	if len(proof.Witnesses) == 0 {
		return fmt.Errorf("proof lists no witnesses")
	}

	// The identifier must recompute from the claim fields; any mutation of
	// provider, parameters or context shows up here.
	expectedID := shared.ComputeClaimInfoIdentifier(shared.ClaimInfo{
		Provider:   proof.Provider,
		Parameters: proof.Parameters,
		Context:    proof.Context,
	})
	if !strings.EqualFold(expectedID, proof.Identifier) {
		return fmt.Errorf("identifier mismatch: claim hashes to %s, proof says %s", expectedID, proof.Identifier)
	}

	signers, err := RecoverSignerAddresses(proof)
	if err != nil {
		return err
	}

	// Every witness the proof names must have actually signed it. Extra
	// signatures from unknown keys are ignored rather than rejected.
	signerSet := map[string]bool{}
	for _, s := range signers {
		signerSet[s] = true
	}
	for _, w := range proof.Witnesses {
		if w.ID == "" {
			return fmt.Errorf("proof lists a witness without an address")
		}
		if !signerSet[strings.ToLower(w.ID)] {
			return fmt.Errorf("witness %s did not sign this claim", w.ID)
		}
	}

	if err := checkExtractedParamsMirror(proof); err != nil {
		return err
	}

	logger.Debug("Proof verified",
		zap.String("component", "ProofVerifier"),
		zap.String("operation", "VerifyWitnessedProof"),
		zap.String("identifier", proof.Identifier),
		zap.Int("witnesses", len(proof.Witnesses)))

	return nil
}

// RecoverSignerAddresses recovers the lowercase 0x address behind each
// signature on the proof. Fails if any signature is malformed.
func RecoverSignerAddresses(proof *shared.TranscriptProof) ([]string, error) {
	claim := shared.ClaimDataFromProof(proof)
	addresses := make([]string, 0, len(proof.Signatures))
	for i, sig := range proof.Signatures {
		signer, err := shared.RecoverClaimSigner(claim, sig)
		if err != nil {
			return nil, fmt.Errorf("signature %d is malformed: %v", i, err)
		}
		if signer == (common.Address{}) {
			return nil, fmt.Errorf("signature %d recovers to the zero address", i)
		}
		addresses = append(addresses, strings.ToLower(signer.Hex()))
	}
	return addresses, nil
}

// checkExtractedParamsMirror confirms the convenience copy of the extracted
// parameters agrees with the signed copy inside the claim context. Only the
// context copy is covered by the identifier, so a divergent mirror means the
// unsigned copy was tampered with.
func checkExtractedParamsMirror(proof *shared.TranscriptProof) error {
	signed, err := shared.ExtractedParamsFromContext(proof.Context)
	if err != nil {
		return err
	}
	if len(proof.ExtractedParameters) != len(signed) {
		return fmt.Errorf("extracted parameters do not match the signed claim context")
	}
	for k, v := range proof.ExtractedParameters {
		if signed[k] != v {
			return fmt.Errorf("extracted parameter %q does not match the signed claim context", k)
		}
	}
	return nil
}
