package shared

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Claim canonicalization and signing for witnessed TLS exchanges

// ClaimInfo is the unsigned description of a claim. The identifier is derived
// from it, so any change to provider, parameters or context produces a
// different claim.
type ClaimInfo struct {
	Provider   string `json:"provider"`
	Parameters string `json:"parameters"`
	Context    string `json:"context"`
}

// CompleteClaimData extends ClaimInfo with the fields fixed by the witness at
// signing time.
type CompleteClaimData struct {
	ClaimInfo
	Identifier string `json:"identifier"`
	Owner      string `json:"owner"`
	TimestampS uint32 `json:"timestampS"`
	Epoch      uint32 `json:"epoch"`
}

// WitnessData identifies a witness that signed a claim
type WitnessData struct {
	ID  string `json:"id"`  // lowercase 0x address of the witness signing key
	URL string `json:"url"` // endpoint the witness serves on
}

// TranscriptProof is the portable proof bundle a witness issues after
// observing a TLS exchange. It carries everything needed to check the claim
// offline: the claim fields, the witnesses and their signatures. Secret
// request material is redacted before signing and never appears here.
type TranscriptProof struct {
	Identifier          string            `json:"identifier"`
	Provider            string            `json:"provider"`
	Parameters          string            `json:"parameters"`
	Owner               string            `json:"owner"`
	TimestampS          uint32            `json:"timestampS"`
	Epoch               uint32            `json:"epoch"`
	Context             string            `json:"context"`
	Signatures          [][]byte          `json:"signatures"`
	Witnesses           []WitnessData     `json:"witnesses"`
	ExtractedParameters map[string]string `json:"extractedParameters,omitempty"`
}

// ClaimDataFromProof reassembles the signed claim data carried by a proof
func ClaimDataFromProof(p *TranscriptProof) CompleteClaimData {
	return CompleteClaimData{
		ClaimInfo: ClaimInfo{
			Provider:   p.Provider,
			Parameters: p.Parameters,
			Context:    p.Context,
		},
		Identifier: p.Identifier,
		Owner:      p.Owner,
		TimestampS: p.TimestampS,
		Epoch:      p.Epoch,
	}
}

// ComputeClaimInfoIdentifier hashes the claim info into its canonical
// identifier: keccak256 over provider, parameters and context joined by
// newlines, hex encoded with a 0x prefix.
func ComputeClaimInfoIdentifier(info ClaimInfo) string {
	payload := strings.Join([]string{info.Provider, info.Parameters, info.Context}, "\n")
	hash := crypto.Keccak256([]byte(payload))
	return "0x" + hex.EncodeToString(hash)
}

// CreateSignDataForClaim builds the exact byte payload a witness signs for a
// claim. The owner address is lowercased so the payload does not depend on
// checksum casing.
func CreateSignDataForClaim(data CompleteClaimData) []byte {
	identifier := data.Identifier
	if identifier == "" {
		identifier = ComputeClaimInfoIdentifier(data.ClaimInfo)
	}
	lines := []string{
		identifier,
		strings.ToLower(data.Owner),
		strconv.FormatUint(uint64(data.TimestampS), 10),
		strconv.FormatUint(uint64(data.Epoch), 10),
	}
	return []byte(strings.Join(lines, "\n"))
}

// SignClaim signs the canonical claim payload, returning an ethers.js
// compatible 65-byte signature (recovery ID 27/28).
func (kp *SigningKeyPair) SignClaim(data CompleteClaimData) ([]byte, error) {
	signature, err := kp.SignData(CreateSignDataForClaim(data))
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %v", err)
	}
	return ToEthersSignature(signature), nil
}

// RecoverClaimSigner returns the address that signed the claim payload
func RecoverClaimSigner(data CompleteClaimData, signature []byte) (common.Address, error) {
	return RecoverEthSigner(CreateSignDataForClaim(data), signature)
}

// ExtractedParamsFromContext pulls the extractedParameters object out of a
// claim context JSON string. Returns an empty map when the context has none.
func ExtractedParamsFromContext(contextJSON string) (map[string]string, error) {
	if contextJSON == "" {
		return map[string]string{}, nil
	}
	var ctx struct {
		ExtractedParameters map[string]string `json:"extractedParameters"`
	}
	if err := json.Unmarshal([]byte(contextJSON), &ctx); err != nil {
		return nil, fmt.Errorf("failed to parse claim context: %v", err)
	}
	if ctx.ExtractedParameters == nil {
		return map[string]string{}, nil
	}
	return ctx.ExtractedParameters, nil
}
