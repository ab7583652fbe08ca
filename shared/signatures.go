package shared

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Cryptographic signing infrastructure for witness claims

// SigningKeyPair represents a cryptographic ECDSA signing key pair for Ethereum-style signatures
type SigningKeyPair struct {
	PrivateKey *ecdsa.PrivateKey `json:"private_key"`
	PublicKey  *ecdsa.PublicKey  `json:"public_key"`
}

// GenerateSigningKeyPair generates a new ECDSA signing key pair using secp256k1 curve (ETH compatible)
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key pair: %v", err)
	}

	return &SigningKeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// LoadSigningKeyPairFromHex loads a key pair from a hex-encoded private key,
// with or without a 0x prefix.
func LoadSigningKeyPairFromHex(hexKey string) (*SigningKeyPair, error) {
	if len(hexKey) >= 2 && hexKey[0:2] == "0x" {
		hexKey = hexKey[2:]
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}
	return &SigningKeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// SignData signs the given data using Ethereum-style signatures
func (kp *SigningKeyPair) SignData(data []byte) ([]byte, error) {
	// Use standard Ethereum message signing (includes prefix)
	hash := accounts.TextHash(data)

	// Sign the hash - this returns a 65-byte signature with recovery ID
	signature, err := crypto.Sign(hash, kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign data with ETH style: %v", err)
	}

	return signature, nil
}

// VerifySignature verifies an Ethereum-style signature against the given data using a public key
func VerifySignature(data []byte, signature []byte, publicKey *ecdsa.PublicKey) error {
	return VerifyEthSignature(data, signature, crypto.PubkeyToAddress(*publicKey))
}

// VerifySignature method on SigningKeyPair
func (kp *SigningKeyPair) VerifySignature(data []byte, signature []byte) bool {
	err := VerifySignature(data, signature, kp.PublicKey)
	return err == nil
}

// GetEthAddress returns the Ethereum address for this key pair
func (kp *SigningKeyPair) GetEthAddress() common.Address {
	return crypto.PubkeyToAddress(*kp.PublicKey)
}

// VerifyEthSignature verifies an Ethereum-style signature against the given data and address.
// Accepts both raw recovery IDs (0/1) and ethers.js style ones (27/28).
func VerifyEthSignature(data []byte, signature []byte, expectedAddress common.Address) error {
	recoveredAddress, err := RecoverEthSigner(data, signature)
	if err != nil {
		return err
	}

	if recoveredAddress != expectedAddress {
		return fmt.Errorf("signature verification failed: expected address %s, got %s",
			expectedAddress.Hex(), recoveredAddress.Hex())
	}

	return nil
}

// RecoverEthSigner recovers the signing address from an Ethereum-style signature
func RecoverEthSigner(data []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid ETH signature length: expected 65 bytes, got %d", len(signature))
	}

	// Normalize ethers.js recovery IDs (27/28) back to raw (0/1)
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	// Use standard Ethereum message signing (includes prefix)
	hash := accounts.TextHash(data)

	recoveredPubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key from signature: %v", err)
	}

	return crypto.PubkeyToAddress(*recoveredPubKey), nil
}

// ToEthersSignature converts a go-ethereum signature (recovery ID 0/1) to the
// ethers.js format (recovery ID 27/28). The input is not modified.
func ToEthersSignature(signature []byte) []byte {
	out := make([]byte, len(signature))
	copy(out, signature)
	if len(out) == 65 && out[64] < 27 {
		out[64] += 27
	}
	return out
}

// GetEthAddress returns the Ethereum address for a given public key
func GetEthAddress(publicKey *ecdsa.PublicKey) common.Address {
	return crypto.PubkeyToAddress(*publicKey)
}
