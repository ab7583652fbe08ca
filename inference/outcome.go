package inference

// VerificationOutcome is the product of one verification pass. Every call to
// a verify operation builds a fresh outcome; outcomes are never cached or
// shared between calls.
//
// Verification failures are data, not errors: a tampered proof or a replay
// mismatch lands here with IsValid false and a diagnostic, so callers can
// treat "unverifiable" the same way they treat "verified".
type VerificationOutcome struct {
	// IsValid is the overall verdict
	IsValid bool `json:"isValid"`

	// VerifiedEndpoint is the provider endpoint the proof attests to. Only
	// set by transcript-proof verification.
	VerifiedEndpoint string `json:"verifiedEndpoint,omitempty"`

	// OutputMatches reports whether the replayed output reproduced the
	// recorded text byte for byte. Only set by re-execution verification,
	// where it always equals IsValid.
	OutputMatches *bool `json:"outputMatches,omitempty"`

	// ReExecutedOutput is the text the replay produced, exposed on match and
	// mismatch alike so callers can diff the two.
	ReExecutedOutput string `json:"reExecutedOutput,omitempty"`

	// Error carries the diagnostic when IsValid is false
	Error string `json:"error,omitempty"`
}

func invalidOutcome(diagnostic string) *VerificationOutcome {
	return &VerificationOutcome{IsValid: false, Error: diagnostic}
}
