package providers

// ResponseMatch asserts the witnessed response against a pattern once
// redactions are applied. Type is "regex" or "contains". Regex values may use
// a named capture group to extract a parameter from the response.
type ResponseMatch struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Invert bool   `json:"invert,omitempty"`
}

// ResponseRedaction selects the response spans that stay visible in the
// witnessed transcript. Everything outside the selected spans is masked
// before the transcript leaves the witness.
type ResponseRedaction struct {
	Regex    string `json:"regex,omitempty"`
	JSONPath string `json:"jsonPath,omitempty"`
}

// WitnessParams describes one HTTP exchange for a witness to perform and
// attest. The struct serializes deterministically; its JSON form is embedded
// verbatim in the claim, so field order and formatting must not vary between
// the request and the proof.
type WitnessParams struct {
	URL                string              `json:"url"`
	Method             string              `json:"method"`
	Headers            map[string]string   `json:"headers,omitempty"`
	Body               string              `json:"body,omitempty"`
	ResponseMatches    []ResponseMatch     `json:"responseMatches,omitempty"`
	ResponseRedactions []ResponseRedaction `json:"responseRedactions,omitempty"`
}

// WitnessSecretParams carries request material that must reach the endpoint
// but never the proof: API keys and other hidden headers.
type WitnessSecretParams struct {
	CookieStr           string            `json:"cookieStr,omitempty"`
	AuthorisationHeader string            `json:"authorisationHeader,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
}

// RedactedOrHashedArraySlice marks a byte range that is redacted before the
// transcript is signed
type RedactedOrHashedArraySlice struct {
	From int     `json:"fromIndex"`
	To   int     `json:"toIndex"`
	Hash *string `json:"hash,omitempty"`
}

// CreateRequestResult is the raw request plus the ranges to redact from it
type CreateRequestResult struct {
	Data       []byte                       `json:"data"`
	Redactions []RedactedOrHashedArraySlice `json:"redactions"`
}

// indexRange is a half-open [start, end) byte range
type indexRange struct{ start, end int }
