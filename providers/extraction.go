package providers

import (
	"encoding/json"
	"regexp"

	"go.uber.org/zap"
)

// ResponseGroupName is the capture group an extraction rule must define to
// carve the provable slice out of a response body.
const ResponseGroupName = "response"

// makeRegex enables dotAll and case-insensitive matching, and converts
// JS-style named groups (?<name>...) to Go/RE2-style (?P<name>...)
func makeRegex(str string) (*regexp.Regexp, error) {
	converted := convertJsNamedGroupsToGo(str)
	return regexp.Compile("(?si)" + converted)
}

var jsNamedGroupPattern = regexp.MustCompile(`\(\?<([A-Za-z][A-Za-z0-9_]*)>`)

func convertJsNamedGroupsToGo(s string) string {
	// Replace `(?<name>` with `(?P<name>`
	return jsNamedGroupPattern.ReplaceAllString(s, `(?P<$1>`)
}

// ExtractionRule is a validated extraction pattern. The rule is checked once
// at construction: the pattern must compile and must define exactly one named
// capture group. Extraction itself is a pure function over the body.
type ExtractionRule struct {
	pattern   string
	groupName string
	re        *regexp.Regexp
	groupIdx  int
}

// NewExtractionRule compiles and validates an extraction pattern
func NewExtractionRule(pattern string) (*ExtractionRule, error) {
	if pattern == "" {
		return nil, NewPatternError(pattern, "extraction pattern is empty", nil)
	}

	re, err := makeRegex(pattern)
	if err != nil {
		return nil, NewPatternError(pattern, "extraction pattern does not compile", err)
	}

	names := re.SubexpNames()
	groupIdx := -1
	groupName := ""
	totalNamed := 0
	for gi, name := range names {
		if gi == 0 || name == "" {
			continue
		}
		totalNamed++
		groupIdx = gi
		groupName = name
	}
	if totalNamed != 1 {
		return nil, NewPatternError(pattern, "exactly one named capture group is needed per extraction rule", nil)
	}

	return &ExtractionRule{
		pattern:   pattern,
		groupName: groupName,
		re:        re,
		groupIdx:  groupIdx,
	}, nil
}

// MustExtractionRule is NewExtractionRule that panics on invalid patterns,
// for statically known rules.
func MustExtractionRule(pattern string) *ExtractionRule {
	rule, err := NewExtractionRule(pattern)
	if err != nil {
		panic(err)
	}
	return rule
}

// Pattern returns the original pattern string
func (r *ExtractionRule) Pattern() string {
	return r.pattern
}

// GroupName returns the name of the rule's capture group
func (r *ExtractionRule) GroupName() string {
	return r.groupName
}

// Extract applies the rule to a raw response body and returns the captured
// slice. The pattern must match exactly once: zero matches fail with
// NoMatchError, more than one with AmbiguousMatchError.
func (r *ExtractionRule) Extract(rawBody string) (string, error) {
	matches := r.re.FindAllStringSubmatchIndex(rawBody, 2)
	if len(matches) == 0 {
		logger.Debug("Extraction pattern found no match", zap.String("component", "Extraction"), zap.String("operation", "Extract"), zap.String("pattern", r.pattern), zap.Int("body_bytes", len(rawBody)))
		return "", NewNoMatchError(r.pattern)
	}
	if len(matches) > 1 {
		logger.Warn("Extraction pattern matched more than once", zap.String("component", "Extraction"), zap.String("operation", "Extract"), zap.String("pattern", r.pattern))
		return "", NewAmbiguousMatchError(r.pattern, len(matches))
	}

	smi := matches[0]
	from := smi[2*r.groupIdx]
	to := smi[2*r.groupIdx+1]
	if from < 0 || to < 0 {
		// The pattern matched but the named group captured nothing
		return "", NewNoMatchError(r.pattern)
	}
	return rawBody[from:to], nil
}

// ExtractRange behaves like Extract but returns the byte range of the capture
// within the body, for callers that reveal regions rather than copy them.
func (r *ExtractionRule) ExtractRange(rawBody string) (indexRange, error) {
	matches := r.re.FindAllStringSubmatchIndex(rawBody, 2)
	if len(matches) == 0 {
		return indexRange{}, NewNoMatchError(r.pattern)
	}
	if len(matches) > 1 {
		return indexRange{}, NewAmbiguousMatchError(r.pattern, len(matches))
	}
	smi := matches[0]
	from := smi[2*r.groupIdx]
	to := smi[2*r.groupIdx+1]
	if from < 0 || to < 0 {
		return indexRange{}, NewNoMatchError(r.pattern)
	}
	return indexRange{start: from, end: to}, nil
}

// DecodeExtractedString decodes a slice captured from inside a JSON string
// literal back to its plain text form. The capture of a rule like
// `"content":"(?<response>...)"` still carries JSON escapes; re-parsing it as
// a JSON string undoes them. A slice that does not form a valid JSON string
// is a malformed payload.
func DecodeExtractedString(captured string) (string, error) {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+captured+`"`), &decoded); err != nil {
		return "", NewMalformedPayloadError("captured slice is not a valid JSON string fragment", err)
	}
	return decoded, nil
}
