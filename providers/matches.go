package providers

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AssertResponseMatches checks every configured match against the redacted
// response and collects the parameters captured by named groups. Matches run
// on the redacted view on purpose: a claim only ever attests to bytes the
// transcript actually reveals.
func AssertResponseMatches(redactedResponse string, matches []ResponseMatch) (map[string]string, error) {
	extracted := map[string]string{}

	for _, m := range matches {
		switch m.Type {
		case "contains":
			found := strings.Contains(redactedResponse, m.Value)
			if found == m.Invert {
				return nil, fmt.Errorf("response does not satisfy contains match %q", m.Value)
			}

		case "regex":
			re, err := makeRegex(m.Value)
			if err != nil {
				return nil, fmt.Errorf("invalid match regexp %q: %w", m.Value, err)
			}
			smi := re.FindStringSubmatchIndex(redactedResponse)
			matched := smi != nil
			if matched == m.Invert {
				return nil, fmt.Errorf("response does not satisfy regex match %q", m.Value)
			}
			if !matched {
				continue
			}
			names := re.SubexpNames()
			for gi, name := range names {
				if gi == 0 || name == "" {
					continue
				}
				from := smi[2*gi]
				to := smi[2*gi+1]
				if from >= 0 && to >= 0 {
					extracted[name] = redactedResponse[from:to]
				}
			}

		default:
			return nil, fmt.Errorf("unknown response match type %q", m.Type)
		}
	}

	logger.Debug("Response matches asserted", zap.String("component", "Matches"), zap.String("operation", "AssertResponseMatches"), zap.Int("matches", len(matches)), zap.Int("extracted_params", len(extracted)))
	return extracted, nil
}
