package providers

import (
	"encoding/base64"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Response redaction: compute the spans of a raw response that stay visible
// in the witnessed transcript, then mask everything else. Positions coming
// out of JSONPath/regex evaluation are relative to the reconstructed body;
// they are converted to absolute response offsets, splitting across chunk
// bodies so chunk framing is never revealed.

// GetResponseRevealRanges computes the absolute response ranges that remain
// visible after the configured redactions are applied. The status line, the
// header/body separator and the Date header are always revealed so the
// transcript stays recognizable as an HTTP exchange.
func GetResponseRevealRanges(response []byte, params *WitnessParams) ([]indexRange, error) {
	res, err := ParseHTTPResponseBytes(response)
	if err != nil {
		return nil, err
	}

	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("expected status 2xx, got %d (%s)", res.StatusCode, res.StatusMessage)
	}

	if len(params.ResponseRedactions) == 0 {
		// Nothing marked sensitive: the whole response stays visible
		return []indexRange{{start: 0, end: len(response)}}, nil
	}

	if res.BodyStartIndex < 4 {
		return nil, fmt.Errorf("failed to find response body")
	}

	reveals := []indexRange{{start: 0, end: res.StatusLineEndIndex}}

	// always reveal the double CRLF which separates headers from body
	reveals = append(reveals, indexRange{start: res.HeaderEndIdx, end: res.HeaderEndIdx + 4})

	// reveal Date header if present
	if rng, ok := res.HeaderLowerToRanges["date"]; ok && rng.end > rng.start {
		reveals = append(reveals, rng)
	}

	bodyStr := string(res.Body)
	for i := range params.ResponseRedactions {
		rs := &params.ResponseRedactions[i]
		proc, err := processRedactionRequest(bodyStr, rs, res.BodyStartIndex, res.Chunks)
		if err != nil {
			return nil, err
		}
		reveals = append(reveals, proc...)
	}

	sort.Slice(reveals, func(i, j int) bool { return reveals[i].start < reveals[j].start })

	logger.Debug("Computed response reveal ranges", zap.String("component", "Redaction"), zap.String("operation", "GetResponseRevealRanges"), zap.Int("reveals", len(reveals)), zap.Int("response_bytes", len(response)))
	return reveals, nil
}

// processRedactionRequest resolves one redaction entry to reveal ranges.
// JSONPath narrows to matched values first; a regex then selects within each
// value, or against the whole body when no JSONPath is given.
func processRedactionRequest(body string, rs *ResponseRedaction, bodyStartIdx int, resChunks []indexRange) ([]indexRange, error) {
	if rs.JSONPath != "" {
		locs, err := extractJSONValueIndexes([]byte(body), rs.JSONPath)
		if err != nil {
			return nil, err
		}
		items := []indexRange{}
		for _, j := range locs {
			proc, err := applyRegexWindow(body, rs.Regex, j.start, j.end, bodyStartIdx, resChunks)
			if err != nil {
				return nil, err
			}
			items = append(items, proc...)
		}
		return items, nil
	}

	if rs.Regex != "" {
		return applyRegexWindow(body, rs.Regex, 0, len(body), bodyStartIdx, resChunks)
	}

	return nil, fmt.Errorf("expected either jsonPath or regex for redaction")
}

// applyRegexWindow applies an optional regex over a [startAbs, endAbs) window
// of the body and returns the reveal ranges for the match, in absolute
// response coordinates.
func applyRegexWindow(body string, pattern string, startAbs, endAbs, bodyStartIdx int, resChunks []indexRange) ([]indexRange, error) {
	from, to := startAbs, endAbs

	if pattern != "" {
		re, err := makeRegex(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regexp %q: %w", pattern, err)
		}
		segment := body[startAbs:endAbs]
		loc := re.FindStringIndex(segment)
		if loc == nil {
			enc := base64.StdEncoding.EncodeToString([]byte(segment))
			return nil, fmt.Errorf("regexp %s does not match found element '%s'", pattern, enc)
		}
		from = startAbs + loc[0]
		to = startAbs + loc[1]
	}

	return splitReveal(from, to, bodyStartIdx, resChunks), nil
}

// splitReveal converts a body-coordinate range to absolute response ranges.
// For chunked responses the range is split per chunk body so the chunk size
// lines between them stay masked.
func splitReveal(from, to, bodyStartIdx int, chunks []indexRange) []indexRange {
	if from >= to {
		return nil
	}
	if len(chunks) == 0 {
		return []indexRange{{start: bodyStartIdx + from, end: bodyStartIdx + to}}
	}

	out := []indexRange{}
	chunkBodyStart := 0
	for _, ch := range chunks {
		chunkLen := ch.end - ch.start
		cFrom := max(from, chunkBodyStart)
		cTo := min(to, chunkBodyStart+chunkLen)
		if cFrom < cTo {
			out = append(out, indexRange{
				start: ch.start + (cFrom - chunkBodyStart),
				end:   ch.start + (cTo - chunkBodyStart),
			})
		}
		chunkBodyStart += chunkLen
	}
	return out
}

// ApplyResponseRedactions masks every byte outside the reveal ranges with
// asterisks, producing the transcript view of the response.
func ApplyResponseRedactions(response []byte, reveals []indexRange) []byte {
	masked := make([]byte, len(response))
	for i := range masked {
		masked[i] = '*'
	}
	for _, r := range reveals {
		from := max(r.start, 0)
		to := min(r.end, len(response))
		if from < to {
			copy(masked[from:to], response[from:to])
		}
	}
	return masked
}
