package providers

import (
	"bytes"
	"fmt"
	"maps"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const DEFAULT_USER_AGENT = "verinfer-witness"
const DEFAULT_HTTPS_PORT = 443

// CreateWitnessedRequest builds the HTTP/1.1 request bytes for a witnessed
// exchange and the redaction ranges that hide the secret headers from the
// transcript. The request reads the whole response on one connection, so it
// pins Connection: close and identity encoding.
func CreateWitnessedRequest(secret *WitnessSecretParams, params *WitnessParams) (CreateRequestResult, error) {
	logger.Info("Starting CreateWitnessedRequest", zap.String("component", "Request"), zap.String("operation", "CreateWitnessedRequest"), zap.String("url", params.URL), zap.String("method", params.Method))

	pubHeaders := map[string]string{}
	maps.Copy(pubHeaders, params.Headers)

	// Build secret headers list in a fixed order: Cookie, Authorization, then
	// any extra secret headers sorted by name
	secHeadersList := []string{}
	if secret != nil {
		if secret.CookieStr != "" {
			secHeadersList = append(secHeadersList, fmt.Sprintf("Cookie: %s", secret.CookieStr))
		}
		if secret.AuthorisationHeader != "" {
			secHeadersList = append(secHeadersList, fmt.Sprintf("Authorization: %s", secret.AuthorisationHeader))
		}
		secretKeys := make([]string, 0, len(secret.Headers))
		for k := range secret.Headers {
			secretKeys = append(secretKeys, k)
		}
		sort.Strings(secretKeys)
		for _, k := range secretKeys {
			secHeadersList = append(secHeadersList, fmt.Sprintf("%s: %s", k, secret.Headers[k]))
		}
	}

	// Default UA if not provided anywhere
	hasUA := false
	for k := range pubHeaders {
		if equalsFoldUserAgent(k) {
			hasUA = true
			break
		}
	}
	if !hasUA {
		for _, line := range secHeadersList {
			if len(line) >= len("User-Agent:") && equalsFoldUserAgent(strings.TrimSuffix(line[:len("User-Agent:")], ":")) {
				hasUA = true
				break
			}
		}
	}
	if !hasUA {
		pubHeaders["User-Agent"] = DEFAULT_USER_AGENT
	}

	u, err := url.Parse(params.URL)
	if err != nil {
		return CreateRequestResult{}, NewRequestError("invalid url", err)
	}
	if u.Scheme != "https" {
		return CreateRequestResult{}, NewRequestError(fmt.Sprintf("url scheme %q not supported, expected https", u.Scheme), nil)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	query := u.RawQuery
	reqTarget := path
	if query != "" {
		reqTarget = reqTarget + "?" + query
	}
	reqLine := fmt.Sprintf("%s %s HTTP/1.1", params.Method, reqTarget)

	bodyBytes := []byte(params.Body)
	contentLength := len(bodyBytes)

	pubHeadersList := buildHeadersList(pubHeaders)
	hostHeader := getHostHeaderString(u)
	lines := []string{
		reqLine,
		fmt.Sprintf("Host: %s", hostHeader),
		fmt.Sprintf("Content-Length: %d", contentLength),
		"Connection: close",
		"Accept-Encoding: identity",
	}
	lines = append(lines, pubHeadersList...)
	lines = append(lines, secHeadersList...)
	lines = append(lines, "\r\n")
	headersStr := joinCRLF(lines)
	headerBytes := []byte(headersStr)
	data := append(headerBytes, bodyBytes...)

	// redactions: hide the whole secret headers block
	redactions := []RedactedOrHashedArraySlice{}
	if len(secHeadersList) > 0 {
		secHeadersStr := joinCRLF(secHeadersList)
		idx := bytes.Index(data, []byte(secHeadersStr))
		if idx >= 0 {
			redactions = append(redactions, RedactedOrHashedArraySlice{From: idx, To: idx + len(secHeadersStr)})
		}
	}
	sort.Slice(redactions, func(i, j int) bool { return redactions[i].To < redactions[j].To })

	logger.Debug("Witnessed request built", zap.String("component", "Request"), zap.String("operation", "CreateWitnessedRequest"), zap.Int("request_bytes", len(data)), zap.Int("redactions", len(redactions)))
	return CreateRequestResult{Data: data, Redactions: redactions}, nil
}

// RedactRequestBytes replaces the redacted ranges of a raw request with
// asterisks, producing the transcript view a proof may reference.
func RedactRequestBytes(data []byte, redactions []RedactedOrHashedArraySlice) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	for _, r := range redactions {
		from := r.From
		to := r.To
		if from < 0 {
			from = 0
		}
		if to > len(out) {
			to = len(out)
		}
		for i := from; i < to; i++ {
			out[i] = '*'
		}
	}
	return out
}

func equalsFoldUserAgent(s string) bool { return strings.EqualFold(s, "user-agent") }

func buildHeadersList(h map[string]string) []string {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	res := make([]string, 0, len(keys))
	for _, k := range keys {
		res = append(res, fmt.Sprintf("%s: %s", k, h[k]))
	}
	return res
}

func getHostHeaderString(u *url.URL) string {
	port := u.Port()
	if port != "" && port != strconv.Itoa(DEFAULT_HTTPS_PORT) {
		return u.Host
	}
	return u.Hostname()
}

func joinCRLF(lines []string) string { return strings.Join(lines, "\r\n") }
