package providers

import (
	"fmt"
	"strings"
	"testing"
)

const redactionTestBody = `{"id":"chatcmpl-SECRET","object":"chat.completion","choices":[{"message":{"role":"assistant","content":"The capital of France is Paris."}}]}`

func TestShouldRevealOnlyMatchedJSONPathValue(t *testing.T) {
	raw := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nDate: Mon, 01 Jan 2024 00:00:00 GMT\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s",
		len(redactionTestBody), redactionTestBody,
	)
	params := &WitnessParams{
		ResponseRedactions: []ResponseRedaction{
			{JSONPath: "$.choices[0].message.content"},
		},
	}

	reveals, err := GetResponseRevealRanges([]byte(raw), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	redacted := string(ApplyResponseRedactions([]byte(raw), reveals))
	if len(redacted) != len(raw) {
		t.Fatalf("redaction changed length: %d != %d", len(redacted), len(raw))
	}
	if !strings.Contains(redacted, "The capital of France is Paris.") {
		t.Fatal("matched value was masked")
	}
	if strings.Contains(redacted, "chatcmpl-SECRET") {
		t.Fatal("unmatched body content leaked through redaction")
	}
	if strings.Contains(redacted, "application/json") {
		t.Fatal("header outside the reveal set leaked through redaction")
	}
	if !strings.Contains(redacted, "HTTP/1.1 200 OK") {
		t.Fatal("status line should stay revealed")
	}
	if !strings.Contains(redacted, "Date: Mon, 01 Jan 2024 00:00:00 GMT") {
		t.Fatal("date header should stay revealed")
	}
}

func TestShouldNarrowRevealWithRegexInsideJSONPath(t *testing.T) {
	raw := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s",
		len(redactionTestBody), redactionTestBody,
	)
	params := &WitnessParams{
		ResponseRedactions: []ResponseRedaction{
			{JSONPath: "$.choices[0].message.content", Regex: "Paris"},
		},
	}

	reveals, err := GetResponseRevealRanges([]byte(raw), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	redacted := string(ApplyResponseRedactions([]byte(raw), reveals))
	if !strings.Contains(redacted, "Paris") {
		t.Fatal("regex-selected text was masked")
	}
	if strings.Contains(redacted, "capital of France") {
		t.Fatal("text outside the regex match leaked through redaction")
	}
}

func TestShouldRevealWholeResponseWithoutRedactions(t *testing.T) {
	raw := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s",
		len(redactionTestBody), redactionTestBody,
	)

	reveals, err := GetResponseRevealRanges([]byte(raw), &WitnessParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	redacted := string(ApplyResponseRedactions([]byte(raw), reveals))
	if redacted != raw {
		t.Fatal("response without redactions should stay fully visible")
	}
}

func TestShouldMaskChunkFramingWhenRevealSpansChunks(t *testing.T) {
	split := strings.Index(redactionTestBody, "France")
	chunk1 := redactionTestBody[:split]
	chunk2 := redactionTestBody[split:]
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		fmt.Sprintf("%x\r\n%s\r\n", len(chunk1), chunk1) +
		fmt.Sprintf("%x\r\n%s\r\n", len(chunk2), chunk2) +
		"0\r\n\r\n"
	params := &WitnessParams{
		ResponseRedactions: []ResponseRedaction{
			{JSONPath: "$.choices[0].message.content"},
		},
	}

	reveals, err := GetResponseRevealRanges([]byte(raw), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	redacted := string(ApplyResponseRedactions([]byte(raw), reveals))

	if !strings.Contains(redacted, "The capital of ") {
		t.Fatal("first chunk part of the value was masked")
	}
	if !strings.Contains(redacted, "France is Paris.") {
		t.Fatal("second chunk part of the value was masked")
	}

	// The framing between the two chunks (CRLF + size line) must stay masked.
	res, err := ParseHTTPResponseBytes([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(res.Chunks))
	}
	framing := redacted[res.Chunks[0].end:res.Chunks[1].start]
	for i := 0; i < len(framing); i++ {
		if framing[i] != '*' {
			t.Fatalf("chunk framing leaked at offset %d: %q", i, framing)
		}
	}
}

func TestShouldRejectNonSuccessResponse(t *testing.T) {
	raw := "HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nnot found"
	_, err := GetResponseRevealRanges([]byte(raw), &WitnessParams{})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error should carry the status code, got: %v", err)
	}
}

func TestShouldFailWhenRedactionRegexDoesNotMatch(t *testing.T) {
	raw := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s",
		len(redactionTestBody), redactionTestBody,
	)
	params := &WitnessParams{
		ResponseRedactions: []ResponseRedaction{
			{JSONPath: "$.choices[0].message.content", Regex: "berlin"},
		},
	}

	if _, err := GetResponseRevealRanges([]byte(raw), params); err == nil {
		t.Fatal("expected error when redaction regex does not match")
	}
}

func TestShouldFailOnRedactionWithoutSelector(t *testing.T) {
	raw := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n%s",
		len(redactionTestBody), redactionTestBody,
	)
	params := &WitnessParams{
		ResponseRedactions: []ResponseRedaction{{}},
	}

	if _, err := GetResponseRevealRanges([]byte(raw), params); err == nil {
		t.Fatal("expected error for redaction without jsonPath or regex")
	}
}
