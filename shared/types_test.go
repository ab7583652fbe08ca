package shared

import (
	"encoding/json"
	"testing"
)

func TestShouldUnmarshalTypedMessageData(t *testing.T) {
	msg := CreateMessage(MsgInitResponse, InitResponseData{
		SessionID:      "sess-1",
		WitnessAddress: "0x1234",
	}, "sess-1")

	var data InitResponseData
	if err := msg.UnmarshalData(&data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.SessionID != "sess-1" || data.WitnessAddress != "0x1234" {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestShouldUnmarshalWireDecodedMessageData(t *testing.T) {
	// Simulate a message that went over the wire: Data becomes a generic map
	original := CreateMessage(MsgClaimRequest, ClaimRequestData{
		Provider:   "http",
		Parameters: json.RawMessage(`{"url":"https://api.example.com"}`),
		Owner:      "0xabc",
	}, "sess-2")

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal message: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}

	var data ClaimRequestData
	if err := decoded.UnmarshalData(&data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Provider != "http" || data.Owner != "0xabc" {
		t.Fatalf("unexpected data: %+v", data)
	}
	if string(data.Parameters) != `{"url":"https://api.example.com"}` {
		t.Fatalf("parameters did not survive the round trip: %s", data.Parameters)
	}
	if decoded.SessionID != "sess-2" {
		t.Fatalf("session ID lost: %q", decoded.SessionID)
	}
}

func TestShouldRejectBadUnmarshalDestinations(t *testing.T) {
	msg := CreateMessage(MsgError, ErrorData{Code: "ERR", Message: "failed"})

	if err := msg.UnmarshalData(nil); err == nil {
		t.Fatal("expected error for nil destination")
	}

	var notAPointer ErrorData
	_ = notAPointer
	if err := msg.UnmarshalData(notAPointer); err == nil {
		t.Fatal("expected error for non-pointer destination")
	}

	empty := CreateMessage(MsgError, nil)
	var data ErrorData
	if err := empty.UnmarshalData(&data); err == nil {
		t.Fatal("expected error for message without data")
	}
}
