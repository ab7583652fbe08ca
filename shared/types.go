package shared

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection abstraction for WebSocket connections
type Connection interface {
	Close() error
	RemoteAddr() string
}

// WebSocket connection adapter
type WSConnection struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (w *WSConnection) Close() error {
	return w.conn.Close()
}

func (w *WSConnection) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

// GetWebSocketConn returns the underlying websocket.Conn for compatibility
func (w *WSConnection) GetWebSocketConn() *websocket.Conn {
	return w.conn
}

// WriteMessage serializes a protocol message onto the connection. Writes are
// serialized; gorilla/websocket allows only one concurrent writer.
func (w *WSConnection) WriteMessage(msg *Message) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.WriteJSON(msg)
}

// ReadMessage reads the next protocol message from the connection
func (w *WSConnection) ReadMessage() (*Message, error) {
	var msg Message
	if err := w.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Message types for websocket communication between client and witness
type MessageType string

const (
	// Client to witness messages
	MsgInitRequest  MessageType = "init_request"
	MsgClaimRequest MessageType = "claim_request"

	// Witness to client messages
	MsgInitResponse  MessageType = "init_response"
	MsgClaimResponse MessageType = "claim_response"

	// Either direction
	MsgError MessageType = "error"
)

// Message represents a protocol message with session context
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// UnmarshalData unmarshals the Data field into the provided interface
func (m *Message) UnmarshalData(v interface{}) error {
	if v == nil {
		return fmt.Errorf("nil destination")
	}
	if m == nil {
		return fmt.Errorf("nil message")
	}
	// Fast-path: if Data is nil
	if m.Data == nil {
		return fmt.Errorf("no data in message")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("destination must be non-nil pointer")
	}
	dv := reflect.ValueOf(m.Data)
	// Allow assignment when types match or are assignable
	if dv.Type().AssignableTo(rv.Elem().Type()) {
		rv.Elem().Set(dv)
		return nil
	}
	// Data read off the wire decodes as generic JSON; round-trip it into the
	// destination type.
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("failed to re-encode message data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode message data into %s: %v", rv.Elem().Type().String(), err)
	}
	return nil
}

// InitRequestData is sent by the client to open a session
type InitRequestData struct {
	ClientVersion string `json:"client_version"`
	AuthToken     string `json:"auth_token,omitempty"` // JWT, required when the witness enforces auth
}

// InitResponseData is returned by the witness once the session is accepted
type InitResponseData struct {
	SessionID      string `json:"session_id"`
	WitnessAddress string `json:"witness_address"` // 0x address of the witness signing key
	WitnessURL     string `json:"witness_url"`
	ServerVersion  string `json:"server_version"`
}

// ClaimRequestData asks the witness to perform and attest one TLS exchange.
// SecretParams carries the hidden request material (API keys); the witness
// uses it to build the request and redacts it before signing anything.
type ClaimRequestData struct {
	Provider     string          `json:"provider"`
	Parameters   json.RawMessage `json:"parameters"`
	SecretParams json.RawMessage `json:"secret_params,omitempty"`
	Context      string          `json:"context,omitempty"`
	Owner        string          `json:"owner"`
}

// ClaimResponseData carries the signed proof back to the client
type ClaimResponseData struct {
	Proof *TranscriptProof `json:"proof"`
}

// ErrorData describes a protocol-level failure
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Helper functions
func CreateMessage(msgType MessageType, data interface{}, sessionID ...string) *Message {
	msg := &Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	}

	// If sessionID is provided and not empty, set it
	if len(sessionID) > 0 && sessionID[0] != "" {
		msg.SessionID = sessionID[0]
	}

	return msg
}
