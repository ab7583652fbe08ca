package attestor

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"verinfer/shared"
)

const clientVersion = "verinfer/0.1.0"

// Client talks to a witness over websocket: one init handshake per
// connection, then claim request/response pairs. Connections are established
// lazily and re-established after failures.
type Client struct {
	cfg ClientConfig

	mutex          sync.Mutex
	conn           *shared.WSConnection
	sessionID      string
	witnessAddress string
	witnessURL     string
}

// ClientConfig configures a witness client
type ClientConfig struct {
	// URL of the witness websocket endpoint (ws:// or wss://)
	URL string

	// AuthToken is presented during init when the witness enforces auth
	AuthToken string

	// ClientVersion overrides the version string sent at init
	ClientVersion string

	// Dialer overrides the websocket dialer. Nil uses the default.
	Dialer *websocket.Dialer
}

// NewClient creates a client for the witness at the configured URL
func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the websocket connection and runs the init handshake
func (c *Client) Connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to parse witness URL: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported witness URL scheme %q, expected ws or wss", u.Scheme)
	}

	logger.Info("Connecting to witness",
		zap.String("component", "Client"),
		zap.String("operation", "Connect"),
		zap.String("url", c.cfg.URL))

	dialer := c.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	wsConn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to witness: %v", err)
	}
	ws := shared.NewWSConnection(wsConn)

	version := c.cfg.ClientVersion
	if version == "" {
		version = clientVersion
	}
	initData := shared.InitRequestData{
		ClientVersion: version,
		AuthToken:     c.cfg.AuthToken,
	}
	if err := ws.WriteMessage(shared.CreateMessage(shared.MsgInitRequest, initData)); err != nil {
		ws.Close()
		return fmt.Errorf("failed to send init request: %v", err)
	}

	msg, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return fmt.Errorf("failed to read init response: %v", err)
	}

	switch msg.Type {
	case shared.MsgInitResponse:
		var resp shared.InitResponseData
		if err := msg.UnmarshalData(&resp); err != nil {
			ws.Close()
			return fmt.Errorf("invalid init response data: %v", err)
		}
		c.conn = ws
		c.sessionID = resp.SessionID
		c.witnessAddress = resp.WitnessAddress
		c.witnessURL = resp.WitnessURL

		logger.Info("Witness session established",
			zap.String("component", "Client"),
			zap.String("operation", "Connect"),
			zap.String("session_id", c.sessionID),
			zap.String("witness_address", c.witnessAddress),
			zap.String("server_version", resp.ServerVersion))
		return nil

	case shared.MsgError:
		ws.Close()
		var ed shared.ErrorData
		if err := msg.UnmarshalData(&ed); err != nil {
			return fmt.Errorf("witness rejected session")
		}
		return fmt.Errorf("witness rejected session: %s", ed.Message)

	default:
		ws.Close()
		return fmt.Errorf("expected init response, got %s", msg.Type)
	}
}

// RequestClaim asks the witness to perform and attest one exchange. Blocks
// until the proof, an error message or the context deadline arrives.
func (c *Client) RequestClaim(ctx context.Context, req *shared.ClaimRequestData) (*shared.TranscriptProof, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	c.applyDeadlineLocked(ctx)

	if err := c.conn.WriteMessage(shared.CreateMessage(shared.MsgClaimRequest, req, c.sessionID)); err != nil {
		c.resetLocked()
		return nil, fmt.Errorf("failed to send claim request: %v", err)
	}

	msg, err := c.conn.ReadMessage()
	if err != nil {
		c.resetLocked()
		return nil, fmt.Errorf("failed to read claim response: %v", err)
	}

	switch msg.Type {
	case shared.MsgClaimResponse:
		var data shared.ClaimResponseData
		if err := msg.UnmarshalData(&data); err != nil {
			return nil, fmt.Errorf("invalid claim response data: %v", err)
		}
		if data.Proof == nil {
			return nil, fmt.Errorf("no proof returned in claim response")
		}
		logger.Info("Claim proof received",
			zap.String("component", "Client"),
			zap.String("operation", "RequestClaim"),
			zap.String("identifier", data.Proof.Identifier))
		return data.Proof, nil

	case shared.MsgError:
		var ed shared.ErrorData
		if err := msg.UnmarshalData(&ed); err != nil {
			return nil, fmt.Errorf("claim request failed")
		}
		return nil, fmt.Errorf("claim request failed: %s", ed.Message)

	default:
		return nil, fmt.Errorf("expected claim response, got %s", msg.Type)
	}
}

// WitnessAddress returns the signing address announced by the witness during
// init, or an empty string before the first successful connect.
func (c *Client) WitnessAddress() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.witnessAddress
}

// WitnessURL returns the public URL announced by the witness during init
func (c *Client) WitnessURL() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.witnessURL
}

// Close tears down the websocket connection
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.sessionID = ""
	return err
}

// applyDeadlineLocked propagates a context deadline onto the connection
func (c *Client) applyDeadlineLocked(ctx context.Context) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	wsConn := c.conn.GetWebSocketConn()
	_ = wsConn.SetReadDeadline(deadline)
	_ = wsConn.SetWriteDeadline(deadline)
}

// resetLocked drops a broken connection so the next call reconnects
func (c *Client) resetLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.sessionID = ""
}
