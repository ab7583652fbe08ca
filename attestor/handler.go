package attestor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"verinfer/shared"
)

const serverVersion = "0.1.0"

// WebSocket upgrader with proper configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// witnessSession tracks the state of one websocket connection
type witnessSession struct {
	id          string
	initialized bool
}

// Handler returns the websocket endpoint serving init and claim requests
func (w *Witness) Handler() http.Handler {
	return http.HandlerFunc(w.serveWS)
}

// serveWS upgrades HTTP to WebSocket and runs the message loop
func (w *Witness) serveWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed",
			zap.String("component", "Witness"),
			zap.String("operation", "serveWS"),
			zap.Error(err))
		return
	}
	ws := shared.NewWSConnection(conn)
	defer ws.Close()

	logger.Info("New witness connection",
		zap.String("component", "Witness"),
		zap.String("operation", "serveWS"),
		zap.String("remote_addr", ws.RemoteAddr()))

	session := &witnessSession{}
	for {
		msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket read failed",
					zap.String("component", "Witness"),
					zap.String("operation", "serveWS"),
					zap.Error(err))
			}
			break
		}

		if err := w.handleMessage(r.Context(), ws, session, msg); err != nil {
			logger.Error("Message handling failed",
				zap.String("component", "Witness"),
				zap.String("operation", "serveWS"),
				zap.String("message_type", string(msg.Type)),
				zap.Error(err))
			w.sendError(ws, session.id, string(msg.Type), err)
		}
	}

	if session.id != "" {
		logger.Info("Witness connection closed",
			zap.String("component", "Witness"),
			zap.String("operation", "serveWS"),
			zap.String("session_id", session.id))
	}
}

// handleMessage dispatches one protocol message
func (w *Witness) handleMessage(ctx context.Context, ws *shared.WSConnection, session *witnessSession, msg *shared.Message) error {
	switch msg.Type {
	case shared.MsgInitRequest:
		return w.handleInit(ws, session, msg)
	case shared.MsgClaimRequest:
		return w.handleClaimRequest(ctx, ws, session, msg)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// handleInit authenticates the session and returns the witness identity
func (w *Witness) handleInit(ws *shared.WSConnection, session *witnessSession, msg *shared.Message) error {
	var data shared.InitRequestData
	if err := msg.UnmarshalData(&data); err != nil {
		return fmt.Errorf("invalid init request data: %v", err)
	}

	if len(w.authSecret) > 0 {
		subject, err := verifyAuthToken(w.authSecret, data.AuthToken)
		if err != nil {
			return err
		}
		logger.Info("Session authenticated",
			zap.String("component", "Witness"),
			zap.String("operation", "handleInit"),
			zap.String("subject", subject))
	}

	session.id = uuid.New().String()
	session.initialized = true

	logger.Info("Session initialized",
		zap.String("component", "Witness"),
		zap.String("operation", "handleInit"),
		zap.String("session_id", session.id),
		zap.String("client_version", data.ClientVersion))

	resp := shared.InitResponseData{
		SessionID:      session.id,
		WitnessAddress: w.address,
		WitnessURL:     w.publicURL,
		ServerVersion:  serverVersion,
	}
	return ws.WriteMessage(shared.CreateMessage(shared.MsgInitResponse, resp, session.id))
}

// handleClaimRequest runs the claim pipeline and returns the signed proof
func (w *Witness) handleClaimRequest(ctx context.Context, ws *shared.WSConnection, session *witnessSession, msg *shared.Message) error {
	if !session.initialized {
		return fmt.Errorf("session not initialized")
	}

	var data shared.ClaimRequestData
	if err := msg.UnmarshalData(&data); err != nil {
		return fmt.Errorf("invalid claim request data: %v", err)
	}

	proof, err := w.CreateClaim(ctx, &data)
	if err != nil {
		return err
	}

	return ws.WriteMessage(shared.CreateMessage(shared.MsgClaimResponse, shared.ClaimResponseData{Proof: proof}, session.id))
}

// sendError reports a failure back to the client without tearing down the
// connection
func (w *Witness) sendError(ws *shared.WSConnection, sessionID, code string, cause error) {
	msg := shared.CreateMessage(shared.MsgError, shared.ErrorData{Code: code, Message: cause.Error()}, sessionID)
	if err := ws.WriteMessage(msg); err != nil {
		logger.Error("Failed to send error message",
			zap.String("component", "Witness"),
			zap.String("operation", "sendError"),
			zap.Error(err))
	}
}
