package stream

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/video"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	connectAckTimeout = 15 * time.Second
	writeTimeout      = 10 * time.Second

	// Validity of the token minted for the agent user joining the call.
	agentTokenValidity = 12 * time.Hour
)

// realtimeFrame is the JSON frame format on the realtime bridge socket.
type realtimeFrame struct {
	Type         string               `json:"type"`
	Token        string               `json:"token,omitempty"`
	AgentUserID  string               `json:"agent_user_id,omitempty"`
	OpenAIAPIKey string               `json:"openai_api_key,omitempty"`
	CallCID      string               `json:"call_cid,omitempty"`
	Session      *video.SessionConfig `json:"session,omitempty"`
	Text         string               `json:"text,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// ConnectRealtimeAgent opens the provider's realtime bridge socket for a call
// and asks it to join the AI backend as the given agent user. The returned
// session stays connected until Close.
func (c *Client) ConnectRealtimeAgent(ctx context.Context, call video.Call, opts video.ConnectOptions) (video.RealtimeSession, error) {
	agentToken, err := c.CreateUserToken(opts.AgentUserID, agentTokenValidity)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent user token: %w", err)
	}

	wsURL := fmt.Sprintf("%s?api_key=%s&call_cid=%s",
		c.realtimeURL, c.apiKey, url.QueryEscape(call.CID()))

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime bridge: %w", err)
	}

	connect := realtimeFrame{
		Type:         "connect",
		Token:        agentToken,
		AgentUserID:  opts.AgentUserID,
		OpenAIAPIKey: opts.OpenAIAPIKey,
		CallCID:      call.CID(),
	}
	if err := conn.WriteJSON(connect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send connect frame: %w", err)
	}

	// The bridge acks with session.created once the agent has joined.
	conn.SetReadDeadline(time.Now().Add(connectAckTimeout))
	var ack realtimeFrame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read connect ack: %w", err)
	}
	if ack.Type != "session.created" {
		conn.Close()
		if ack.Error != "" {
			return nil, fmt.Errorf("realtime bridge rejected connect: %s", ack.Error)
		}
		return nil, fmt.Errorf("unexpected connect ack: %s", ack.Type)
	}
	conn.SetReadDeadline(time.Time{})

	session := &RealtimeSession{
		conn:    conn,
		callCID: call.CID(),
	}
	go session.readLoop()

	logger.Base().Info("realtime agent session connected",
		zap.String("call_cid", call.CID()),
		zap.String("agent_user_id", opts.AgentUserID),
	)
	return session, nil
}

// RealtimeSession is a live websocket bridge to the provider's realtime
// endpoint. Writes are serialized with a mutex; gorilla allows one concurrent
// writer only.
type RealtimeSession struct {
	conn    *websocket.Conn
	callCID string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *RealtimeSession) writeFrame(ctx context.Context, frame realtimeFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", frame.Type, err)
	}
	return nil
}

// UpdateSession replaces the session's behavioral configuration.
func (s *RealtimeSession) UpdateSession(ctx context.Context, cfg video.SessionConfig) error {
	return s.writeFrame(ctx, realtimeFrame{Type: "session.update", Session: &cfg})
}

// SendInputText forwards conversational text to the session.
func (s *RealtimeSession) SendInputText(ctx context.Context, text string) error {
	return s.writeFrame(ctx, realtimeFrame{Type: "conversation.input_text", Text: text})
}

// Close sends a close frame and tears the connection down. Idempotent.
func (s *RealtimeSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		s.closeErr = s.conn.Close()
		logger.Base().Info("realtime agent session closed", zap.String("call_cid", s.callCID))
	})
	return s.closeErr
}

// readLoop drains inbound frames so control messages are processed and the
// connection's read buffer never fills. Exits when the socket closes.
func (s *RealtimeSession) readLoop() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
