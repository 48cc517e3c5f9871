package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NovaMeet/nova-call-service/internal/video"
)

// bridgeServer fakes the realtime bridge endpoint: it acks the connect frame
// and records every subsequent frame.
type bridgeServer struct {
	*httptest.Server

	mu         sync.Mutex
	connect    realtimeFrame
	frames     []realtimeFrame
	query      map[string]string
	rejectWith string
}

func newBridgeServer(t *testing.T) *bridgeServer {
	t.Helper()
	b := &bridgeServer{}
	upgrader := websocket.Upgrader{}

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.query = map[string]string{
			"api_key":  r.URL.Query().Get("api_key"),
			"call_cid": r.URL.Query().Get("call_cid"),
		}
		b.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var connect realtimeFrame
		if err := conn.ReadJSON(&connect); err != nil {
			return
		}
		b.mu.Lock()
		b.connect = connect
		reject := b.rejectWith
		b.mu.Unlock()

		if reject != "" {
			conn.WriteJSON(realtimeFrame{Type: "error", Error: reject})
			return
		}
		conn.WriteJSON(realtimeFrame{Type: "session.created"})

		for {
			var frame realtimeFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			b.mu.Lock()
			b.frames = append(b.frames, frame)
			b.mu.Unlock()
		}
	}))
	t.Cleanup(b.Server.Close)
	return b
}

func (b *bridgeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(b.URL, "http")
}

func (b *bridgeServer) recordedFrames() []realtimeFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtimeFrame(nil), b.frames...)
}

func (b *bridgeServer) waitForFrames(t *testing.T, n int) []realtimeFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if frames := b.recordedFrames(); len(frames) >= n {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames", n)
	return nil
}

func newBridgeClient(t *testing.T, wsURL string) *Client {
	t.Helper()
	c, err := NewClient(testAPIKey, testAPISecret, "http://unused", wsURL)
	require.NoError(t, err)
	return c
}

func TestConnectRealtimeAgent(t *testing.T) {
	bridge := newBridgeServer(t)
	c := newBridgeClient(t, bridge.wsURL())
	call := c.Call("default", "meeting-1")

	session, err := c.ConnectRealtimeAgent(context.Background(), call, video.ConnectOptions{
		OpenAIAPIKey: "sk-test",
		AgentUserID:  "agent-1",
	})
	require.NoError(t, err)
	defer session.Close()

	bridge.mu.Lock()
	connect := bridge.connect
	query := bridge.query
	bridge.mu.Unlock()

	assert.Equal(t, "connect", connect.Type)
	assert.Equal(t, "agent-1", connect.AgentUserID)
	assert.Equal(t, "sk-test", connect.OpenAIAPIKey)
	assert.Equal(t, "default:meeting-1", connect.CallCID)
	assert.NotEmpty(t, connect.Token)

	assert.Equal(t, testAPIKey, query["api_key"])
	assert.Equal(t, "default:meeting-1", query["call_cid"])
}

func TestConnectRealtimeAgentRejected(t *testing.T) {
	bridge := newBridgeServer(t)
	bridge.rejectWith = "call not found"
	c := newBridgeClient(t, bridge.wsURL())

	_, err := c.ConnectRealtimeAgent(context.Background(), c.Call("default", "meeting-1"), video.ConnectOptions{
		AgentUserID: "agent-1",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "call not found")
}

func TestConnectRealtimeAgentDialFailure(t *testing.T) {
	c := newBridgeClient(t, "ws://127.0.0.1:1")

	_, err := c.ConnectRealtimeAgent(context.Background(), c.Call("default", "meeting-1"), video.ConnectOptions{
		AgentUserID: "agent-1",
	})

	assert.Error(t, err)
}

func TestRealtimeSessionFrames(t *testing.T) {
	bridge := newBridgeServer(t)
	c := newBridgeClient(t, bridge.wsURL())

	session, err := c.ConnectRealtimeAgent(context.Background(), c.Call("default", "meeting-1"), video.ConnectOptions{
		AgentUserID: "agent-1",
	})
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.UpdateSession(context.Background(), video.SessionConfig{
		Instructions: "You are a helpful assistant.",
	}))
	require.NoError(t, session.SendInputText(context.Background(), "hello there"))

	frames := bridge.waitForFrames(t, 2)
	assert.Equal(t, "session.update", frames[0].Type)
	require.NotNil(t, frames[0].Session)
	assert.Equal(t, "You are a helpful assistant.", frames[0].Session.Instructions)
	assert.Equal(t, "conversation.input_text", frames[1].Type)
	assert.Equal(t, "hello there", frames[1].Text)
}

func TestRealtimeSessionCloseIdempotent(t *testing.T) {
	bridge := newBridgeServer(t)
	c := newBridgeClient(t, bridge.wsURL())

	session, err := c.ConnectRealtimeAgent(context.Background(), c.Call("default", "meeting-1"), video.ConnectOptions{
		AgentUserID: "agent-1",
	})
	require.NoError(t, err)

	first := session.Close()
	second := session.Close()
	assert.Equal(t, first, second)
}
