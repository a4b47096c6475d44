package voicelive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arzzra/voicegateway/pkg/bridge"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockVoiceLiveServer is a minimal websocket test double for the remote
// service, grounded on the teacher's
// pkg/sip/dialog/integration/client/client_test.go mock server pattern.
type mockVoiceLiveServer struct {
	*httptest.Server
	upgrader websocket.Upgrader
}

func newMockVoiceLiveServer(handler func(*websocket.Conn)) *mockVoiceLiveServer {
	m := &mockVoiceLiveServer{upgrader: websocket.Upgrader{}}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	return m
}

func (m *mockVoiceLiveServer) wsURL() string {
	return "ws" + strings.TrimPrefix(m.Server.URL, "http")
}

func dialTestClient(t *testing.T, wsURL string) *Client {
	t.Helper()
	cfg := Config{Endpoint: wsURL, APIKey: "k", Model: "gpt-realtime", APIVersion: "2025-10-01"}
	c, err := dialRaw(context.Background(), cfg, wsURL)
	require.NoError(t, err)
	return c
}

func TestClientSendInputAudioEncodesBase64(t *testing.T) {
	received := make(chan string, 1)
	server := newMockVoiceLiveServer(func(conn *websocket.Conn) {
		var msg wireInputAudioAppend
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg.Audio
		}
	})
	defer server.Close()

	c := dialTestClient(t, server.wsURL())
	defer c.Close()

	errCh := c.SendInputAudio([]byte{0x10, 0x20, 0x30})
	require.NoError(t, <-errCh)

	select {
	case got := <-received:
		assert.NotEmpty(t, got)
	case <-time.After(time.Second):
		t.Fatal("server never received input audio")
	}
}

func TestClientSendEventResponseCreate(t *testing.T) {
	received := make(chan wireEnvelope, 1)
	server := newMockVoiceLiveServer(func(conn *websocket.Conn) {
		var env wireEnvelope
		if err := conn.ReadJSON(&env); err == nil {
			received <- env
		}
	})
	defer server.Close()

	c := dialTestClient(t, server.wsURL())
	defer c.Close()

	require.NoError(t, c.SendEvent(bridge.ClientEvent{Type: bridge.ClientEventResponseCreate}))

	select {
	case env := <-received:
		assert.Equal(t, "response.create", env.Type)
	case <-time.After(time.Second):
		t.Fatal("server never received response.create")
	}
}

func TestClientEventsDeliversDecodedServerEvents(t *testing.T) {
	server := newMockVoiceLiveServer(func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "session.created", "session": map[string]any{"id": "sess-xyz"}})
		time.Sleep(50 * time.Millisecond)
	})
	defer server.Close()

	c := dialTestClient(t, server.wsURL())
	defer c.Close()

	select {
	case evt := <-c.Events():
		assert.Equal(t, bridge.EventSessionCreated, evt.Type)
		assert.Equal(t, "sess-xyz", evt.SessionID)
	case <-time.After(time.Second):
		t.Fatal("client never delivered session.created")
	}
}

func TestClientCloseClosesEventsChannel(t *testing.T) {
	server := newMockVoiceLiveServer(func(conn *websocket.Conn) {
		time.Sleep(2 * time.Second)
	})
	defer server.Close()

	c := dialTestClient(t, server.wsURL())
	require.NoError(t, c.Close())

	_, ok := <-c.Events()
	assert.False(t, ok)
}
