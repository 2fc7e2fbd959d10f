package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marain-chat/marain-server/internal/v1/app"
	"github.com/marain-chat/marain-server/internal/v1/wire"
)

// testServer wires a real gin router, gateway, and app loop around a Hub.
type testServer struct {
	hub *Hub
	gw  *app.Gateway
	a   *app.App
	srv *httptest.Server
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := app.NewGateway(64)
	a := app.New(gw.Commands())
	go gw.Run(context.Background())
	go a.Run(context.Background())

	hub := NewHub(gw.Sink(), opts)

	router := gin.New()
	router.GET("/ws", hub.ServeWs)
	srv := httptest.NewServer(router)

	ts := &testServer{hub: hub, gw: gw, a: a, srv: srv}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(shutdownCtx)
		gw.Close()
		<-a.Done()
		srv.Close()
	})
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(), nil)
	require.NoError(t, err)
	return conn
}

// loginClient performs the client side of the handshake and returns the
// session token and derived key.
func loginClient(t *testing.T, conn *websocket.Conn, name string) (token string, key [32]byte) {
	t.Helper()

	clientPublic, clientSecret, err := wire.GenerateKeyPair()
	require.NoError(t, err)

	frame, err := wire.MarshalClient(wire.ClientMsg{
		Timestamp: wire.Now(),
		Body:      wire.Login{Name: name, ClientPublicKey: clientPublic},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)

	// The LoginSuccess is the one plaintext reply of the session.
	msg, err := wire.UnmarshalServer(data)
	require.NoError(t, err)
	require.Equal(t, wire.StatusCodeYes, msg.Status.Code)
	success, ok := msg.Body.(wire.LoginSuccess)
	require.True(t, ok, "expected LoginSuccess, got %T", msg.Body)

	key, err = wire.SharedSecret(clientSecret, success.PublicKey)
	require.NoError(t, err)
	return success.Token, key
}

// readServerMsg reads and opens the next encrypted frame.
func readServerMsg(t *testing.T, conn *websocket.Conn, key [32]byte) wire.ServerMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)
	plaintext, err := wire.Decrypt(key, data)
	require.NoError(t, err)
	msg, err := wire.UnmarshalServer(plaintext)
	require.NoError(t, err)
	return msg
}

func sendClientMsg(t *testing.T, conn *websocket.Conn, token string, key [32]byte, body wire.ClientBody) {
	t.Helper()
	frame, err := wire.MarshalClient(wire.ClientMsg{Token: &token, Timestamp: wire.Now(), Body: body})
	require.NoError(t, err)
	sealed, err := wire.Encrypt(key, frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, sealed))
}

func TestHub_LoginSendReceive(t *testing.T) {
	ts := newTestServer(t, Options{})

	conn := ts.dial(t)
	defer conn.Close()

	token, key := loginClient(t, conn, "alice")
	assert.Len(t, token, 32, "token is an uppercase-hex uuid")
	assert.Equal(t, strings.ToUpper(token), token)

	// The join snapshot for Hub arrives first.
	msg := readServerMsg(t, conn, key)
	joined, ok := msg.Body.(wire.RoomData)
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, joined.Occupants)

	// The sender is part of the chat broadcast.
	sendClientMsg(t, conn, token, key, wire.SendToRoom{Contents: "hello"})
	msg = readServerMsg(t, conn, key)
	recv, ok := msg.Body.(wire.ChatRecv)
	require.True(t, ok)
	assert.False(t, recv.Direct)
	assert.Equal(t, "alice", recv.ChatMsg.Sender)
	assert.Equal(t, "hello", recv.ChatMsg.Content)
}

func TestHub_EachSessionGetsOwnKey(t *testing.T) {
	ts := newTestServer(t, Options{})

	a := ts.dial(t)
	defer a.Close()
	b := ts.dial(t)
	defer b.Close()

	_, aliceKey := loginClient(t, a, "alice")
	_, bobKey := loginClient(t, b, "bob")

	assert.NotEqual(t, aliceKey, bobKey, "per-connection ephemeral keys must differ")
}

func TestHub_MoveCreatesRoom(t *testing.T) {
	ts := newTestServer(t, Options{})

	conn := ts.dial(t)
	defer conn.Close()
	token, key := loginClient(t, conn, "alice")

	msg := readServerMsg(t, conn, key)
	_, ok := msg.Body.(wire.RoomData)
	require.True(t, ok)

	sendClientMsg(t, conn, token, key, wire.Move{Target: "lobby"})

	// Leaving Hub, then joining lobby; the join snapshot shows the new room.
	left, ok := readServerMsg(t, conn, key).Body.(wire.RoomData)
	require.True(t, ok)
	assert.NotContains(t, left.Occupants, "alice")

	joined, ok := readServerMsg(t, conn, key).Body.(wire.RoomData)
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, joined.Occupants)
}

func TestHub_LoginFailure_TextFrame(t *testing.T) {
	ts := newTestServer(t, Options{})

	conn := ts.dial(t)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello?")))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)

	msg, err := wire.UnmarshalServer(data)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusCodeJustNo, msg.Status.Code)
	assert.IsType(t, wire.Empty{}, msg.Body)

	// The server closes after the refusal; the user never entered a room.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_LoginFailure_Garbage(t *testing.T) {
	ts := newTestServer(t, Options{})

	conn := ts.dial(t)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02, 0x03}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := wire.UnmarshalServer(data)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusCodeJustNo, msg.Status.Code)
}

func TestHub_HandshakeTimeout(t *testing.T) {
	ts := newTestServer(t, Options{HandshakeTimeout: 100 * time.Millisecond})

	conn := ts.dial(t)
	defer conn.Close()

	// Send nothing; the server abandons the idle socket.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_Shutdown(t *testing.T) {
	ts := newTestServer(t, Options{})

	conn := ts.dial(t)
	defer conn.Close()
	_, key := loginClient(t, conn, "alice")
	_, ok := readServerMsg(t, conn, key).Body.(wire.RoomData)
	require.True(t, ok)
	require.Equal(t, 1, ts.hub.SessionCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.hub.Shutdown(shutdownCtx))
	assert.Equal(t, 0, ts.hub.SessionCount())

	// The client observes an orderly close.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure) ||
				!websocket.IsUnexpectedCloseError(err), "unexpected close error: %v", err)
			break
		}
	}
}

func TestValidateOrigin(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://chat.example.com"}

	tests := []struct {
		name    string
		origin  string
		allowed []string
		wantErr bool
	}{
		{"no origin header", "", allowed, false},
		{"empty allowlist admits anyone", "http://evil.test", nil, false},
		{"allowed origin", "http://localhost:3000", allowed, false},
		{"allowed https origin", "https://chat.example.com", allowed, false},
		{"scheme mismatch", "https://localhost:3000", allowed, true},
		{"host mismatch", "http://attacker.test", allowed, true},
		{"subdomain is not the host", "https://evil.chat.example.com", allowed, true},
		{"port mismatch", "http://localhost:3001", allowed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			err := validateOrigin(r, tt.allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})

	header := http.Header{}
	header.Set("Origin", "http://attacker.test")
	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
