package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marain-chat/marain-server/internal/v1/types"
	"github.com/marain-chat/marain-server/internal/v1/wire"
)

var errMockClosed = errors.New("mock connection closed")

type mockFrame struct {
	messageType int
	data        []byte
}

// MockConnection implements wsConnection over channels: the test plays the
// client by queueing inbound frames and reading what the server wrote.
type MockConnection struct {
	inbound   chan mockFrame
	written   chan mockFrame
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMockConnection() *MockConnection {
	return &MockConnection{
		inbound: make(chan mockFrame, 64),
		written: make(chan mockFrame, 256),
		closed:  make(chan struct{}),
	}
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	select {
	case f := <-m.inbound:
		return f.messageType, f.data, nil
	case <-m.closed:
		return 0, nil, errMockClosed
	}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	select {
	case <-m.closed:
		return errMockClosed
	default:
	}
	m.written <- mockFrame{messageType: messageType, data: data}
	return nil
}

func (m *MockConnection) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *MockConnection) SetReadDeadline(_ time.Time) error  { return nil }
func (m *MockConnection) SetWriteDeadline(_ time.Time) error { return nil }

// ClientSend queues one frame as if the client had sent it.
func (m *MockConnection) ClientSend(messageType int, data []byte) {
	m.inbound <- mockFrame{messageType: messageType, data: data}
}

// NextWritten returns the next frame the server wrote, failing the test on
// timeout.
func (m *MockConnection) NextWritten(t *testing.T) mockFrame {
	t.Helper()
	select {
	case f := <-m.written:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a written frame")
		return mockFrame{}
	}
}

// NextServerMsg reads, decrypts, and parses the next binary frame the server
// wrote, skipping close frames is the caller's concern.
func (m *MockConnection) NextServerMsg(t *testing.T, key [32]byte) wire.ServerMsg {
	t.Helper()
	f := m.NextWritten(t)
	if f.messageType != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame, got type %d", f.messageType)
	}
	plaintext, err := wire.Decrypt(key, f.data)
	if err != nil {
		t.Fatalf("failed to decrypt server frame: %v", err)
	}
	msg, err := wire.UnmarshalServer(plaintext)
	if err != nil {
		t.Fatalf("failed to parse server frame: %v", err)
	}
	return msg
}

// testUser builds a deterministic user for direct session tests.
func testUser(name string) types.User {
	var key [32]byte
	copy(key[:], name+"-secret-0123456789abcdef01234567")
	return types.NewUser("ID-"+name, name, key)
}

// encryptedClientFrame marshals and seals a client message with the session
// key.
func encryptedClientFrame(t *testing.T, key [32]byte, msg wire.ClientMsg) []byte {
	t.Helper()
	data, err := wire.MarshalClient(msg)
	if err != nil {
		t.Fatalf("failed to marshal client message: %v", err)
	}
	sealed, err := wire.Encrypt(key, data)
	if err != nil {
		t.Fatalf("failed to encrypt client message: %v", err)
	}
	return sealed
}
