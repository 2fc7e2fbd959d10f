// Package transport owns the WebSocket surface: the Hub that upgrades
// connections and runs the login handshake, and the SessionWorker that
// shuttles frames between one client and the app loop.
package transport

import "time"

// wsConnection defines the interface for WebSocket connection operations.
// *websocket.Conn satisfies it; tests inject mocks.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error) // Read the next message from the connection
	WriteMessage(messageType int, data []byte) error     // Write a message to the connection
	Close() error                                        // Close the connection
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}
