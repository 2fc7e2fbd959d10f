package types

import (
	"fmt"
	"time"
)

// --- Core Domain Types ---

// Room identifies a chat room by name. Rooms are created lazily on first
// move and live for the process lifetime.
type Room string

// Hub is the landing room every user is placed in after login. It exists
// from process start and is never destroyed.
const Hub Room = "Hub"

// ServerNotifier is the author recorded on every server-issued notification.
const ServerNotifier = "SERVER"

// User is the identity of one authenticated connection. Equality is by the
// full tuple; in practice ID is unique per live session, so User values are
// safe to use as map keys for session-scoped registries.
type User struct {
	ID           string
	Name         string
	SharedSecret [32]byte
}

// NewUser builds a User from a server-assigned id, the self-asserted login
// name, and the ECDH-derived session key.
func NewUser(id, name string, sharedSecret [32]byte) User {
	return User{ID: id, Name: name, SharedSecret: sharedSecret}
}

// --- Room Log Entries ---

// MessageLog is one chat message recorded in a room's history.
type MessageLog struct {
	Username  string
	Timestamp time.Time
	Contents  string
}

// String renders the log entry in its display form, e.g.
// "[ alice | 13-05-59 ]: hello".
func (m MessageLog) String() string {
	return fmt.Sprintf("[ %s | %s ]: %s", m.Username, m.Timestamp.UTC().Format("15-04-05"), m.Contents)
}

// NotificationLog is a server-authored notice recorded in a room's history,
// e.g. "alice joined Hub".
type NotificationLog struct {
	Notifier  string
	Timestamp time.Time
	Contents  string
}

// NewNotification stamps a notice with the SERVER notifier and the current
// UTC time.
func NewNotification(text string) NotificationLog {
	return NotificationLog{
		Notifier:  ServerNotifier,
		Timestamp: time.Now().UTC(),
		Contents:  text,
	}
}

// --- Snapshots ---

// RoomSnapshot is the view of a room captured while the App owns the state,
// sent inside UserJoined/UserLeft events to prime a recipient's view.
type RoomSnapshot struct {
	ChatLogs      []MessageLog
	Notifications []NotificationLog
	OccupantNames []string
}
