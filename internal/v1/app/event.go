package app

import (
	"github.com/marain-chat/marain-server/internal/v1/types"
)

// Event is what sessions receive back from the App loop. The kind method
// doubles as the metrics label.
type Event interface {
	kind() string
}

// UserRegistered confirms a RegisterUser command. Token is the user id the
// client must present on every frame; the session only logs it since the
// LoginSuccess reply already went out during the handshake.
type UserRegistered struct {
	Token string
}

// UserJoined announces that User entered Room. Snapshot is the room's state
// just after the join, so recipients can prime or refresh their view.
type UserJoined struct {
	User     types.User
	Room     types.Room
	Snapshot types.RoomSnapshot
}

// UserLeft announces that User left Room. Snapshot is the room's state just
// after the departure. A UserLeft carrying the session's own user is the
// terminal event a session waits for before exiting.
type UserLeft struct {
	User     types.User
	Room     types.Room
	Snapshot types.RoomSnapshot
}

// MsgReceived carries one chat message to each occupant of the room it was
// posted in, the sender included.
type MsgReceived struct {
	Msg types.MessageLog
}

func (UserRegistered) kind() string { return "user_registered" }
func (UserJoined) kind() string     { return "user_joined" }
func (UserLeft) kind() string       { return "user_left" }
func (MsgReceived) kind() string    { return "msg_received" }

// Broadcast pairs an event with its delivery list. Recipients are enumerated
// in occupancy insertion order so observers see a stable ordering.
type Broadcast struct {
	Event      Event
	Recipients []types.User
}
