package app

import (
	"github.com/marain-chat/marain-server/internal/v1/types"
)

// Command is one unit of work submitted to the App loop. User identifies the
// session that issued it.
type Command struct {
	User    types.User
	Payload CommandPayload
}

// CommandPayload is the payload union of a Command. The kind method doubles
// as the metrics and log label.
type CommandPayload interface {
	kind() string
}

// RegisterUser announces a fresh session. Sink is the channel the EventBus
// will deliver this user's events on; the App subscribes it before the
// command is handled.
type RegisterUser struct {
	Sink chan Event
}

// DropUser tears a session down. The user is removed from its room and, after
// the final UserLeft is published, unsubscribed from the EventBus.
type DropUser struct{}

// MoveUser relocates the user to TargetRoom, creating the room when it does
// not exist yet.
type MoveUser struct {
	TargetRoom types.Room
}

// RecordMessage appends a chat message to the user's current room.
type RecordMessage struct {
	Message string
}

func (RegisterUser) kind() string  { return "register_user" }
func (DropUser) kind() string      { return "drop_user" }
func (MoveUser) kind() string      { return "move_user" }
func (RecordMessage) kind() string { return "record_message" }
