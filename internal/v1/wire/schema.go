// Package wire defines the binary protocol spoken between clients and the
// server: the message schema, a compact tag-then-payload codec, and the
// session-layer cryptography (X25519 key agreement, AES-256-CBC framing).
//
// Serialization and encryption are pure functions with no knowledge of
// sessions or rooms; the transport layer composes them per frame.
package wire

import "time"

// Timestamp is a UTC instant with millisecond precision, carried on the wire
// as a 64-bit Unix-milliseconds integer.
type Timestamp int64

// Now captures the current instant.
func Now() Timestamp {
	return At(time.Now())
}

// At converts a time.Time to its wire representation. Sub-millisecond
// precision is discarded.
func At(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts the wire representation back to a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

// --- Client Messages ---

// ClientMsg is every frame a client sends. Token is nil only on the initial
// Login frame; every authenticated frame carries the server-issued token.
type ClientMsg struct {
	Token     *string
	Timestamp Timestamp
	Body      ClientBody
}

// ClientBody is the payload union of a ClientMsg. Exactly one concrete type
// below is carried per message.
type ClientBody interface {
	isClientBody()
}

// Login opens the handshake: the self-asserted username and the client's
// ephemeral X25519 public key.
type Login struct {
	Name            string
	ClientPublicKey [32]byte
}

// SendToRoom posts a chat message to the sender's current room.
type SendToRoom struct {
	Contents string
}

// Move requests relocation to the named room, creating it if absent.
type Move struct {
	Target string
}

// GetTime asks for the server clock. Answered locally by the session worker.
type GetTime struct{}

func (Login) isClientBody()      {}
func (SendToRoom) isClientBody() {}
func (Move) isClientBody()       {}
func (GetTime) isClientBody()    {}

// --- Server Messages ---

// StatusCode discriminates the Status union.
type StatusCode uint32

const (
	StatusCodeYes    StatusCode = 0
	StatusCodeNo     StatusCode = 1
	StatusCodeJustNo StatusCode = 2
)

// Status is the server's verdict on a frame. Reason is meaningful only when
// Code is StatusCodeNo.
type Status struct {
	Code   StatusCode
	Reason string
}

// StatusYes is the affirmative status carried on ordinary server messages.
func StatusYes() Status {
	return Status{Code: StatusCodeYes}
}

// StatusNo is a refusal with an explanation for the client.
func StatusNo(reason string) Status {
	return Status{Code: StatusCodeNo, Reason: reason}
}

// StatusJustNo is a refusal without explanation, sent on login failure.
func StatusJustNo() Status {
	return Status{Code: StatusCodeJustNo}
}

// ServerMsg is every frame the server sends.
type ServerMsg struct {
	Status    Status
	Timestamp Timestamp
	Body      ServerBody
}

// ServerBody is the payload union of a ServerMsg.
type ServerBody interface {
	isServerBody()
}

// Empty carries no payload; used for time replies and login refusals.
type Empty struct{}

// LoginSuccess completes the handshake: the session token the client must
// echo on every frame, and the server's X25519 public key.
type LoginSuccess struct {
	Token     string
	PublicKey [32]byte
}

// ChatMsg is one rendered chat line inside ChatRecv and RoomData payloads.
type ChatMsg struct {
	Sender    string
	Timestamp Timestamp
	Content   string
}

// ChatRecv delivers a single chat message to a room occupant.
type ChatRecv struct {
	Direct  bool
	ChatMsg ChatMsg
}

// RoomData is a room snapshot: the retained logs and the occupant names as
// of QueryTS. Sent when the recipient's room membership changes.
type RoomData struct {
	QueryTS   Timestamp
	Logs      []ChatMsg
	Occupants []string
}

func (Empty) isServerBody()        {}
func (LoginSuccess) isServerBody() {}
func (ChatRecv) isServerBody()     {}
func (RoomData) isServerBody()     {}
