package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/marain-chat/marain-server/internal/v1/app"
	"github.com/marain-chat/marain-server/internal/v1/logging"
	"github.com/marain-chat/marain-server/internal/v1/types"
	"github.com/marain-chat/marain-server/internal/v1/wire"
)

// writeWait bounds every socket write.
const writeWait = 10 * time.Second

// drainWait bounds the post-DropUser wait for the terminal UserLeft. It only
// trips if the app loop died mid-shutdown.
const drainWait = 5 * time.Second

// inboundFrame is one read off the socket, error included, so the main loop
// can select between the client and the event bus.
type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// SessionWorker shuttles traffic for one authenticated connection: client
// frames are decrypted, parsed, and translated into commands; events from
// the app loop are rendered, encrypted, and written back. It is the sole
// writer on its socket.
type SessionWorker struct {
	user     types.User
	conn     wsConnection
	commands chan<- app.Command
	events   chan app.Event
	frames   chan inboundFrame
}

// newSessionWorker wires a worker around an already-handshaken connection.
// eventBuffer caps the sink the event bus delivers into.
func newSessionWorker(user types.User, conn wsConnection, commands chan<- app.Command, eventBuffer int) *SessionWorker {
	return &SessionWorker{
		user:     user,
		conn:     conn,
		commands: commands,
		events:   make(chan app.Event, eventBuffer),
		frames:   make(chan inboundFrame, 16),
	}
}

// Run registers the session with the app loop, pumps frames and events until
// the connection ends or ctx is cancelled, then walks the shutdown path. The
// shutdown path is never skipped: the worker returns only after the app has
// processed its DropUser.
func (w *SessionWorker) Run(ctx context.Context) {
	w.commands <- app.Command{User: w.user, Payload: app.RegisterUser{Sink: w.events}}

	go w.readPump()

	w.mainLoop(ctx)
	w.endSession(ctx)
	w.reap()
}

// reap closes the connection and waits for the read pump to exit, so no
// goroutine outlives the session.
func (w *SessionWorker) reap() {
	_ = w.conn.Close()
	if w.frames == nil {
		return
	}
	for range w.frames {
	}
}

// readPump moves socket reads onto the frames channel so the main loop can
// select over them. It exits when the read side errors, which includes the
// connection being closed underneath it.
func (w *SessionWorker) readPump() {
	defer close(w.frames)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// Non-blocking: by the time the connection dies the main loop
			// may already have stopped consuming.
			select {
			case w.frames <- inboundFrame{err: err}:
			default:
			}
			return
		}
		w.frames <- inboundFrame{messageType: messageType, data: data}
	}
}

// mainLoop races the client's frames against the session's subscribed
// events. Per-frame errors are recovered locally; transport and crypto
// failures break the loop.
func (w *SessionWorker) mainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logging.Info(ctx, "session cancelled", zap.String("user_id", w.user.ID))
			return
		case frame, ok := <-w.frames:
			if !ok || frame.err != nil {
				if frame.err != nil && !websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Info(ctx, "socket read ended", zap.Error(frame.err), zap.String("user_id", w.user.ID))
				}
				return
			}
			if !w.handleFrame(ctx, frame) {
				return
			}
		case ev := <-w.events:
			if !w.handleEvent(ctx, ev) {
				return
			}
		}
	}
}

// handleFrame decrypts and dispatches one client frame. Returns false when
// the session must end.
func (w *SessionWorker) handleFrame(ctx context.Context, frame inboundFrame) bool {
	if frame.messageType != websocket.BinaryMessage {
		logging.Warn(ctx, "ignoring non-binary frame",
			zap.Int("message_type", frame.messageType),
			zap.String("user_id", w.user.ID))
		return true
	}

	plaintext, err := wire.Decrypt(w.user.SharedSecret, frame.data)
	if err != nil {
		// A frame that fails to decrypt means the session key is desynced;
		// nothing after it can be trusted.
		logging.Warn(ctx, "frame decryption failed, ending session", zap.Error(err), zap.String("user_id", w.user.ID))
		return false
	}

	msg, err := wire.UnmarshalClient(plaintext)
	if err != nil {
		logging.Warn(ctx, "skipping undecodable frame", zap.Error(err), zap.String("user_id", w.user.ID))
		return true
	}

	if msg.Token == nil || *msg.Token != w.user.ID {
		logging.Warn(ctx, "skipping frame with wrong token",
			zap.String("user_id", w.user.ID),
			zap.String("token", logging.RedactToken(tokenOrEmpty(msg.Token))))
		return true
	}

	switch body := msg.Body.(type) {
	case wire.SendToRoom:
		w.commands <- app.Command{User: w.user, Payload: app.RecordMessage{Message: body.Contents}}
	case wire.Move:
		w.commands <- app.Command{User: w.user, Payload: app.MoveUser{TargetRoom: types.Room(body.Target)}}
	case wire.GetTime:
		// Answered locally; time requests never reach the app loop.
		reply := wire.ServerMsg{Status: wire.StatusYes(), Timestamp: wire.Now(), Body: wire.Empty{}}
		return w.send(ctx, reply)
	default:
		logging.Warn(ctx, "skipping unexpected client body", zap.String("user_id", w.user.ID))
	}
	return true
}

// handleEvent renders one bus event onto the wire. Returns false when the
// session must end.
func (w *SessionWorker) handleEvent(ctx context.Context, ev app.Event) bool {
	switch e := ev.(type) {
	case app.UserRegistered:
		// The LoginSuccess already went out during the handshake.
		logging.Info(ctx, "session registered",
			zap.String("user_id", w.user.ID),
			zap.String("token", logging.RedactToken(e.Token)))
		return true
	case app.MsgReceived:
		return w.send(ctx, renderChatRecv(e.Msg))
	case app.UserJoined:
		ts := wire.Now()
		return w.send(ctx, wire.ServerMsg{Status: wire.StatusYes(), Timestamp: ts, Body: renderRoomData(e.Snapshot, ts)})
	case app.UserLeft:
		ts := wire.Now()
		return w.send(ctx, wire.ServerMsg{Status: wire.StatusYes(), Timestamp: ts, Body: renderRoomData(e.Snapshot, ts)})
	default:
		logging.Warn(ctx, "skipping unexpected event", zap.String("user_id", w.user.ID))
		return true
	}
}

// send serializes, encrypts, and writes one server message. A failure at any
// stage ends the session; the write side is not recoverable per frame.
func (w *SessionWorker) send(ctx context.Context, msg wire.ServerMsg) bool {
	data, err := wire.MarshalServer(msg)
	if err != nil {
		logging.Error(ctx, "failed to serialize server message", zap.Error(err), zap.String("user_id", w.user.ID))
		return false
	}
	sealed, err := wire.Encrypt(w.user.SharedSecret, data)
	if err != nil {
		logging.Error(ctx, "failed to encrypt server message", zap.Error(err), zap.String("user_id", w.user.ID))
		return false
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, sealed); err != nil {
		logging.Warn(ctx, "socket write failed", zap.Error(err), zap.String("user_id", w.user.ID))
		return false
	}
	return true
}

// endSession tells the app loop the user is gone and waits for the terminal
// UserLeft carrying this session's user, so state cleanup is complete before
// the worker returns. Everything else still queued on the sink is discarded.
func (w *SessionWorker) endSession(ctx context.Context) {
	w.commands <- app.Command{User: w.user, Payload: app.DropUser{}}

	deadline := time.After(drainWait)
	for {
		select {
		case _, ok := <-w.frames:
			// Keep the read pump unblocked while the drop settles.
			if !ok {
				w.frames = nil
			}
		case ev := <-w.events:
			if left, ok := ev.(app.UserLeft); ok && left.User.ID == w.user.ID {
				_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				logging.Info(ctx, "session ended", zap.String("user_id", w.user.ID))
				return
			}
		case <-deadline:
			logging.Error(ctx, "timed out waiting for terminal UserLeft", zap.String("user_id", w.user.ID))
			return
		}
	}
}

func tokenOrEmpty(token *string) string {
	if token == nil {
		return ""
	}
	return *token
}
