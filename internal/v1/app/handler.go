package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/marain-chat/marain-server/internal/v1/logging"
	"github.com/marain-chat/marain-server/internal/v1/types"
)

// CommandHandler applies one command at a time to AppState and produces this
// command's broadcasts in delivery order. Mutation failures are logged and
// the command completes; nothing is surfaced to the transport.
type CommandHandler struct {
	state *AppState
}

func NewCommandHandler(state *AppState) *CommandHandler {
	return &CommandHandler{state: state}
}

// Handle processes cmd, appending broadcasts to buf. The returned slice must
// be published in order, each broadcast fully before the next.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command, buf []Broadcast) []Broadcast {
	switch p := cmd.Payload.(type) {
	case RegisterUser:
		return h.register(ctx, cmd.User, buf)
	case MoveUser:
		return h.move(ctx, cmd.User, p.TargetRoom, buf)
	case RecordMessage:
		return h.record(ctx, cmd.User, p.Message, buf)
	case DropUser:
		return h.drop(ctx, cmd.User, buf)
	default:
		logging.Warn(ctx, "unhandled command payload", zap.String("kind", cmd.Payload.kind()))
		return buf
	}
}

// register lands the user in Hub and announces it: first the registration
// receipt to the user alone, then the join to every Hub occupant.
func (h *CommandHandler) register(ctx context.Context, user types.User, buf []Broadcast) []Broadcast {
	h.state.AddUserToRoom(user, types.Hub)
	h.state.RecordNotification(ctx, user, types.NewNotification(fmt.Sprintf("%s joined %s", user.Name, types.Hub)))

	buf = append(buf, Broadcast{
		Event:      UserRegistered{Token: user.ID},
		Recipients: []types.User{user},
	})
	return append(buf, Broadcast{
		Event:      UserJoined{User: user, Room: types.Hub, Snapshot: h.state.SnapshotRoom(types.Hub)},
		Recipients: h.state.Occupants(types.Hub),
	})
}

// move relocates the user: UserLeft for the old room, then UserJoined for
// the target. Moving to the current room re-emits both. A user that turned
// out to be roomless is logged and still lands in the target.
func (h *CommandHandler) move(ctx context.Context, user types.User, target types.Room, buf []Broadcast) []Broadcast {
	if target == "" {
		logging.Warn(ctx, "move to unnamed room ignored", zap.String("user_id", user.ID))
		return buf
	}

	old, found := h.state.RemoveUserFromCurrentRoom(ctx, user)
	if found {
		buf = append(buf, Broadcast{
			Event:      UserLeft{User: user, Room: old, Snapshot: h.state.SnapshotRoom(old)},
			Recipients: forceRecipient(h.state.Occupants(old), user),
		})
	}

	h.state.AddUserToRoom(user, target)
	h.state.RecordNotification(ctx, user, types.NewNotification(fmt.Sprintf("%s joined %s", user.Name, target)))

	return append(buf, Broadcast{
		Event:      UserJoined{User: user, Room: target, Snapshot: h.state.SnapshotRoom(target)},
		Recipients: h.state.Occupants(target),
	})
}

// record stamps the message and broadcasts it to the sender's room, sender
// included.
func (h *CommandHandler) record(ctx context.Context, user types.User, contents string, buf []Broadcast) []Broadcast {
	msg := types.MessageLog{
		Username:  user.Name,
		Timestamp: time.Now().UTC(),
		Contents:  contents,
	}
	recipients, ok := h.state.RecordChat(ctx, user, msg)
	if !ok {
		return buf
	}
	return append(buf, Broadcast{
		Event:      MsgReceived{Msg: msg},
		Recipients: recipients,
	})
}

// drop removes the user and always emits a UserLeft with the user forced
// into the recipients, so the departing session sees its terminal event even
// when its occupancy entry was already gone.
func (h *CommandHandler) drop(ctx context.Context, user types.User, buf []Broadcast) []Broadcast {
	old, found := h.state.RemoveUserFromCurrentRoom(ctx, user)
	if !found {
		return append(buf, Broadcast{
			Event:      UserLeft{User: user},
			Recipients: []types.User{user},
		})
	}
	return append(buf, Broadcast{
		Event:      UserLeft{User: user, Room: old, Snapshot: h.state.SnapshotRoom(old)},
		Recipients: forceRecipient(h.state.Occupants(old), user),
	})
}

// forceRecipient guarantees u appears in the delivery list while preserving
// the occupancy ordering for everyone else.
func forceRecipient(recipients []types.User, u types.User) []types.User {
	ids := set.New[string]()
	for _, r := range recipients {
		ids.Insert(r.ID)
	}
	if ids.Has(u.ID) {
		return recipients
	}
	return append(recipients, u)
}
