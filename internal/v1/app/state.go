package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marain-chat/marain-server/internal/v1/logging"
	"github.com/marain-chat/marain-server/internal/v1/metrics"
	"github.com/marain-chat/marain-server/internal/v1/types"
)

// logCap bounds each room's chat and notification history; the oldest entry
// is evicted when a 26th is pushed.
const logCap = 25

// AppState is the authoritative mapping of rooms to occupants and histories.
// It is owned exclusively by the App task: no locking, no access from any
// other goroutine. Every room present in occupancy has entries in chatLogs
// and notifications, and a user occupies at most one room at a time.
type AppState struct {
	occupancy     map[types.Room][]types.User
	chatLogs      map[types.Room][]types.MessageLog
	notifications map[types.Room][]types.NotificationLog
}

// NewAppState starts with the Hub room and nothing else; further rooms are
// created lazily by moves and never destroyed.
func NewAppState() *AppState {
	s := &AppState{
		occupancy:     make(map[types.Room][]types.User),
		chatLogs:      make(map[types.Room][]types.MessageLog),
		notifications: make(map[types.Room][]types.NotificationLog),
	}
	s.ensureRoom(types.Hub)
	return s
}

func (s *AppState) ensureRoom(room types.Room) {
	if _, ok := s.occupancy[room]; ok {
		return
	}
	s.occupancy[room] = nil
	s.chatLogs[room] = nil
	s.notifications[room] = nil
	metrics.ActiveRooms.Inc()
}

// AddUserToRoom appends user to room's occupancy, creating the room on first
// reference.
func (s *AppState) AddUserToRoom(user types.User, room types.Room) {
	s.ensureRoom(room)
	s.occupancy[room] = append(s.occupancy[room], user)
	metrics.RoomOccupants.WithLabelValues(string(room)).Inc()
}

// RemoveUserFromCurrentRoom takes user out of whichever room holds it and
// records the leave notification there. Removal is by swap-remove, so the
// ordering of the remaining occupants is unspecified afterwards. Returns
// false when the user is in no room; that case is logged, not an error.
func (s *AppState) RemoveUserFromCurrentRoom(ctx context.Context, user types.User) (types.Room, bool) {
	for room, occupants := range s.occupancy {
		for i := range occupants {
			if occupants[i] != user {
				continue
			}
			occupants[i] = occupants[len(occupants)-1]
			s.occupancy[room] = occupants[:len(occupants)-1]
			metrics.RoomOccupants.WithLabelValues(string(room)).Dec()
			s.recordNotification(room, types.NewNotification(fmt.Sprintf("%s left %s", user.Name, room)))
			return room, true
		}
	}
	logging.Warn(ctx, "user not found in any room during removal", zap.String("user_id", user.ID))
	return "", false
}

// RecordChat appends msg to the history of user's current room and returns
// the room's occupants as the delivery list, sender included.
func (s *AppState) RecordChat(ctx context.Context, user types.User, msg types.MessageLog) ([]types.User, bool) {
	room, ok := s.roomOf(user)
	if !ok {
		logging.Warn(ctx, "chat from user with no room", zap.String("user_id", user.ID))
		return nil, false
	}
	s.chatLogs[room] = appendBounded(s.chatLogs[room], msg)
	return s.Occupants(room), true
}

// RecordNotification appends note to the history of user's current room.
func (s *AppState) RecordNotification(ctx context.Context, user types.User, note types.NotificationLog) bool {
	room, ok := s.roomOf(user)
	if !ok {
		logging.Warn(ctx, "notification for user with no room", zap.String("user_id", user.ID))
		return false
	}
	s.recordNotification(room, note)
	return true
}

func (s *AppState) recordNotification(room types.Room, note types.NotificationLog) {
	s.notifications[room] = appendBounded(s.notifications[room], note)
}

// SnapshotRoom copies the room's histories and occupant names while the App
// holds the state, so recipients can read it without racing later mutations.
func (s *AppState) SnapshotRoom(room types.Room) types.RoomSnapshot {
	var snap types.RoomSnapshot
	if logs := s.chatLogs[room]; len(logs) > 0 {
		snap.ChatLogs = append([]types.MessageLog(nil), logs...)
	}
	if notes := s.notifications[room]; len(notes) > 0 {
		snap.Notifications = append([]types.NotificationLog(nil), notes...)
	}
	for _, occ := range s.occupancy[room] {
		snap.OccupantNames = append(snap.OccupantNames, occ.Name)
	}
	return snap
}

// Occupants returns a copy of room's delivery list in insertion order.
func (s *AppState) Occupants(room types.Room) []types.User {
	occ := s.occupancy[room]
	if len(occ) == 0 {
		return nil
	}
	return append([]types.User(nil), occ...)
}

func (s *AppState) roomOf(user types.User) (types.Room, bool) {
	for room, occupants := range s.occupancy {
		for i := range occupants {
			if occupants[i] == user {
				return room, true
			}
		}
	}
	return "", false
}

func appendBounded[T any](log []T, entry T) []T {
	log = append(log, entry)
	if len(log) > logCap {
		log = log[len(log)-logCap:]
	}
	return log
}
