package transport

import (
	"sort"

	"github.com/marain-chat/marain-server/internal/v1/types"
	"github.com/marain-chat/marain-server/internal/v1/wire"
)

// renderRoomData flattens a room snapshot into the wire shape. Server
// notifications are interleaved into the log list as SERVER-authored chat
// lines, ordered by timestamp, which is how clients render room history.
func renderRoomData(snap types.RoomSnapshot, queryTS wire.Timestamp) wire.RoomData {
	logs := make([]wire.ChatMsg, 0, len(snap.ChatLogs)+len(snap.Notifications))
	for _, m := range snap.ChatLogs {
		logs = append(logs, wire.ChatMsg{
			Sender:    m.Username,
			Timestamp: wire.At(m.Timestamp),
			Content:   m.Contents,
		})
	}
	for _, n := range snap.Notifications {
		logs = append(logs, wire.ChatMsg{
			Sender:    n.Notifier,
			Timestamp: wire.At(n.Timestamp),
			Content:   n.Contents,
		})
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp < logs[j].Timestamp
	})

	return wire.RoomData{
		QueryTS:   queryTS,
		Logs:      logs,
		Occupants: append([]string(nil), snap.OccupantNames...),
	}
}

// renderChatRecv maps one recorded message to its delivery frame.
func renderChatRecv(msg types.MessageLog) wire.ServerMsg {
	ts := wire.At(msg.Timestamp)
	return wire.ServerMsg{
		Status:    wire.StatusYes(),
		Timestamp: ts,
		Body: wire.ChatRecv{
			Direct: false,
			ChatMsg: wire.ChatMsg{
				Sender:    msg.Username,
				Timestamp: ts,
				Content:   msg.Contents,
			},
		},
	}
}
