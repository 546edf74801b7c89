package syncer

import (
	"fmt"
	"sort"
	"time"

	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/remote"
)

func roomPath(roomID string) string {
	return remote.Join("rooms", roomID)
}

func messagePath(roomID, messageID string) string {
	return remote.Join("rooms", roomID, "messages", messageID)
}

func memberPath(roomID, userID string) string {
	return remote.Join("rooms", roomID, "members", userID)
}

func invitePath(roomID, code string) string {
	return remote.Join("rooms", roomID, "invites", code)
}

func userRoomPath(userID, roomID string) string {
	return remote.Join("users", userID, "rooms", roomID)
}

// RemoteRoom is a room document as stored remotely.
type RemoteRoom struct {
	Room     models.Room
	Settings *models.RoomSettings
	Archived bool
}

// roomData encodes the room for the remote store. Members are stored as a map so they
// can be queried by id, and the unread count, which is per user, is left out.
func roomData(room models.Room) (map[string]any, error) {
	data, err := remote.Data(room)
	if err != nil {
		return nil, err
	}
	delete(data, "unreadCount")
	data["members"] = memberSet(room.Members)
	return data, nil
}

func memberSet(members []string) map[string]any {
	set := make(map[string]any, len(members))
	for _, m := range members {
		set[m] = true
	}
	return set
}

func settingsData(s models.RoomSettings) (map[string]any, error) {
	return remote.Data(s)
}

func decodeRoom(doc remote.Document) (RemoteRoom, error) {
	data := make(map[string]any, len(doc.Data))
	for k, v := range doc.Data {
		data[k] = v
	}

	var members []string
	if set, ok := doc.Data["members"].(map[string]any); ok {
		for uid, in := range set {
			if b, _ := in.(bool); b {
				members = append(members, uid)
			}
		}
	}
	sort.Strings(members)
	data["members"] = members
	delete(data, "settings")

	var out RemoteRoom
	if err := (remote.Document{Path: doc.Path, ID: doc.ID, Data: data}).DataTo(&out.Room); err != nil {
		return RemoteRoom{}, err
	}
	if out.Room.ID == "" {
		out.Room.ID = doc.ID
	}
	if archived, ok := doc.Data["archived"].(bool); ok {
		out.Archived = archived
	}
	if raw, ok := doc.Data["settings"].(map[string]any); ok {
		s := models.DefaultRoomSettings(out.Room)
		settingsDoc := remote.Document{Path: doc.Path + "#settings", Data: raw}
		// Stored roles replace the seeded ones instead of merging into them.
		if _, ok := settingsDoc.Field("members.roles"); ok {
			s.Members.Roles = map[string]models.Role{}
		}
		if err := settingsDoc.DataTo(&s); err != nil {
			return RemoteRoom{}, fmt.Errorf("settings: %w", err)
		}
		out.Settings = &s
	}
	return out, nil
}

// memberData is the per member document under rooms/{roomId}/members.
type memberData struct {
	Role     models.Role `json:"role"`
	JoinedAt time.Time   `json:"joinedAt"`
}

type userRoomData struct {
	RoomID   string    `json:"roomId"`
	JoinedAt time.Time `json:"joinedAt"`
}
