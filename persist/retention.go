package persist

import (
	"slices"
	"unicode/utf8"

	"github.com/putto11262002/roomsync/media"
	"github.com/putto11262002/roomsync/models"
)

// Policy bounds what is kept in device-local storage.
type Policy struct {
	// MaxMessages is the number of most recent messages kept for the current room.
	MaxMessages int
	// MaxContentLength is the number of characters kept of a message content.
	MaxContentLength int
}

var DefaultPolicy = Policy{
	MaxMessages:      100,
	MaxContentLength: 4000,
}

// Apply bounds the state in place. Only the history of the current room is kept, capped
// to the most recent messages; long contents are truncated; attachment references that
// are not durable URLs are dropped and typing flags are reset.
//
// Collections of the state are replaced rather than modified, so a state sharing them
// with the caller is left untouched.
func (p Policy) Apply(s *models.State) {
	if p.MaxMessages <= 0 {
		p.MaxMessages = DefaultPolicy.MaxMessages
	}
	if p.MaxContentLength <= 0 {
		p.MaxContentLength = DefaultPolicy.MaxContentLength
	}
	s.Normalize()

	rooms := make([]models.Room, 0, len(s.Rooms))
	known := make(map[string]bool, len(s.Rooms))
	for _, r := range s.Rooms {
		r = r.Clone()
		if !media.IsDurable(r.AvatarURL) {
			r.AvatarURL = ""
		}
		known[r.ID] = true
		rooms = append(rooms, r)
	}
	s.Rooms = rooms

	messages := make(map[string][]models.Message)
	if current := s.Messages[s.CurrentRoomID]; s.CurrentRoomID != "" && len(current) > 0 {
		if len(current) > p.MaxMessages {
			current = current[len(current)-p.MaxMessages:]
		}
		kept := make([]models.Message, len(current))
		for i, m := range current {
			kept[i] = p.message(m.Clone())
		}
		messages[s.CurrentRoomID] = kept
	}
	s.Messages = messages

	hidden := make(map[string]map[string]bool, len(s.HiddenByRoom))
	for roomID, ids := range s.HiddenByRoom {
		if known[roomID] && len(ids) > 0 {
			hidden[roomID] = ids
		}
	}
	s.HiddenByRoom = hidden

	s.Typing = make(map[string]map[string]bool)
}

func (p Policy) message(m models.Message) models.Message {
	if utf8.RuneCountInString(m.Content) > p.MaxContentLength {
		m.Content = string([]rune(m.Content)[:p.MaxContentLength])
	}
	if !media.IsDurable(m.ImageURL) {
		m.ImageURL = ""
	}
	m.AlbumURLs = slices.DeleteFunc(m.AlbumURLs, func(ref string) bool {
		return !media.IsDurable(ref)
	})
	if len(m.AlbumURLs) == 0 {
		m.AlbumURLs = nil
	}
	return m
}
