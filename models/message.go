package models

import (
	"maps"
	"slices"
	"time"
)

// MessageType is used to determine how the message content and attachments should be interpreted.
type MessageType string

const (
	TextMessage   MessageType = "text"
	ImageMessage  MessageType = "image"
	FileMessage   MessageType = "file"
	SystemMessage MessageType = "system"
	AlbumMessage  MessageType = "album"
	VideoMessage  MessageType = "video"
)

func (t MessageType) Valid() bool {
	switch t {
	case TextMessage, ImageMessage, FileMessage, SystemMessage, AlbumMessage, VideoMessage:
		return true
	}
	return false
}

// Message represents a chat message sent by a user to a room.
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	ReadBy    []string    `json:"readBy"`
	Type      MessageType `json:"type"`
	ImageURL  string      `json:"imageUrl,omitempty"`
	AlbumURLs []string    `json:"albumUrls,omitempty"`
	ReplyToID string      `json:"replyToId,omitempty"`
	// ReactionsByUser maps a user to the single emoji they currently react with.
	ReactionsByUser map[string]string `json:"reactionsByUser,omitempty"`
	// ReactionsCount is derived from ReactionsByUser, see ToggleReaction.
	ReactionsCount map[string]int `json:"reactionsCount,omitempty"`
}

// MessagePatch is a local-only partial update of a message.
// Nil fields are left untouched.
type MessagePatch struct {
	Content   *string  `json:"content,omitempty"`
	ImageURL  *string  `json:"imageUrl,omitempty"`
	AlbumURLs []string `json:"albumUrls,omitempty"`
}

func (p MessagePatch) Apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.ImageURL != nil {
		m.ImageURL = *p.ImageURL
	}
	if p.AlbumURLs != nil {
		m.AlbumURLs = slices.Clone(p.AlbumURLs)
	}
}

// MarkReadBy adds the user to ReadBy. It returns false if the user had already read the message.
func (m *Message) MarkReadBy(userID string) bool {
	if slices.Contains(m.ReadBy, userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Expired reports whether the message is older than the room's ttl.
// A nil or non-positive ttl never expires.
func (m *Message) Expired(ttlMs *int64, now time.Time) bool {
	if ttlMs == nil || *ttlMs <= 0 {
		return false
	}
	return !now.Before(m.CreatedAt.Add(time.Duration(*ttlMs) * time.Millisecond))
}

// Attachments returns every media reference carried by the message.
func (m *Message) Attachments() []string {
	refs := make([]string, 0, 1+len(m.AlbumURLs))
	if m.ImageURL != "" {
		refs = append(refs, m.ImageURL)
	}
	return append(refs, m.AlbumURLs...)
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.ReadBy = slices.Clone(m.ReadBy)
	m.AlbumURLs = slices.Clone(m.AlbumURLs)
	m.ReactionsByUser = maps.Clone(m.ReactionsByUser)
	m.ReactionsCount = maps.Clone(m.ReactionsCount)
	return m
}
