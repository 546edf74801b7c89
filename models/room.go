package models

import (
	"slices"
	"strings"
	"time"
)

// RoomType determines how a room is created and who can see it.
type RoomType string

const (
	// DMRoom is a room between exactly two users.
	// Only one dm room should exist between a pair of users.
	DMRoom RoomType = "dm"
	// GroupRoom is a room with any number of members.
	GroupRoom RoomType = "group"
	// TTLRoom is a room whose messages are expected to expire.
	TTLRoom RoomType = "ttl"
	// SecretRoom is a private room that never shows up in public listings.
	SecretRoom RoomType = "secret"
	// NoticeRoom is a broadcast room. Only privileged users can create one.
	NoticeRoom RoomType = "notice"
)

func (t RoomType) Valid() bool {
	switch t {
	case DMRoom, GroupRoom, TTLRoom, SecretRoom, NoticeRoom:
		return true
	}
	return false
}

// Role is the role of a member within a room.
type Role string

const (
	Admin     Role = "admin"
	Moderator Role = "moderator"
	Member    Role = "member"
)

func (r Role) Valid() bool {
	return r == Admin || r == Moderator || r == Member
}

// Room represents a chat room as seen by the local client.
type Room struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Members     []string   `json:"members"`
	CreatedBy   string     `json:"createdBy"`
	Type        RoomType   `json:"type"`
	IsPublic    bool       `json:"isPublic"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	MessageTTL  *int64     `json:"messageTtlMs,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Description string     `json:"description,omitempty"`
	// LastMessage is a preview of the content of the last message sent to the room.
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount   int        `json:"unreadCount"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// HasMember reports whether the user is in the member list.
func (r *Room) HasMember(userID string) bool {
	return slices.Contains(r.Members, userID)
}

// IsDMBetween reports whether the room is a dm room between exactly a and b.
func (r *Room) IsDMBetween(a, b string) bool {
	if r.Type != DMRoom || len(r.Members) != 2 {
		return false
	}
	return r.HasMember(a) && r.HasMember(b)
}

// Expired reports whether the room's expiresAt has passed.
// Nothing in this module deletes expired rooms; readers are expected to hide them.
func (r *Room) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Clone returns a deep copy of the room.
func (r Room) Clone() Room {
	r.Members = slices.Clone(r.Members)
	r.Tags = slices.Clone(r.Tags)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		r.ExpiresAt = &t
	}
	if r.MessageTTL != nil {
		ttl := *r.MessageTTL
		r.MessageTTL = &ttl
	}
	if r.LastMessageAt != nil {
		t := *r.LastMessageAt
		r.LastMessageAt = &t
	}
	return r
}

// NormalizeTags trims, lowercases and deduplicates tags, dropping empty ones.
// The first occurrence wins so the caller's ordering is preserved.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// DedupeMembers removes empty and duplicate user ids.
func DedupeMembers(members []string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" || slices.Contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}
