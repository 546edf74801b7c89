package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/syncer"
)

// CreateRoom creates a room and returns it before the remote write happens.
//
// The caller is always a member of the room and is seeded as its admin remotely.
// When no type is given, rooms of at most two members are dm rooms and larger ones are
// group rooms. A notice room requested by a caller without privileges is created with the
// derived type instead. dm rooms must end up with exactly two members.
func (s *Store) CreateRoom(in CreateRoomInput) (models.Room, error) {
	if err := in.Validate(); err != nil {
		return models.Room{}, err
	}

	id, creator := s.currentUser("")
	members := models.DedupeMembers(in.Members)
	if len(members) == 0 {
		return models.Room{}, fmt.Errorf("%w: no members", ErrInvalidRoom)
	}
	if creator == "" {
		creator = members[0]
	}
	if !slices.Contains(members, creator) {
		members = append([]string{creator}, members...)
	}

	roomType := in.Type
	if roomType == models.NoticeRoom && !id.Privileged {
		s.logger.Debug("notice room downgraded", slog.String("user", creator))
		roomType = ""
	}
	if roomType == "" {
		roomType = models.GroupRoom
		if len(members) <= 2 {
			roomType = models.DMRoom
		}
	}
	if roomType == models.DMRoom && len(members) != 2 {
		return models.Room{}, fmt.Errorf("%w: a dm room needs exactly two members, got %d", ErrInvalidMember, len(members))
	}

	password := ""
	if in.Password != nil {
		password = *in.Password
	}

	now := s.now()
	room := models.Room{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Members:     members,
		CreatedBy:   creator,
		Type:        roomType,
		IsPublic:    roomType != models.DMRoom && roomType != models.SecretRoom && password == "",
		ExpiresAt:   in.ExpiresAt,
		MessageTTL:  in.MessageTTL,
		Tags:        models.NormalizeTags(in.Tags),
		AvatarURL:   in.AvatarURL,
		Description: in.Description,
		CreatedAt:   now,
	}
	settings := models.DefaultRoomSettings(room)
	if password != "" {
		settings.Security.PasswordLock = models.Ptr(password)
	}
	if in.ParticipantLimit != nil {
		settings.Basic.ParticipantLimit = *in.ParticipantLimit
	}

	s.mu.Lock()
	s.rooms = append(s.rooms, room.Clone())
	s.settings[room.ID] = settings.Clone()
	s.mu.Unlock()
	s.notify()

	remoteRoom, remoteSettings := room.Clone(), settings.Clone()
	s.enqueue("createRoom", func(ctx context.Context) error {
		return s.remote.CreateRoom(ctx, remoteRoom, remoteSettings, func(avatar string) {
			s.patchAvatar(remoteRoom.ID, remoteRoom.AvatarURL, avatar)
		})
	})
	return room, nil
}

// patchAvatar replaces an ephemeral avatar reference with its durable URL, unless the
// avatar was changed in the meantime.
func (s *Store) patchAvatar(roomID, old, avatar string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.room(roomID)
	if !ok || room.AvatarURL != old {
		return
	}
	room.AvatarURL = avatar
	if st, ok := s.settings[roomID]; ok && st.Basic.ThumbnailURL == old {
		st.Basic.ThumbnailURL = avatar
		s.settings[roomID] = st
	}
	s.notify()
}

// SetRoomTTL sets the expiry of the room. A nil expiry removes it.
// Expired rooms are not deleted; readers are expected to check Room.Expired.
func (s *Store) SetRoomTTL(roomID string, expiresAt *time.Time) error {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	if expiresAt != nil {
		t := *expiresAt
		expiresAt = &t
	}
	room.ExpiresAt = expiresAt
	s.mu.Unlock()
	s.notify()

	s.enqueue("setRoomTTL", func(ctx context.Context) error {
		return s.remote.SetRoomTTL(ctx, roomID, expiresAt)
	})
	return nil
}

// SetMessageTTL sets the time to live of the messages of the room in milliseconds.
// A nil ttl removes it.
func (s *Store) SetMessageTTL(roomID string, ttlMs *int64) error {
	if ttlMs != nil && *ttlMs <= 0 {
		return fmt.Errorf("%w: message ttl must be positive", ErrInvalidRoom)
	}
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	if ttlMs != nil {
		ttlMs = models.Ptr(*ttlMs)
	}
	room.MessageTTL = ttlMs
	s.mu.Unlock()
	s.notify()

	s.enqueue("setMessageTTL", func(ctx context.Context) error {
		return s.remote.SetMessageTTL(ctx, roomID, ttlMs)
	})
	return nil
}

// UpdateRoomMeta patches the title, avatar and description of the room locally and waits
// for the remote write. The remote error is returned so it can be surfaced to the user;
// the local patch is kept either way.
func (s *Store) UpdateRoomMeta(ctx context.Context, roomID string, meta syncer.RoomMeta) (models.Room, error) {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return models.Room{}, ErrInvalidRoom
	}
	st, hasSettings := s.settings[roomID]
	if meta.Title != nil {
		room.Title = *meta.Title
	}
	if meta.AvatarURL != nil {
		room.AvatarURL = *meta.AvatarURL
		st.Basic.ThumbnailURL = *meta.AvatarURL
	}
	if meta.Description != nil {
		room.Description = *meta.Description
		st.Basic.Description = *meta.Description
	}
	if hasSettings {
		s.settings[roomID] = st
	}
	out := room.Clone()
	s.mu.Unlock()
	s.notify()

	written, err := s.remote.UpdateRoomMeta(ctx, roomID, meta)
	if meta.AvatarURL != nil && written.AvatarURL != nil && *written.AvatarURL != "" && *written.AvatarURL != *meta.AvatarURL {
		s.patchAvatar(roomID, *meta.AvatarURL, *written.AvatarURL)
		out.AvatarURL = *written.AvatarURL
	}
	if err != nil {
		return out, fmt.Errorf("UpdateRoomMeta: %w", err)
	}
	return out, nil
}
