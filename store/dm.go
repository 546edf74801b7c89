package store

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/putto11262002/roomsync/models"
)

func dmKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// localDMLocked returns the id of the local dm room between a and b. The caller holds s.mu.
func (s *Store) localDMLocked(a, b string) (string, bool) {
	for i := range s.rooms {
		if s.rooms[i].IsDMBetween(a, b) {
			return s.rooms[i].ID, true
		}
	}
	return "", false
}

// GetOrCreateDmRoom returns the id of the dm room between me and other, creating it when
// it exists neither locally nor remotely. Concurrent calls for the same pair share one
// resolution and return the same id.
//
// A new room is written remotely in one atomic batch. If that write fails the room is
// still returned and the write is retried through the outbox.
func (s *Store) GetOrCreateDmRoom(ctx context.Context, me, other string) (string, error) {
	if !ValidUserID(me) || !ValidUserID(other) || me == other {
		return "", ErrInvalidMember
	}
	v, err, _ := s.dm.Do(dmKey(me, other), func() (any, error) {
		return s.resolveDM(ctx, me, other)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) resolveDM(ctx context.Context, me, other string) (string, error) {
	s.mu.Lock()
	id, ok := s.localDMLocked(me, other)
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	found, ok, err := s.remote.FindDMRoom(ctx, me, other)
	if err != nil {
		s.logger.Warn("dm lookup failed, creating room",
			slog.String("error", err.Error()))
	}
	if ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if id, exists := s.localDMLocked(me, other); exists {
			return id, nil
		}
		found.UnreadCount = 0
		s.rooms = append(s.rooms, found.Clone())
		s.notify()
		return found.ID, nil
	}

	room := models.Room{
		ID:        uuid.New().String(),
		Members:   []string{me, other},
		CreatedBy: me,
		Type:      models.DMRoom,
		IsPublic:  false,
		CreatedAt: s.now(),
	}
	settings := models.DefaultRoomSettings(room)

	s.mu.Lock()
	if id, exists := s.localDMLocked(me, other); exists {
		s.mu.Unlock()
		return id, nil
	}
	s.rooms = append(s.rooms, room.Clone())
	s.settings[room.ID] = settings.Clone()
	s.mu.Unlock()
	s.notify()

	if err := s.remote.CreateDMRoom(ctx, room, settings); err != nil {
		s.logger.Warn("dm room creation failed, retrying in background",
			slog.String("room", room.ID),
			slog.String("error", err.Error()))
		s.enqueue("createDmRoom", func(ctx context.Context) error {
			return s.remote.CreateDMRoom(ctx, room, settings)
		})
	}
	return room.ID, nil
}
