package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/putto11262002/roomsync/models"
)

// RoomSettings returns the cached settings of the room, or its defaults when none are
// cached yet. It never reads remotely.
func (s *Store) RoomSettings(roomID string) (models.RoomSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.room(roomID)
	if !ok {
		return models.RoomSettings{}, ErrInvalidRoom
	}
	return s.settingsLocked(room), nil
}

// LoadRoomSettings returns the settings of the room, reading them from the remote store
// when they are not cached. Cached and remote settings alike are healed: a public room
// protected by a password is made private, and the correction is written back.
//
// When the remote read fails the defaults of the local room are returned and nothing is
// cached, so a later call reads through again.
func (s *Store) LoadRoomSettings(ctx context.Context, roomID string) (models.RoomSettings, error) {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if ok {
		if st, cached := s.settings[roomID]; cached {
			st = st.Clone()
			healed := st.Heal()
			if healed {
				s.settings[roomID] = st.Clone()
				room.IsPublic = false
			}
			s.mu.Unlock()
			if healed {
				s.notify()
				s.enqueueHeal(roomID, st)
			}
			return st, nil
		}
	}
	var local models.Room
	if ok {
		local = room.Clone()
	}
	s.mu.Unlock()

	fetched, err := s.remote.FetchRoom(ctx, roomID)
	if err != nil {
		if !ok {
			return models.RoomSettings{}, fmt.Errorf("%w: %w", ErrInvalidRoom, err)
		}
		s.logger.Warn("load room settings: using defaults",
			slog.String("room", roomID),
			slog.String("error", err.Error()))
		return models.DefaultRoomSettings(local), nil
	}

	var st models.RoomSettings
	if fetched.Settings != nil {
		st = fetched.Settings.Clone()
	} else if ok {
		st = models.DefaultRoomSettings(local)
	} else {
		st = models.DefaultRoomSettings(fetched.Room)
	}
	healed := st.Heal()

	s.mu.Lock()
	if room, ok := s.room(roomID); ok {
		if _, cached := s.settings[roomID]; cached {
			// A local command won the race; its settings are newer.
			st = s.settings[roomID].Clone()
			healed = false
		} else {
			s.settings[roomID] = st.Clone()
			if healed {
				room.IsPublic = false
			}
		}
	}
	s.mu.Unlock()
	s.notify()

	if healed {
		s.enqueueHeal(roomID, st)
	}
	return st, nil
}

// enqueueHeal writes the privacy correction made by RoomSettings.Heal.
func (s *Store) enqueueHeal(roomID string, st models.RoomSettings) {
	password := models.Ptr(*st.Security.PasswordLock)
	s.enqueue("healPrivacy", func(ctx context.Context) error {
		return s.remote.SetPrivacy(ctx, roomID, false, password)
	})
}

// SaveRoomSettings deep-merges the patch into the settings of the room and waits for the
// remote write. Fields absent from the patch keep their value. The merged settings are
// kept locally even when the remote write fails, in which case the error is returned.
func (s *Store) SaveRoomSettings(ctx context.Context, roomID string, patch models.RoomSettingsPatch) (models.RoomSettings, error) {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return models.RoomSettings{}, ErrInvalidRoom
	}
	next := patch.Apply(s.settingsLocked(room))
	s.settings[roomID] = next.Clone()
	s.mu.Unlock()
	s.notify()

	if err := s.remote.SaveSettings(ctx, roomID, next); err != nil {
		return next, fmt.Errorf("SaveSettings: %w", err)
	}
	return next, nil
}

// SetRoomPrivacy is the only way to change the public flag and the password of a room;
// both are written together.
//
// A nil password keeps the stored one, an empty password clears it and any other value
// replaces it. Public rooms do not enforce their password but keep it so the room can be
// made private again.
func (s *Store) SetRoomPrivacy(roomID string, isPublic bool, password *string) error {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	st := s.settingsLocked(room)
	if password != nil {
		if *password == "" {
			st.Security.PasswordLock = nil
		} else {
			st.Security.PasswordLock = models.Ptr(*password)
		}
	}
	st.Basic.IsPublic = isPublic
	room.IsPublic = isPublic
	s.settings[roomID] = st
	lock := st.Security.PasswordLock
	if lock != nil {
		lock = models.Ptr(*lock)
	}
	s.mu.Unlock()
	s.notify()

	s.enqueue("setRoomPrivacy", func(ctx context.Context) error {
		return s.remote.SetPrivacy(ctx, roomID, isPublic, lock)
	})
	return nil
}
