package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/syncer"
)

func removeMember(room *models.Room, userID string) bool {
	i := slices.Index(room.Members, userID)
	if i < 0 {
		return false
	}
	room.Members = slices.Delete(room.Members, i, i+1)
	return true
}

// isAdminLocked reports whether the user administers the room. A room without settings
// is administered by its creator. The caller holds s.mu.
func (s *Store) isAdminLocked(room *models.Room, userID string) bool {
	st := s.settingsLocked(room)
	role, ok := st.RoleOf(userID)
	return ok && role == models.Admin
}

// KickMember removes the user from the room, bans them and drops their role.
func (s *Store) KickMember(roomID, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	removeMember(room, userID)
	st := s.settingsLocked(room)
	if !slices.Contains(st.Members.Banned, userID) {
		st.Members.Banned = append(st.Members.Banned, userID)
	}
	delete(st.Members.Roles, userID)
	s.settings[roomID] = st
	remoteSettings := st.Clone()
	s.mu.Unlock()
	s.notify()

	s.enqueue("kickMember", func(ctx context.Context) error {
		return s.remote.ApplyMembership(ctx, syncer.MembershipChange{
			RoomID:   roomID,
			Removed:  []string{userID},
			Settings: &remoteSettings,
		})
	})
	return nil
}

// CloseChatForUser removes the user from the room without banning them, so they can be
// added again later. When the user is the local user the room is also dropped locally.
func (s *Store) CloseChatForUser(roomID, userID string) error {
	_, me := s.currentUser("")

	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	if !removeMember(room, userID) {
		s.mu.Unlock()
		return ErrInvalidMember
	}
	if userID == me {
		s.purgeLocked(roomID)
	}
	s.mu.Unlock()
	s.notify()

	s.enqueue("closeChat", func(ctx context.Context) error {
		return s.remote.ApplyMembership(ctx, syncer.MembershipChange{
			RoomID:  roomID,
			Removed: []string{userID},
		})
	})
	return nil
}

// TransferOwnership makes newOwnerID the only admin of the room. Every previous admin is
// demoted to moderator. The roles are written in a single settings write.
func (s *Store) TransferOwnership(roomID, newOwnerID string) error {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	if !room.HasMember(newOwnerID) {
		s.mu.Unlock()
		return ErrInvalidMember
	}
	st := s.settingsLocked(room)
	if st.Members.Roles == nil {
		st.Members.Roles = make(map[string]models.Role)
	}
	affected := []string{newOwnerID}
	for uid, role := range st.Members.Roles {
		if role == models.Admin && uid != newOwnerID {
			st.Members.Roles[uid] = models.Moderator
			affected = append(affected, uid)
		}
	}
	st.Members.Roles[newOwnerID] = models.Admin
	s.settings[roomID] = st
	remoteSettings := st.Clone()
	s.mu.Unlock()
	s.notify()

	s.enqueue("transferOwnership", func(ctx context.Context) error {
		return s.remote.SetRoles(ctx, roomID, remoteSettings, affected...)
	})
	return nil
}

// LeaveRoom removes the user from the room and drops the room locally.
//
// When the user administers the room, the room is archived remotely instead, so the
// remaining members keep its history. Otherwise the user is removed from the latest known
// member list; when the local list is empty it is fetched remotely first. In both cases
// the room is removed from the personal room index of the user.
//
// Leaving is irreversible locally: remote failures are logged and never returned.
func (s *Store) LeaveRoom(ctx context.Context, roomID, userID string) error {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	admin := s.isAdminLocked(room, userID)
	members := slices.Clone(room.Members)
	s.mu.Unlock()

	if admin {
		s.mu.Lock()
		s.purgeLocked(roomID)
		s.mu.Unlock()
		s.notify()

		s.enqueue("archiveRoom", func(ctx context.Context) error {
			return s.remote.ArchiveRoom(ctx, roomID)
		})
		s.enqueue("removeUserRoom", func(ctx context.Context) error {
			return s.remote.RemoveUserRoom(ctx, userID, roomID)
		})
		return nil
	}

	if len(members) == 0 {
		fetched, err := s.remote.FetchRoom(ctx, roomID)
		if err != nil {
			s.logger.Warn("leave room: member list unavailable",
				slog.String("room", roomID),
				slog.String("error", err.Error()))
		} else {
			members = fetched.Room.Members
		}
	}

	s.mu.Lock()
	s.purgeLocked(roomID)
	s.mu.Unlock()
	s.notify()

	if len(members) > 0 && !slices.Contains(members, userID) {
		s.logger.Debug("leave room: user is not a member", slog.String("room", roomID), slog.String("user", userID))
	} else {
		s.enqueue("leaveRoom", func(ctx context.Context) error {
			return s.remote.ApplyMembership(ctx, syncer.MembershipChange{
				RoomID:  roomID,
				Removed: []string{userID},
			})
		})
	}
	s.enqueue("removeUserRoom", func(ctx context.Context) error {
		return s.remote.RemoveUserRoom(ctx, userID, roomID)
	})
	return nil
}

// AddMember adds the user to the room. Banned users and rooms that reached their
// participant limit are rejected with ErrDisallowedOperation.
func (s *Store) AddMember(roomID, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	if room.HasMember(userID) {
		s.mu.Unlock()
		return nil
	}
	if room.Type == models.DMRoom {
		s.mu.Unlock()
		return fmt.Errorf("%w: dm rooms have exactly two members", ErrDisallowedOperation)
	}
	st := s.settingsLocked(room)
	if st.IsBanned(userID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: user is banned", ErrDisallowedOperation)
	}
	if limit := st.Basic.ParticipantLimit; limit > 0 && len(room.Members) >= limit {
		s.mu.Unlock()
		return fmt.Errorf("%w: participant limit of %d reached", ErrDisallowedOperation, limit)
	}
	room.Members = append(room.Members, userID)
	s.mu.Unlock()
	s.notify()

	s.enqueue("addMember", func(ctx context.Context) error {
		return s.remote.ApplyMembership(ctx, syncer.MembershipChange{
			RoomID: roomID,
			Added:  []string{userID},
		})
	})
	return nil
}

// SetMemberRole sets the role of a member of the room.
func (s *Store) SetMemberRole(roomID, userID string, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMember, role)
	}
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	if !room.HasMember(userID) {
		s.mu.Unlock()
		return ErrInvalidMember
	}
	st := s.settingsLocked(room)
	if st.Members.Roles == nil {
		st.Members.Roles = make(map[string]models.Role)
	}
	st.Members.Roles[userID] = role
	s.settings[roomID] = st
	remoteSettings := st.Clone()
	s.mu.Unlock()
	s.notify()

	s.enqueue("setMemberRole", func(ctx context.Context) error {
		return s.remote.SetRoles(ctx, roomID, remoteSettings, userID)
	})
	return nil
}
