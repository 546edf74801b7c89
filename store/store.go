// Package store holds the canonical in-memory model of rooms, messages and room settings.
//
// Every command mutates the local model synchronously and returns. Remote propagation is
// handed to the outbox and never awaited, except where a method documents otherwise.
package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/syncer"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInvalidRoom is returned when a room is not found or the room input is invalid.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrInvalidMessage is returned when a message is not found or the message input is invalid.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidMember is returned when a user is not a member of the room or cannot become one.
	ErrInvalidMember = errors.New("invalid member")
	// ErrDisallowedOperation is returned when the settings of the room forbid the operation.
	ErrDisallowedOperation = errors.New("disallowed operation")
)

// Remote is the set of remote operations the store relies on.
// It is implemented by syncer.Adapter.
type Remote interface {
	CreateRoom(ctx context.Context, room models.Room, settings models.RoomSettings, onAvatar func(string)) error
	SendMessage(ctx context.Context, msg models.Message, onPromoted func(models.MessagePatch)) error
	BumpUnread(ctx context.Context, roomID string, recipients []string) error
	MarkRead(ctx context.Context, roomID, userID string) error
	UpdateReactions(ctx context.Context, roomID, messageID string, byUser map[string]string, counts map[string]int) error
	DeleteMessage(ctx context.Context, roomID, messageID string) error
	SaveSettings(ctx context.Context, roomID string, settings models.RoomSettings) error
	SetPrivacy(ctx context.Context, roomID string, isPublic bool, password *string) error
	ApplyMembership(ctx context.Context, change syncer.MembershipChange) error
	SetRoles(ctx context.Context, roomID string, settings models.RoomSettings, users ...string) error
	ArchiveRoom(ctx context.Context, roomID string) error
	RemoveUserRoom(ctx context.Context, userID, roomID string) error
	FetchRoom(ctx context.Context, roomID string) (syncer.RemoteRoom, error)
	FindDMRoom(ctx context.Context, me, other string) (models.Room, bool, error)
	CreateDMRoom(ctx context.Context, room models.Room, settings models.RoomSettings) error
	SaveInvite(ctx context.Context, invite models.Invite) error
	SetRoomTTL(ctx context.Context, roomID string, expiresAt *time.Time) error
	SetMessageTTL(ctx context.Context, roomID string, ttlMs *int64) error
	UpdateRoomMeta(ctx context.Context, roomID string, meta syncer.RoomMeta) (syncer.RoomMeta, error)
}

// Outbox queues remote intents. It is implemented by syncer.Outbox.
type Outbox interface {
	Enqueue(name string, run func(ctx context.Context) error) error
	EnqueueOnce(name string, run func(ctx context.Context) error) error
}

type Config struct {
	// InviteLinkBase is the prefix of invite deep links.
	InviteLinkBase string
	// QRCodeURL is the endpoint rendering a QR code of its data query parameter.
	QRCodeURL string
	// InviteTTL is the default lifetime of an invite.
	InviteTTL time.Duration
}

var DefaultConfig = Config{
	InviteLinkBase: "roomsync://invite",
	QRCodeURL:      "https://api.qrserver.com/v1/create-qr-code/",
	InviteTTL:      3 * 24 * time.Hour,
}

// Store is the local state store. It is safe for concurrent use; all mutations are
// serialized and the lock is never held across a remote call.
type Store struct {
	mu            sync.Mutex
	rooms         []models.Room
	messages      map[string][]models.Message
	settings      map[string]models.RoomSettings
	hidden        map[string]map[string]bool
	currentRoomID string

	typing *SyncMap[string, map[string]bool]

	remote   Remote
	outbox   Outbox
	identity identity.Provider
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	dm      singleflight.Group
	changes chan struct{}
}

func New(remote Remote, outbox Outbox, id identity.Provider, config Config, logger *slog.Logger) *Store {
	if config.InviteTTL <= 0 {
		config.InviteTTL = DefaultConfig.InviteTTL
	}
	if config.InviteLinkBase == "" {
		config.InviteLinkBase = DefaultConfig.InviteLinkBase
	}
	if config.QRCodeURL == "" {
		config.QRCodeURL = DefaultConfig.QRCodeURL
	}
	return &Store{
		rooms:    []models.Room{},
		messages: make(map[string][]models.Message),
		settings: make(map[string]models.RoomSettings),
		hidden:   make(map[string]map[string]bool),
		typing:   NewSyncMap[string, map[string]bool](),
		remote:   remote,
		outbox:   outbox,
		identity: id,
		config:   config,
		logger:   logger,
		now:      time.Now,
		changes:  make(chan struct{}, 1),
	}
}

// Changes returns a channel that receives a value after the state changed.
// Bursts of changes are coalesced into a single notification.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Store) enqueue(name string, run func(ctx context.Context) error) {
	// A dropped intent is already logged by the outbox and never affects local state.
	_ = s.outbox.Enqueue(name, run)
}

func (s *Store) enqueueOnce(name string, run func(ctx context.Context) error) {
	_ = s.outbox.EnqueueOnce(name, run)
}

// currentUser returns the ambient user id, or fallback when no identity is established.
func (s *Store) currentUser(fallback string) (identity.Identity, string) {
	id, ok := s.identity.Current()
	if !ok || id.UserID == "" {
		return id, fallback
	}
	return id, id.UserID
}

// roomIndex returns the index of the room in s.rooms or -1. The caller holds s.mu.
func (s *Store) roomIndex(roomID string) int {
	return slices.IndexFunc(s.rooms, func(r models.Room) bool { return r.ID == roomID })
}

// room returns a pointer into s.rooms. The caller holds s.mu.
func (s *Store) room(roomID string) (*models.Room, bool) {
	i := s.roomIndex(roomID)
	if i < 0 {
		return nil, false
	}
	return &s.rooms[i], true
}

// settingsLocked returns the stored settings of the room or the computed defaults.
// The caller holds s.mu.
func (s *Store) settingsLocked(room *models.Room) models.RoomSettings {
	if st, ok := s.settings[room.ID]; ok {
		return st.Clone()
	}
	return models.DefaultRoomSettings(*room)
}

func (s *Store) messageIndex(roomID, messageID string) int {
	return slices.IndexFunc(s.messages[roomID], func(m models.Message) bool { return m.ID == messageID })
}

// purgeLocked removes every trace of the room from the local model. The caller holds s.mu.
func (s *Store) purgeLocked(roomID string) {
	if i := s.roomIndex(roomID); i >= 0 {
		s.rooms = slices.Delete(s.rooms, i, i+1)
	}
	delete(s.messages, roomID)
	delete(s.settings, roomID)
	delete(s.hidden, roomID)
	s.typing.Delete(roomID)
	if s.currentRoomID == roomID {
		s.currentRoomID = ""
	}
}

// Rooms returns every room in creation order.
func (s *Store) Rooms() []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Room, len(s.rooms))
	for i, r := range s.rooms {
		out[i] = r.Clone()
	}
	return out
}

// Room returns the room with the given id.
func (s *Store) Room(roomID string) (models.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.room(roomID)
	if !ok {
		return models.Room{}, false
	}
	return r.Clone(), true
}

// SetCurrentRoom records the room the user has open. Only the history of the current
// room survives persistence.
func (s *Store) SetCurrentRoom(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roomID != "" && s.roomIndex(roomID) < 0 {
		return ErrInvalidRoom
	}
	s.currentRoomID = roomID
	s.notify()
	return nil
}

func (s *Store) CurrentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRoomID
}

// Snapshot returns a deep copy of the state.
func (s *Store) Snapshot() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := models.NewState()
	state.CurrentRoomID = s.currentRoomID
	for _, r := range s.rooms {
		state.Rooms = append(state.Rooms, r.Clone())
	}
	for roomID, msgs := range s.messages {
		cp := make([]models.Message, len(msgs))
		for i, m := range msgs {
			cp[i] = m.Clone()
		}
		state.Messages[roomID] = cp
	}
	for roomID, st := range s.settings {
		state.RoomSettings[roomID] = st.Clone()
	}
	for roomID, ids := range s.hidden {
		cp := make(map[string]bool, len(ids))
		for id, v := range ids {
			cp[id] = v
		}
		state.HiddenByRoom[roomID] = cp
	}
	s.typing.RRange(func(roomID string, users map[string]bool) bool {
		cp := make(map[string]bool, len(users))
		for u, v := range users {
			cp[u] = v
		}
		state.Typing[roomID] = cp
		return true
	})
	return state
}

// Restore replaces the state with a previously taken snapshot.
func (s *Store) Restore(state models.State) {
	state.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms = make([]models.Room, 0, len(state.Rooms))
	for _, r := range state.Rooms {
		s.rooms = append(s.rooms, r.Clone())
	}
	s.messages = make(map[string][]models.Message, len(state.Messages))
	for roomID, msgs := range state.Messages {
		cp := make([]models.Message, len(msgs))
		for i, m := range msgs {
			cp[i] = m.Clone()
		}
		s.messages[roomID] = cp
	}
	s.settings = make(map[string]models.RoomSettings, len(state.RoomSettings))
	for roomID, st := range state.RoomSettings {
		s.settings[roomID] = st.Clone()
	}
	s.hidden = make(map[string]map[string]bool, len(state.HiddenByRoom))
	for roomID, ids := range state.HiddenByRoom {
		cp := make(map[string]bool, len(ids))
		for id, v := range ids {
			cp[id] = v
		}
		s.hidden[roomID] = cp
	}
	s.typing.Clear()
	for roomID, users := range state.Typing {
		cp := make(map[string]bool, len(users))
		for u, v := range users {
			cp[u] = v
		}
		s.typing.Store(roomID, cp)
	}
	s.currentRoomID = state.CurrentRoomID
	s.notify()
}
