package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/persist"
	"github.com/putto11262002/roomsync/remote"
	"github.com/putto11262002/roomsync/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offline has a cached user but cannot reach the identity service.
type offline struct{}

func (offline) Current() (identity.Identity, bool) {
	return identity.Identity{UserID: "u1"}, true
}

func (offline) Ensure(ctx context.Context) (identity.Identity, error) {
	return identity.Identity{}, errors.New("network unreachable")
}

func restoreRoom(f *StoreFixture, room models.Room) {
	state := models.NewState()
	state.Rooms = []models.Room{room}
	f.store.Restore(state)
}

func TestSaveRoomSettings_DeepMerge(t *testing.T) {
	f := NewStoreFixture(t, u1)
	id := f.createRoom("Team", "u1", "u2", "u3")

	_, err := f.store.SaveRoomSettings(f.ctx, id, models.RoomSettingsPatch{
		Theme: &models.ThemeSettingsPatch{BubbleColor: models.Ptr("#ff0000"), Mode: models.Ptr("dark")},
		Members: &models.MemberSettingsPatch{
			Roles: map[string]models.Role{"u2": models.Moderator},
		},
	})
	require.NoError(t, err)
	before, err := f.store.RoomSettings(id)
	require.NoError(t, err)

	after, err := f.store.SaveRoomSettings(f.ctx, id, models.RoomSettingsPatch{
		Theme: &models.ThemeSettingsPatch{FontScale: models.Ptr(1.2)},
	})
	require.NoError(t, err)

	want := before.Clone()
	want.Theme.FontScale = 1.2
	assert.Equal(t, want, after)
	assert.Equal(t, "#ff0000", *after.Theme.BubbleColor)
	assert.Equal(t, models.Moderator, after.Members.Roles["u2"])
	assert.Equal(t, models.Admin, after.Members.Roles["u1"])

	f.flush()
	doc := f.doc("rooms/" + id)
	scale, _ := doc.Field("settings.theme.fontScale")
	assert.Equal(t, 1.2, scale)
	color, _ := doc.Field("settings.theme.bubbleColor")
	assert.Equal(t, "#ff0000", color)
}

func TestSaveRoomSettings_RemoteFailure(t *testing.T) {
	f := NewStoreFixture(t, offline{})
	id := f.createRoom("Team", "u1", "u2", "u3")

	st, err := f.store.SaveRoomSettings(f.ctx, id, models.RoomSettingsPatch{
		Notifications: &models.NotificationSettingsPatch{Sound: models.Ptr(false)},
	})
	require.ErrorIs(t, err, syncer.ErrNoIdentity)
	assert.False(t, st.Notifications.Sound)

	// The local change is kept.
	cached, err := f.store.RoomSettings(id)
	require.NoError(t, err)
	assert.False(t, cached.Notifications.Sound)

	_, err = f.store.SaveRoomSettings(f.ctx, "missing", models.RoomSettingsPatch{})
	assert.ErrorIs(t, err, ErrInvalidRoom)
}

func TestSetRoomPrivacy(t *testing.T) {
	f := NewStoreFixture(t, u1)
	id := f.createRoom("Team", "u1", "u2", "u3")

	require.NoError(t, f.store.SetRoomPrivacy(id, false, models.Ptr("abc")))
	st, _ := f.store.RoomSettings(id)
	require.NotNil(t, st.Security.PasswordLock)
	assert.Equal(t, "abc", *st.Security.PasswordLock)
	assert.False(t, st.Basic.IsPublic)

	require.NoError(t, f.store.SetRoomPrivacy(id, true, nil))
	st, _ = f.store.RoomSettings(id)
	require.NotNil(t, st.Security.PasswordLock)
	assert.Equal(t, "abc", *st.Security.PasswordLock)
	assert.True(t, st.Basic.IsPublic)
	room, _ := f.store.Room(id)
	assert.True(t, room.IsPublic)

	f.flush()
	lock, ok := f.doc("rooms/" + id).Field("settings.security.passwordLock")
	require.True(t, ok)
	assert.Equal(t, "abc", lock)

	require.NoError(t, f.store.SetRoomPrivacy(id, false, nil))
	st, _ = f.store.RoomSettings(id)
	assert.Equal(t, "abc", *st.Security.PasswordLock, "switching to private keeps the password")

	require.NoError(t, f.store.SetRoomPrivacy(id, true, models.Ptr("")))
	st, _ = f.store.RoomSettings(id)
	assert.Nil(t, st.Security.PasswordLock)

	f.flush()
	_, ok = f.doc("rooms/" + id).Field("settings.security.passwordLock")
	assert.False(t, ok)
	public, _ := f.doc("rooms/" + id).Field("isPublic")
	assert.Equal(t, true, public)

	assert.ErrorIs(t, f.store.SetRoomPrivacy("missing", true, nil), ErrInvalidRoom)
}

func TestLoadRoomSettings_HealsReloadedState(t *testing.T) {
	docs := remote.NewMemoryStore()
	f := NewStoreFixtureWithDocs(t, docs, u1)
	id := f.createRoom("Team", "u1", "u2", "u3")
	require.NoError(t, f.store.SetRoomPrivacy(id, false, models.Ptr("abc")))
	require.NoError(t, f.store.SetRoomPrivacy(id, true, nil))
	f.flush()

	data, err := persist.Encode(f.store.Snapshot(), persist.DefaultPolicy)
	require.NoError(t, err)
	state, err := persist.Decode(data, persist.DefaultPolicy)
	require.NoError(t, err)

	reloaded := NewStoreFixtureWithDocs(t, docs, u1)
	reloaded.store.Restore(state)

	st, err := reloaded.store.LoadRoomSettings(reloaded.ctx, id)
	require.NoError(t, err)
	assert.False(t, st.Basic.IsPublic)
	require.NotNil(t, st.Security.PasswordLock)
	assert.Equal(t, "abc", *st.Security.PasswordLock)

	room, ok := reloaded.store.Room(id)
	require.True(t, ok)
	assert.False(t, room.IsPublic)
	cached, err := reloaded.store.RoomSettings(id)
	require.NoError(t, err)
	assert.Equal(t, st, cached)

	reloaded.flush()
	public, _ := reloaded.doc("rooms/" + id).Field("settings.basic.isPublic")
	assert.Equal(t, false, public)
	public, _ = reloaded.doc("rooms/" + id).Field("isPublic")
	assert.Equal(t, false, public)
	lock, _ := reloaded.doc("rooms/" + id).Field("settings.security.passwordLock")
	assert.Equal(t, "abc", lock)

	again, err := reloaded.store.LoadRoomSettings(reloaded.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, st, again)
}

func TestLoadRoomSettings(t *testing.T) {
	room := models.Room{
		ID:          "r1",
		Title:       "Book club",
		Members:     []string{"u1", "u2", "u3"},
		CreatedBy:   "u1",
		Type:        models.GroupRoom,
		IsPublic:    true,
		Description: "monthly reads",
		AvatarURL:   "https://cdn.example.com/books.png",
		CreatedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("heals a public room with a password", func(t *testing.T) {
		f := NewStoreFixture(t, u1)
		require.NoError(t, f.docs.Set(f.ctx, "rooms/r1", map[string]any{
			"id":        "r1",
			"title":     "Book club",
			"type":      "group",
			"isPublic":  true,
			"createdBy": "u1",
			"members":   map[string]any{"u1": true, "u2": true, "u3": true},
			"settings": map[string]any{
				"basic":    map[string]any{"isPublic": true, "description": "remote"},
				"security": map[string]any{"passwordLock": "abc"},
				"members":  map[string]any{"roles": map[string]any{"u2": "admin"}},
			},
		}, remote.Replace))
		restoreRoom(f, room)

		st, err := f.store.LoadRoomSettings(f.ctx, "r1")
		require.NoError(t, err)
		assert.False(t, st.Basic.IsPublic)
		assert.Equal(t, "abc", *st.Security.PasswordLock)
		assert.Equal(t, "remote", st.Basic.Description)
		assert.Equal(t, map[string]models.Role{"u2": models.Admin}, st.Members.Roles)
		// Fields missing remotely fall back to the defaults.
		assert.Equal(t, models.Moderators, st.Permissions.DeleteOrPin)

		local, _ := f.store.Room("r1")
		assert.False(t, local.IsPublic)

		f.flush()
		public, _ := f.doc("rooms/r1").Field("settings.basic.isPublic")
		assert.Equal(t, false, public)

		again, err := f.store.LoadRoomSettings(f.ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, st, again)
	})

	t.Run("defaults when the remote read fails", func(t *testing.T) {
		f := NewStoreFixture(t, u1)
		restoreRoom(f, room)

		st, err := f.store.LoadRoomSettings(f.ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultRoomSettings(room), st)
		assert.Equal(t, "monthly reads", st.Basic.Description)
		assert.Equal(t, "https://cdn.example.com/books.png", st.Basic.ThumbnailURL)
		assert.Equal(t, models.Admin, st.Members.Roles["u1"])
	})

	t.Run("unknown room", func(t *testing.T) {
		f := NewStoreFixture(t, u1)
		_, err := f.store.LoadRoomSettings(f.ctx, "nope")
		assert.ErrorIs(t, err, ErrInvalidRoom)
	})
}
