package syncer

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/media"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/remote"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDocs struct {
	mock.Mock
}

func (m *mockDocs) Get(ctx context.Context, path string) (remote.Document, error) {
	args := m.Called(path)
	return args.Get(0).(remote.Document), args.Error(1)
}

func (m *mockDocs) Set(ctx context.Context, path string, data map[string]any, mode remote.SetMode) error {
	return m.Called(path, data, mode).Error(0)
}

func (m *mockDocs) Update(ctx context.Context, path string, fields map[string]any) error {
	return m.Called(path, fields).Error(0)
}

func (m *mockDocs) Delete(ctx context.Context, path string) error {
	return m.Called(path).Error(0)
}

func (m *mockDocs) Increment(ctx context.Context, path, field string, delta int64) error {
	return m.Called(path, field, delta).Error(0)
}

func (m *mockDocs) Query(ctx context.Context, collection string, filters ...remote.Filter) ([]remote.Document, error) {
	args := m.Called(collection, filters)
	return args.Get(0).([]remote.Document), args.Error(1)
}

func (m *mockDocs) Batch(ctx context.Context, writes []remote.Write) error {
	return m.Called(writes).Error(0)
}

var me = identity.Static{UserID: "u1"}

func TestUpsert(t *testing.T) {
	t.Run("update succeeds", func(t *testing.T) {
		docs := &mockDocs{}
		docs.On("Update", "rooms/r1/members/u2", map[string]any{"unread": 0}).Return(nil).Once()
		a := NewAdapter(docs, me, nil, discard)

		require.NoError(t, a.MarkRead(context.Background(), "r1", "u2"))
		docs.AssertExpectations(t)
		docs.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("falls back to merge once", func(t *testing.T) {
		docs := &mockDocs{}
		docs.On("Update", "rooms/r1", mock.Anything).Return(remote.ErrNotFound).Once()
		docs.On("Set", "rooms/r1", map[string]any{
			"isPublic": false,
			"settings": map[string]any{
				"basic":    map[string]any{"isPublic": false},
				"security": map[string]any{"passwordLock": "abc"},
			},
		}, remote.MergeAll).Return(nil).Once()
		a := NewAdapter(docs, me, nil, discard)

		require.NoError(t, a.SetPrivacy(context.Background(), "r1", false, models.Ptr("abc")))
		docs.AssertExpectations(t)
	})

	t.Run("fallback error is returned", func(t *testing.T) {
		docs := &mockDocs{}
		boom := errors.New("boom")
		docs.On("Update", "rooms/r1", mock.Anything).Return(boom).Once()
		docs.On("Set", "rooms/r1", mock.Anything, remote.MergeAll).Return(boom).Once()
		a := NewAdapter(docs, me, nil, discard)

		err := a.SaveSettings(context.Background(), "r1", models.DefaultRoomSettings(models.Room{}))
		assert.ErrorIs(t, err, boom)
		docs.AssertNumberOfCalls(t, "Set", 1)
	})
}

func TestBumpUnread(t *testing.T) {
	docs := &mockDocs{}
	docs.On("Increment", "rooms/r1/members/u2", "unread", int64(1)).Return(nil).Once()
	docs.On("Increment", "rooms/r1/members/u3", "unread", int64(1)).Return(nil).Once()
	a := NewAdapter(docs, me, nil, discard)

	require.NoError(t, a.BumpUnread(context.Background(), "r1", []string{"u2", "u3"}))
	docs.AssertExpectations(t)
}

type failingIdentity struct{}

func (failingIdentity) Current() (identity.Identity, bool) { return identity.Identity{}, false }
func (failingIdentity) Ensure(ctx context.Context) (identity.Identity, error) {
	return identity.Identity{}, errors.New("offline")
}

func TestIdentityPrecondition(t *testing.T) {
	docs := &mockDocs{}
	a := NewAdapter(docs, failingIdentity{}, nil, discard)

	err := a.DeleteMessage(context.Background(), "r1", "m1")
	assert.ErrorIs(t, err, ErrNoIdentity)
	docs.AssertNotCalled(t, "Delete", mock.Anything)

	anon := identity.NewAnonymous()
	docs.On("Delete", "rooms/r1/messages/m1").Return(nil).Once()
	a = NewAdapter(docs, anon, nil, discard)
	require.NoError(t, a.DeleteMessage(context.Background(), "r1", "m1"))
	_, ok := anon.Current()
	assert.True(t, ok)
}

func testRoom() models.Room {
	return models.Room{
		ID:        "r1",
		Title:     "Team",
		Members:   []string{"u1", "u2", "u3"},
		CreatedBy: "u1",
		Type:      models.GroupRoom,
		IsPublic:  true,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCreateAndFetchRoom(t *testing.T) {
	ctx := context.Background()
	docs := remote.NewMemoryStore()
	a := NewAdapter(docs, me, nil, discard)

	room := testRoom()
	room.UnreadCount = 4
	settings := models.DefaultRoomSettings(room)
	require.NoError(t, a.CreateRoom(ctx, room, settings, nil))

	got, err := a.FetchRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, got.Room.Members)
	assert.Equal(t, "Team", got.Room.Title)
	assert.Equal(t, 0, got.Room.UnreadCount)
	assert.True(t, room.CreatedAt.Equal(got.Room.CreatedAt))
	assert.False(t, got.Archived)
	require.NotNil(t, got.Settings)
	role, _ := got.Settings.RoleOf("u1")
	assert.Equal(t, models.Admin, role)

	member, err := docs.Get(ctx, "rooms/r1/members/u2")
	require.NoError(t, err)
	assert.Equal(t, "member", member.Data["role"])
	_, err = docs.Get(ctx, "users/u3/rooms/r1")
	assert.NoError(t, err)
}

func TestCreateRoom_SeedsCreator(t *testing.T) {
	ctx := context.Background()
	docs := remote.NewMemoryStore()
	anon := identity.NewAnonymous()
	a := NewAdapter(docs, anon, nil, discard)

	room := testRoom()
	room.Members = []string{"u2", "u3"}
	room.CreatedBy = "u2"
	require.NoError(t, a.CreateRoom(ctx, room, models.DefaultRoomSettings(room), nil))

	current, ok := anon.Current()
	require.True(t, ok)

	got, err := a.FetchRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, got.Room.Members)
	require.NotNil(t, got.Settings)
	assert.Equal(t, map[string]models.Role{"u2": models.Admin}, got.Settings.Members.Roles)

	admin, err := docs.Get(ctx, "rooms/r1/members/u2")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Data["role"])
	_, err = docs.Get(ctx, "rooms/r1/members/"+current.UserID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = docs.Get(ctx, "users/"+current.UserID+"/rooms/r1")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestApplyMembership(t *testing.T) {
	ctx := context.Background()
	docs := remote.NewMemoryStore()
	a := NewAdapter(docs, me, nil, discard)
	room := testRoom()
	require.NoError(t, a.CreateRoom(ctx, room, models.DefaultRoomSettings(room), nil))

	settings := models.DefaultRoomSettings(room)
	settings.Members.Banned = []string{"u2"}
	require.NoError(t, a.ApplyMembership(ctx, MembershipChange{
		RoomID:   "r1",
		Added:    []string{"u4"},
		Removed:  []string{"u2"},
		Settings: &settings,
	}))

	got, err := a.FetchRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3", "u4"}, got.Room.Members)
	assert.Equal(t, []string{"u2"}, got.Settings.Members.Banned)

	_, err = docs.Get(ctx, "rooms/r1/members/u2")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = docs.Get(ctx, "users/u2/rooms/r1")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = docs.Get(ctx, "users/u4/rooms/r1")
	assert.NoError(t, err)
}

func TestDMRoom(t *testing.T) {
	ctx := context.Background()
	docs := remote.NewMemoryStore()
	a := NewAdapter(docs, me, nil, discard)

	_, ok, err := a.FindDMRoom(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	room := models.Room{ID: "dm1", Members: []string{"u1", "u2"}, Type: models.DMRoom, CreatedBy: "u1"}
	require.NoError(t, a.CreateDMRoom(ctx, room, models.DefaultRoomSettings(room)))

	found, ok, err := a.FindDMRoom(ctx, "u2", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dm1", found.ID)

	_, ok, err = a.FindDMRoom(ctx, "u1", "u3")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, p := range []string{"rooms/dm1/members/u1", "rooms/dm1/members/u2", "users/u1/rooms/dm1", "users/u2/rooms/dm1"} {
		_, err := docs.Get(ctx, p)
		assert.NoError(t, err, p)
	}
}

func TestSendMessagePromotesMedia(t *testing.T) {
	ctx := context.Background()
	docs := remote.NewMemoryStore()
	storage, err := media.NewFSStorage(afero.NewMemMapFs(), "media", "https://cdn.example.com/media")
	require.NoError(t, err)
	a := NewAdapter(docs, me, media.NewPromoter(storage, afero.NewMemMapFs()), discard)

	msg := models.Message{
		ID:        "m1",
		RoomID:    "r1",
		SenderID:  "u1",
		Content:   "look",
		Type:      models.ImageMessage,
		ImageURL:  "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("pixels")),
		AlbumURLs: []string{"https://cdn.example.com/a.png", "ph://local-only"},
		CreatedAt: time.Now(),
	}

	var patch models.MessagePatch
	require.NoError(t, a.SendMessage(ctx, msg, func(p models.MessagePatch) { patch = p }))

	require.NotNil(t, patch.ImageURL)
	assert.True(t, media.IsDurable(*patch.ImageURL))

	doc, err := docs.Get(ctx, "rooms/r1/messages/m1")
	require.NoError(t, err)
	var stored models.Message
	require.NoError(t, doc.DataTo(&stored))
	assert.Equal(t, *patch.ImageURL, stored.ImageURL)
	assert.Equal(t, []string{"https://cdn.example.com/a.png"}, stored.AlbumURLs)

	room, err := docs.Get(ctx, "rooms/r1")
	require.NoError(t, err)
	assert.Equal(t, "look", room.Data["lastMessage"])
}

func TestSaveInvite(t *testing.T) {
	ctx := context.Background()
	docs := remote.NewMemoryStore()
	a := NewAdapter(docs, me, nil, discard)

	invite := models.Invite{Code: "ABCDEFGH", RoomID: "r1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, a.SaveInvite(ctx, invite))

	room, err := docs.Get(ctx, "rooms/r1")
	require.NoError(t, err)
	code, _ := room.Field("settings.basic.inviteCode")
	assert.Equal(t, "ABCDEFGH", code)

	_, err = docs.Get(ctx, "rooms/r1/invites/ABCDEFGH")
	assert.NoError(t, err)
}
