package store

import (
	"testing"
	"time"

	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/remote"
	"github.com/putto11262002/roomsync/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoom(t *testing.T) {
	cases := []struct {
		name       string
		id         identity.Provider
		input      CreateRoomInput
		err        error
		wantType   models.RoomType
		wantPublic bool
		members    []string
	}{
		{
			name:       "group by member count",
			id:         u1,
			input:      CreateRoomInput{Title: "Team", Members: []string{"u1", "u2", "u3"}},
			wantType:   models.GroupRoom,
			wantPublic: true,
			members:    []string{"u1", "u2", "u3"},
		},
		{
			name:     "dm by member count with creator added",
			id:       u1,
			input:    CreateRoomInput{Members: []string{"u2"}},
			wantType: models.DMRoom,
			members:  []string{"u1", "u2"},
		},
		{
			name:     "secret room is private",
			id:       u1,
			input:    CreateRoomInput{Members: []string{"u1", "u2", "u3"}, Type: models.SecretRoom},
			wantType: models.SecretRoom,
			members:  []string{"u1", "u2", "u3"},
		},
		{
			name:     "password makes the room private",
			id:       u1,
			input:    CreateRoomInput{Members: []string{"u2", "u3"}, Type: models.GroupRoom, Password: models.Ptr("abc")},
			wantType: models.GroupRoom,
			members:  []string{"u1", "u2", "u3"},
		},
		{
			name:       "notice downgraded without privileges",
			id:         u1,
			input:      CreateRoomInput{Members: []string{"u1", "u2", "u3"}, Type: models.NoticeRoom},
			wantType:   models.GroupRoom,
			wantPublic: true,
			members:    []string{"u1", "u2", "u3"},
		},
		{
			name:     "notice downgraded to dm without privileges",
			id:       u1,
			input:    CreateRoomInput{Members: []string{"u2"}, Type: models.NoticeRoom},
			wantType: models.DMRoom,
			members:  []string{"u1", "u2"},
		},
		{
			name:       "notice kept for privileged caller",
			id:         identity.Static{UserID: "admin", Privileged: true},
			input:      CreateRoomInput{Members: []string{"u2"}, Type: models.NoticeRoom},
			wantType:   models.NoticeRoom,
			wantPublic: true,
			members:    []string{"admin", "u2"},
		},
		{
			name:  "explicit dm with three members",
			id:    u1,
			input: CreateRoomInput{Members: []string{"u2", "u3"}, Type: models.DMRoom},
			err:   ErrInvalidMember,
		},
		{
			name:  "room with only the creator",
			id:    u1,
			input: CreateRoomInput{Members: []string{"u1"}},
			err:   ErrInvalidMember,
		},
		{
			name:  "no members",
			id:    u1,
			input: CreateRoomInput{Title: "empty"},
			err:   ErrInvalidRoom,
		},
		{
			name:  "member id with a field separator",
			id:    u1,
			input: CreateRoomInput{Members: []string{"u2", "a.b"}},
			err:   ErrInvalidRoom,
		},
		{
			name:  "member id with a path separator",
			id:    u1,
			input: CreateRoomInput{Members: []string{"u2/x"}},
			err:   ErrInvalidRoom,
		},
		{
			name:  "unknown type",
			id:    u1,
			input: CreateRoomInput{Members: []string{"u2"}, Type: "broadcast"},
			err:   ErrInvalidRoom,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewStoreFixture(t, tc.id)

			room, err := f.store.CreateRoom(tc.input)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.Empty(t, f.store.Rooms())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, room.Type)
			assert.Equal(t, tc.wantPublic, room.IsPublic)
			assert.ElementsMatch(t, tc.members, room.Members)
			assert.NotEmpty(t, room.ID)

			if len(room.Members) <= 2 && tc.input.Type == "" {
				assert.Equal(t, models.DMRoom, room.Type)
			}

			stored, ok := f.store.Room(room.ID)
			require.True(t, ok)
			assert.Equal(t, room, stored)
		})
	}
}

func TestCreateRoom_Defaults(t *testing.T) {
	f := NewStoreFixture(t, u1)
	room, err := f.store.CreateRoom(CreateRoomInput{
		Title:            "Hikers",
		Members:          []string{"u2", "u3"},
		Tags:             []string{" Outdoor", "outdoor", "", "TRAIL "},
		Password:         models.Ptr("secret"),
		ParticipantLimit: models.Ptr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outdoor", "trail"}, room.Tags)
	assert.Equal(t, "u1", room.CreatedBy)

	st, err := f.store.RoomSettings(room.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", *st.Security.PasswordLock)
	assert.Equal(t, 10, st.Basic.ParticipantLimit)
	assert.False(t, st.Basic.IsPublic)
	role, ok := st.RoleOf("u1")
	require.True(t, ok)
	assert.Equal(t, models.Admin, role)
}

func TestCreateRoom_Remote(t *testing.T) {
	f := NewStoreFixture(t, u1)
	id := f.createRoom("Team", "u1", "u2", "u3")
	f.flush()

	doc := f.doc("rooms/" + id)
	for _, uid := range []string{"u1", "u2", "u3"} {
		v, ok := doc.Field("members." + uid)
		require.True(t, ok, uid)
		assert.Equal(t, true, v)

		f.doc("users/" + uid + "/rooms/" + id)
	}
	role, ok := doc.Field("settings.members.roles.u1")
	require.True(t, ok)
	assert.Equal(t, "admin", role)

	member := f.doc("rooms/" + id + "/members/u1")
	assert.Equal(t, "admin", member.Data["role"])
}

func TestCreateRoom_AnonymousIdentity(t *testing.T) {
	anon := identity.NewAnonymous()
	f := NewStoreFixture(t, anon)

	room, err := f.store.CreateRoom(CreateRoomInput{Title: "Team", Members: []string{"u1", "u2", "u3"}})
	require.NoError(t, err)
	assert.Equal(t, "u1", room.CreatedBy)
	f.flush()

	current, ok := anon.Current()
	require.True(t, ok, "the remote write signs in anonymously")
	require.NotEqual(t, "u1", current.UserID)

	roles, ok := f.doc("rooms/" + room.ID).Field("settings.members.roles")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"u1": "admin"}, roles)
	members, _ := f.doc("rooms/" + room.ID).Field("members")
	assert.Len(t, members, 3)

	_, err = f.docs.Get(f.ctx, "rooms/"+room.ID+"/members/"+current.UserID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = f.docs.Get(f.ctx, "users/"+current.UserID+"/rooms/"+room.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Equal(t, "admin", f.doc("rooms/"+room.ID+"/members/u1").Data["role"])
}

func TestCreateRoom_PromotesAvatar(t *testing.T) {
	f := NewStoreFixture(t, u1)
	room, err := f.store.CreateRoom(CreateRoomInput{
		Members:   []string{"u2", "u3"},
		AvatarURL: "data:image/png;base64,iVBORw0KGgo=",
	})
	require.NoError(t, err)
	f.flush()

	local, ok := f.store.Room(room.ID)
	require.True(t, ok)
	assert.Contains(t, local.AvatarURL, "http://localhost:8080/media/")

	remoteAvatar, _ := f.doc("rooms/" + room.ID).Field("avatarUrl")
	assert.Equal(t, local.AvatarURL, remoteAvatar)
}

func TestSetTTL(t *testing.T) {
	f := NewStoreFixture(t, u1)
	id := f.createRoom("Team", "u1", "u2", "u3")

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SetRoomTTL(id, &expires))
	require.NoError(t, f.store.SetMessageTTL(id, models.Ptr(int64(60_000))))
	assert.ErrorIs(t, f.store.SetMessageTTL(id, models.Ptr(int64(0))), ErrInvalidRoom)
	assert.ErrorIs(t, f.store.SetRoomTTL("missing", nil), ErrInvalidRoom)
	f.flush()

	room, _ := f.store.Room(id)
	require.NotNil(t, room.ExpiresAt)
	assert.True(t, expires.Equal(*room.ExpiresAt))
	assert.Equal(t, int64(60_000), *room.MessageTTL)
	assert.False(t, room.Expired(expires.Add(-time.Second)))
	assert.True(t, room.Expired(expires))

	doc := f.doc("rooms/" + id)
	assert.Equal(t, float64(60_000), doc.Data["messageTtlMs"])
	assert.Equal(t, expires.Format(time.RFC3339Nano), doc.Data["expiresAt"])

	require.NoError(t, f.store.SetRoomTTL(id, nil))
	f.flush()
	room, _ = f.store.Room(id)
	assert.Nil(t, room.ExpiresAt)
	_, ok := f.doc("rooms/" + id).Field("expiresAt")
	assert.False(t, ok)
}

func TestUpdateRoomMeta(t *testing.T) {
	f := NewStoreFixture(t, u1)
	id := f.createRoom("Team", "u1", "u2", "u3")
	f.flush()

	room, err := f.store.UpdateRoomMeta(f.ctx, id, syncer.RoomMeta{
		Title:       models.Ptr("Core team"),
		Description: models.Ptr("weekly sync"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Core team", room.Title)
	assert.Equal(t, "weekly sync", room.Description)

	st, err := f.store.RoomSettings(id)
	require.NoError(t, err)
	assert.Equal(t, "weekly sync", st.Basic.Description)

	doc := f.doc("rooms/" + id)
	assert.Equal(t, "Core team", doc.Data["title"])
	desc, _ := doc.Field("settings.basic.description")
	assert.Equal(t, "weekly sync", desc)

	_, err = f.store.UpdateRoomMeta(f.ctx, "missing", syncer.RoomMeta{Title: models.Ptr("x")})
	assert.ErrorIs(t, err, ErrInvalidRoom)
}
