package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() RoomSettings {
	s := DefaultRoomSettings(Room{
		ID:          "r1",
		CreatedBy:   "u1",
		Description: "team room",
		AvatarURL:   "https://cdn.example.com/a.png",
		IsPublic:    true,
	})
	s.Members.Roles["u2"] = Moderator
	s.Security.PasswordLock = Ptr("abc")
	s.Theme.BubbleColor = Ptr("#fff")
	return s
}

func TestMerge(t *testing.T) {
	t.Run("leaf update leaves siblings intact", func(t *testing.T) {
		before := testSettings()
		after := RoomSettingsPatch{Theme: &ThemeSettingsPatch{FontScale: Ptr(1.2)}}.Apply(before)

		assert.Equal(t, 1.2, after.Theme.FontScale)
		after.Theme.FontScale = before.Theme.FontScale
		assert.Equal(t, before, after)
	})

	t.Run("apply does not mutate the input", func(t *testing.T) {
		before := testSettings()
		snapshot := before.Clone()
		RoomSettingsPatch{
			Members: &MemberSettingsPatch{Roles: map[string]Role{"u3": Member}},
			Theme:   &ThemeSettingsPatch{BubbleColor: Ptr("#000")},
		}.Apply(before)
		assert.Equal(t, snapshot, before)
	})

	t.Run("maps merge key by key", func(t *testing.T) {
		after := RoomSettingsPatch{
			Members: &MemberSettingsPatch{Roles: map[string]Role{"u3": Member, "u2": Admin}},
		}.Apply(testSettings())

		assert.Equal(t, map[string]Role{"u1": Admin, "u2": Admin, "u3": Member}, after.Members.Roles)
	})

	t.Run("slices replace", func(t *testing.T) {
		s := testSettings()
		s.Members.Banned = []string{"x", "y"}
		after := RoomSettingsPatch{Members: &MemberSettingsPatch{Banned: []string{"z"}}}.Apply(s)

		assert.Equal(t, []string{"z"}, after.Members.Banned)
		assert.Equal(t, []string{"x", "y"}, s.Members.Banned)
	})

	t.Run("pointer leaf allocates", func(t *testing.T) {
		s := testSettings()
		require.Nil(t, s.Theme.BackgroundColor)
		after := RoomSettingsPatch{Theme: &ThemeSettingsPatch{BackgroundColor: Ptr("#123")}}.Apply(s)

		require.NotNil(t, after.Theme.BackgroundColor)
		assert.Equal(t, "#123", *after.Theme.BackgroundColor)
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		s := testSettings()
		assert.Equal(t, s, RoomSettingsPatch{}.Apply(s))
	})

	t.Run("named types convert", func(t *testing.T) {
		after := RoomSettingsPatch{
			Permissions: &PermissionSettingsPatch{Uploads: Ptr(Admins)},
			Basic:       &BasicSettingsPatch{ParticipantLimit: Ptr(10)},
		}.Apply(testSettings())

		assert.Equal(t, Admins, after.Permissions.Uploads)
		assert.Equal(t, Moderators, after.Permissions.DeleteOrPin)
		assert.Equal(t, 10, after.Basic.ParticipantLimit)
		assert.Equal(t, "team room", after.Basic.Description)
	})

	t.Run("non struct destination panics", func(t *testing.T) {
		n := 1
		assert.Panics(t, func() { Merge(&n, RoomSettingsPatch{}) })
	})
}

func TestHeal(t *testing.T) {
	s := testSettings()
	require.True(t, s.Basic.IsPublic)

	assert.True(t, s.Heal())
	assert.False(t, s.Basic.IsPublic)
	assert.Equal(t, "abc", *s.Security.PasswordLock)

	healed := s.Clone()
	assert.False(t, s.Heal())
	assert.Equal(t, healed, s)

	t.Run("empty password is not a lock", func(t *testing.T) {
		s := testSettings()
		s.Security.PasswordLock = Ptr("")
		assert.False(t, s.Heal())
		assert.True(t, s.Basic.IsPublic)
	})
}

func TestDefaultRoomSettings(t *testing.T) {
	s := DefaultRoomSettings(Room{CreatedBy: "owner", Description: "d", AvatarURL: "https://x/y.png"})

	role, ok := s.RoleOf("owner")
	assert.True(t, ok)
	assert.Equal(t, Admin, role)
	assert.Equal(t, "d", s.Basic.Description)
	assert.Equal(t, "https://x/y.png", s.Basic.ThumbnailURL)
	assert.False(t, s.HasPassword())
	assert.Equal(t, float64(1), s.Theme.FontScale)
	assert.NotNil(t, s.Members.Banned)
}
