package models

import (
	"maps"
	"slices"
)

// PermissionLevel restricts an action in a room to a group of members.
type PermissionLevel string

const (
	Everyone   PermissionLevel = "everyone"
	Moderators PermissionLevel = "moderators"
	Admins     PermissionLevel = "admins"
)

// RoomSettings is the per-room configuration.
// Every room has settings; when none are stored, DefaultRoomSettings is used.
type RoomSettings struct {
	Basic         BasicSettings        `json:"basic"`
	Members       MemberSettings       `json:"members"`
	Permissions   PermissionSettings   `json:"permissions"`
	Security      SecuritySettings     `json:"security"`
	Notifications NotificationSettings `json:"notifications"`
	Theme         ThemeSettings        `json:"theme"`
}

type BasicSettings struct {
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
	InviteCode   string `json:"inviteCode"`
	IsPublic     bool   `json:"isPublic"`
	// ParticipantLimit of zero means unlimited.
	ParticipantLimit int `json:"participantLimit"`
}

type MemberSettings struct {
	Banned []string        `json:"banned"`
	Roles  map[string]Role `json:"roles"`
}

type PermissionSettings struct {
	Uploads     PermissionLevel `json:"uploads"`
	DeleteOrPin PermissionLevel `json:"deleteOrPin"`
	Links       PermissionLevel `json:"links"`
	Polls       PermissionLevel `json:"polls"`
}

type SecuritySettings struct {
	Blacklist     []string `json:"blacklist"`
	Reported      []string `json:"reported"`
	PasswordLock  *string  `json:"passwordLock,omitempty"`
	TwoFactor     bool     `json:"twoFactor"`
	UseHashInRoom *bool    `json:"useHashInRoom,omitempty"`
}

type NotificationSettings struct {
	Messages     bool `json:"messages"`
	MentionsOnly bool `json:"mentionsOnly"`
	JoinAlerts   bool `json:"joinAlerts"`
	Sound        bool `json:"sound"`
}

type ThemeSettings struct {
	BackgroundType     string  `json:"backgroundType"`
	BackgroundImageURL *string `json:"backgroundImageUrl,omitempty"`
	BackgroundColor    *string `json:"backgroundColor,omitempty"`
	Mode               string  `json:"mode"`
	FontScale          float64 `json:"fontScale"`
	BubbleColor        *string `json:"bubbleColor,omitempty"`
}

// DefaultRoomSettings computes the settings of a room that has none stored yet.
// The creator of the room is seeded as admin.
func DefaultRoomSettings(room Room) RoomSettings {
	roles := make(map[string]Role)
	if room.CreatedBy != "" {
		roles[room.CreatedBy] = Admin
	}
	return RoomSettings{
		Basic: BasicSettings{
			Description:  room.Description,
			ThumbnailURL: room.AvatarURL,
			IsPublic:     room.IsPublic,
		},
		Members: MemberSettings{
			Banned: []string{},
			Roles:  roles,
		},
		Permissions: PermissionSettings{
			Uploads:     Everyone,
			DeleteOrPin: Moderators,
			Links:       Everyone,
			Polls:       Everyone,
		},
		Security: SecuritySettings{
			Blacklist: []string{},
			Reported:  []string{},
		},
		Notifications: NotificationSettings{
			Messages:   true,
			JoinAlerts: true,
			Sound:      true,
		},
		Theme: ThemeSettings{
			BackgroundType: "default",
			Mode:           "system",
			FontScale:      1,
		},
	}
}

// HasPassword reports whether a non-empty password lock is set.
func (s *RoomSettings) HasPassword() bool {
	return s.Security.PasswordLock != nil && *s.Security.PasswordLock != ""
}

// Heal corrects a public room that carries a password: such a room is made private.
// It returns true if the settings were changed. Calling Heal twice is the same as once.
func (s *RoomSettings) Heal() bool {
	if s.HasPassword() && s.Basic.IsPublic {
		s.Basic.IsPublic = false
		return true
	}
	return false
}

// RoleOf returns the role of the user, or false if the user has none.
func (s *RoomSettings) RoleOf(userID string) (Role, bool) {
	role, ok := s.Members.Roles[userID]
	return role, ok
}

// IsBanned reports whether the user is on the ban list or the blacklist.
func (s *RoomSettings) IsBanned(userID string) bool {
	return slices.Contains(s.Members.Banned, userID) || slices.Contains(s.Security.Blacklist, userID)
}

// Clone returns a deep copy of the settings.
func (s RoomSettings) Clone() RoomSettings {
	s.Members.Banned = slices.Clone(s.Members.Banned)
	s.Members.Roles = maps.Clone(s.Members.Roles)
	s.Security.Blacklist = slices.Clone(s.Security.Blacklist)
	s.Security.Reported = slices.Clone(s.Security.Reported)
	s.Security.PasswordLock = clonePtr(s.Security.PasswordLock)
	s.Security.UseHashInRoom = clonePtr(s.Security.UseHashInRoom)
	s.Theme.BackgroundImageURL = clonePtr(s.Theme.BackgroundImageURL)
	s.Theme.BackgroundColor = clonePtr(s.Theme.BackgroundColor)
	s.Theme.BubbleColor = clonePtr(s.Theme.BubbleColor)
	return s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// RoomSettingsPatch is a partial update of RoomSettings applied with Merge.
// A nil section or field leaves the current value untouched. Maps are merged key by key
// and slices are replaced.
//
// The public flag and the password lock are deliberately absent: they can only be
// changed together through the privacy command.
type RoomSettingsPatch struct {
	Basic         *BasicSettingsPatch        `json:"basic,omitempty"`
	Members       *MemberSettingsPatch       `json:"members,omitempty"`
	Permissions   *PermissionSettingsPatch   `json:"permissions,omitempty"`
	Security      *SecuritySettingsPatch     `json:"security,omitempty"`
	Notifications *NotificationSettingsPatch `json:"notifications,omitempty"`
	Theme         *ThemeSettingsPatch        `json:"theme,omitempty"`
}

type BasicSettingsPatch struct {
	Description      *string `json:"description,omitempty"`
	ThumbnailURL     *string `json:"thumbnailUrl,omitempty"`
	InviteCode       *string `json:"inviteCode,omitempty"`
	ParticipantLimit *int    `json:"participantLimit,omitempty"`
}

type MemberSettingsPatch struct {
	Banned []string        `json:"banned,omitempty"`
	Roles  map[string]Role `json:"roles,omitempty"`
}

type PermissionSettingsPatch struct {
	Uploads     *PermissionLevel `json:"uploads,omitempty"`
	DeleteOrPin *PermissionLevel `json:"deleteOrPin,omitempty"`
	Links       *PermissionLevel `json:"links,omitempty"`
	Polls       *PermissionLevel `json:"polls,omitempty"`
}

type SecuritySettingsPatch struct {
	Blacklist     []string `json:"blacklist,omitempty"`
	Reported      []string `json:"reported,omitempty"`
	TwoFactor     *bool    `json:"twoFactor,omitempty"`
	UseHashInRoom *bool    `json:"useHashInRoom,omitempty"`
}

type NotificationSettingsPatch struct {
	Messages     *bool `json:"messages,omitempty"`
	MentionsOnly *bool `json:"mentionsOnly,omitempty"`
	JoinAlerts   *bool `json:"joinAlerts,omitempty"`
	Sound        *bool `json:"sound,omitempty"`
}

type ThemeSettingsPatch struct {
	BackgroundType     *string  `json:"backgroundType,omitempty"`
	BackgroundImageURL *string  `json:"backgroundImageUrl,omitempty"`
	BackgroundColor    *string  `json:"backgroundColor,omitempty"`
	Mode               *string  `json:"mode,omitempty"`
	FontScale          *float64 `json:"fontScale,omitempty"`
	BubbleColor        *string  `json:"bubbleColor,omitempty"`
}

// Apply returns a copy of s with the patch deep-merged into it.
func (p RoomSettingsPatch) Apply(s RoomSettings) RoomSettings {
	out := s.Clone()
	Merge(&out, p)
	return out
}
