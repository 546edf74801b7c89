package models

import "time"

// Invite is an immutable record of an invite code generated for a room.
type Invite struct {
	Code      string    `json:"code"`
	RoomID    string    `json:"roomId"`
	QRURL     string    `json:"qrUrl"`
	DeepLink  string    `json:"deepLink"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	MaxUses   *int      `json:"maxUses,omitempty"`
}

// Expired reports whether the invite can no longer be used.
func (i *Invite) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
