package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"time"

	"github.com/putto11262002/roomsync/models"
)

const (
	inviteCodeLength = 8
	// inviteAlphabet leaves out characters that are easily confused, such as 0, O, 1 and I.
	inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func newInviteCode() (string, error) {
	code := make([]byte, inviteCodeLength)
	size := big.NewInt(int64(len(inviteAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("rand.Int: %w", err)
		}
		code[i] = inviteAlphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateInvite creates an invite to the room and stores its code in the room settings.
//
// The invite is written remotely before returning. If that fails the locally generated
// invite is still returned: the code is valid locally and the settings are synced by a
// later save.
func (s *Store) GenerateInvite(ctx context.Context, roomID string, opts InviteOptions) (models.Invite, error) {
	if err := opts.Validate(); err != nil {
		return models.Invite{}, err
	}
	code, err := newInviteCode()
	if err != nil {
		return models.Invite{}, err
	}

	_, createdBy := s.currentUser("")
	now := s.now()
	ttl := s.config.InviteTTL
	if opts.MaxAgeSec != nil {
		ttl = time.Duration(*opts.MaxAgeSec) * time.Second
	}

	deepLink := fmt.Sprintf("%s/%s?room=%s", s.config.InviteLinkBase, code, url.QueryEscape(roomID))
	invite := models.Invite{
		Code:      code,
		RoomID:    roomID,
		QRURL:     s.config.QRCodeURL + "?size=300x300&data=" + url.QueryEscape(deepLink),
		DeepLink:  deepLink,
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if opts.MaxUses != nil {
		invite.MaxUses = models.Ptr(*opts.MaxUses)
	}

	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return models.Invite{}, ErrInvalidRoom
	}
	st := s.settingsLocked(room)
	st.Basic.InviteCode = code
	s.settings[roomID] = st
	s.mu.Unlock()
	s.notify()

	if err := s.remote.SaveInvite(ctx, invite); err != nil {
		s.logger.Warn("generate invite: remote write failed",
			slog.String("room", roomID),
			slog.String("error", err.Error()))
	}
	return invite, nil
}
