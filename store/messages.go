package store

import (
	"context"
	"maps"
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/putto11262002/roomsync/models"
)

// SendMessage appends a message to the room and returns it before the remote write.
//
// Sending a message whose id equals the id of the last message of the room is a no-op
// that returns the stored message, so a re-entrant send cannot insert it twice.
// The message is written remotely after its media is promoted, and the unread counter of
// every other member is incremented once.
func (s *Store) SendMessage(in SendMessageInput) (models.Message, error) {
	if err := in.Validate(); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	room, ok := s.room(in.RoomID)
	if !ok {
		s.mu.Unlock()
		return models.Message{}, ErrInvalidRoom
	}
	msgs := s.messages[in.RoomID]
	if in.ID != "" && len(msgs) > 0 && msgs[len(msgs)-1].ID == in.ID {
		last := msgs[len(msgs)-1].Clone()
		s.mu.Unlock()
		return last, nil
	}

	msgType := in.Type
	if msgType == "" {
		switch {
		case len(in.AlbumURLs) > 0:
			msgType = models.AlbumMessage
		case in.ImageURL != "":
			msgType = models.ImageMessage
		default:
			msgType = models.TextMessage
		}
	}
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	msg := models.Message{
		ID:        id,
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		CreatedAt: s.now(),
		ReadBy:    []string{in.SenderID},
		Type:      msgType,
		ImageURL:  in.ImageURL,
		AlbumURLs: slices.Clone(in.AlbumURLs),
		ReplyToID: in.ReplyToID,
	}
	s.messages[in.RoomID] = append(msgs, msg.Clone())
	room.LastMessage = msg.Content
	createdAt := msg.CreatedAt
	room.LastMessageAt = &createdAt

	recipients := make([]string, 0, len(room.Members))
	for _, m := range room.Members {
		if m != in.SenderID {
			recipients = append(recipients, m)
		}
	}
	s.mu.Unlock()
	s.notify()

	remoteMsg := msg.Clone()
	s.enqueue("sendMessage", func(ctx context.Context) error {
		return s.remote.SendMessage(ctx, remoteMsg, func(patch models.MessagePatch) {
			// The message may have been deleted by then.
			_ = s.UpdateMessage(remoteMsg.RoomID, remoteMsg.ID, patch)
		})
	})
	if len(recipients) > 0 {
		s.enqueueOnce("bumpUnread", func(ctx context.Context) error {
			return s.remote.BumpUnread(ctx, remoteMsg.RoomID, recipients)
		})
	}
	return msg, nil
}

// MarkRead marks every message of the room as read by the user and resets the unread
// counter. Calling it again has no further effect on the messages.
func (s *Store) MarkRead(roomID, userID string) error {
	if userID == "" {
		return ErrInvalidMember
	}
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	msgs := s.messages[roomID]
	for i := range msgs {
		msgs[i].MarkReadBy(userID)
	}
	room.UnreadCount = 0
	s.mu.Unlock()
	s.notify()

	s.enqueue("markRead", func(ctx context.Context) error {
		return s.remote.MarkRead(ctx, roomID, userID)
	})
	return nil
}

// ToggleReaction applies the reaction of the user to the message and returns the message.
// See models.ToggleReaction for the rules.
func (s *Store) ToggleReaction(roomID, messageID, emoji, userID string) (models.Message, error) {
	if emoji == "" {
		return models.Message{}, ErrInvalidMessage
	}
	if userID == "" {
		return models.Message{}, ErrInvalidMember
	}
	s.mu.Lock()
	if _, ok := s.room(roomID); !ok {
		s.mu.Unlock()
		return models.Message{}, ErrInvalidRoom
	}
	i := s.messageIndex(roomID, messageID)
	if i < 0 {
		s.mu.Unlock()
		return models.Message{}, ErrInvalidMessage
	}
	msg := &s.messages[roomID][i]
	models.ToggleReaction(msg, userID, emoji)
	out := msg.Clone()
	s.mu.Unlock()
	s.notify()

	byUser, counts := maps.Clone(out.ReactionsByUser), maps.Clone(out.ReactionsCount)
	s.enqueue("toggleReaction", func(ctx context.Context) error {
		return s.remote.UpdateReactions(ctx, roomID, messageID, byUser, counts)
	})
	return out, nil
}

// DeleteMessage removes the message for every member of the room.
func (s *Store) DeleteMessage(roomID, messageID string) error {
	s.mu.Lock()
	room, ok := s.room(roomID)
	if !ok {
		s.mu.Unlock()
		return ErrInvalidRoom
	}
	i := s.messageIndex(roomID, messageID)
	if i < 0 {
		s.mu.Unlock()
		return ErrInvalidMessage
	}
	msgs := slices.Delete(s.messages[roomID], i, i+1)
	s.messages[roomID] = msgs
	delete(s.hidden[roomID], messageID)
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		createdAt := last.CreatedAt
		room.LastMessage = last.Content
		room.LastMessageAt = &createdAt
	} else {
		room.LastMessage = ""
		room.LastMessageAt = nil
	}
	s.mu.Unlock()
	s.notify()

	s.enqueue("deleteMessage", func(ctx context.Context) error {
		return s.remote.DeleteMessage(ctx, roomID, messageID)
	})
	return nil
}

// HideForUser hides the message from the local user only. Nothing is written remotely.
func (s *Store) HideForUser(roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messageIndex(roomID, messageID) < 0 {
		return ErrInvalidMessage
	}
	if s.hidden[roomID] == nil {
		s.hidden[roomID] = make(map[string]bool)
	}
	s.hidden[roomID][messageID] = true
	s.notify()
	return nil
}

func (s *Store) UnhideForUser(roomID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messageIndex(roomID, messageID) < 0 {
		return ErrInvalidMessage
	}
	delete(s.hidden[roomID], messageID)
	if len(s.hidden[roomID]) == 0 {
		delete(s.hidden, roomID)
	}
	s.notify()
	return nil
}

// GetMessages returns the messages of the room the local user has not hidden.
func (s *Store) GetMessages(roomID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	hidden := s.hidden[roomID]
	out := make([]models.Message, 0, len(s.messages[roomID]))
	for _, m := range s.messages[roomID] {
		if hidden[m.ID] {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// AllMessages returns every message of the room, hidden ones included.
func (s *Store) AllMessages(roomID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages[roomID]))
	for i, m := range s.messages[roomID] {
		out[i] = m.Clone()
	}
	return out
}

// UpdateMessage patches the local copy of a message. Nothing is written remotely.
func (s *Store) UpdateMessage(roomID, messageID string, patch models.MessagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.messageIndex(roomID, messageID)
	if i < 0 {
		return ErrInvalidMessage
	}
	patch.Apply(&s.messages[roomID][i])
	if patch.Content != nil && i == len(s.messages[roomID])-1 {
		if room, ok := s.room(roomID); ok {
			room.LastMessage = *patch.Content
		}
	}
	s.notify()
	return nil
}

// SetTyping sets the ephemeral typing flag of the user in the room.
func (s *Store) SetTyping(roomID, userID string, isTyping bool) {
	s.typing.LoadAndStore(roomID, func(users map[string]bool, _ bool) (map[string]bool, bool) {
		next := maps.Clone(users)
		if next == nil {
			next = make(map[string]bool)
		}
		if isTyping {
			next[userID] = true
		} else {
			delete(next, userID)
		}
		return next, len(next) > 0
	})
	s.notify()
}

// Typing returns the users typing in the room in lexical order.
func (s *Store) Typing(roomID string) []string {
	users, _ := s.typing.Load(roomID)
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
