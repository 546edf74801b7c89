package models

// ToggleReaction applies a reaction from userID to the message.
//
// A user holds at most one reaction per message. Reacting with the emoji the user
// already holds removes it, reacting with a different emoji replaces it. Counts never
// go below zero and emojis whose count drops to zero are removed from ReactionsCount.
// It returns true if the user holds a reaction after the call.
func ToggleReaction(m *Message, userID, emoji string) bool {
	if m.ReactionsByUser == nil {
		m.ReactionsByUser = make(map[string]string)
	}
	if m.ReactionsCount == nil {
		m.ReactionsCount = make(map[string]int)
	}

	prev, had := m.ReactionsByUser[userID]
	if had {
		decrementReaction(m, prev)
		delete(m.ReactionsByUser, userID)
		if prev == emoji {
			return false
		}
	}

	m.ReactionsByUser[userID] = emoji
	m.ReactionsCount[emoji]++
	return true
}

func decrementReaction(m *Message, emoji string) {
	n := m.ReactionsCount[emoji] - 1
	if n <= 0 {
		delete(m.ReactionsCount, emoji)
		return
	}
	m.ReactionsCount[emoji] = n
}

// ReactionCount returns how many users currently react with emoji.
func (m *Message) ReactionCount(emoji string) int {
	return m.ReactionsCount[emoji]
}
