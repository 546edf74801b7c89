package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"trim and lower", []string{"  Go ", "CHAT"}, []string{"go", "chat"}},
		{"dedupe keeps first", []string{"b", "a", "B", " a"}, []string{"b", "a"}},
		{"drop empty", []string{"", "   ", "x"}, []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTags(tt.in))
		})
	}
}

func TestRoomIsDMBetween(t *testing.T) {
	room := Room{Type: DMRoom, Members: []string{"a", "b"}}
	assert.True(t, room.IsDMBetween("a", "b"))
	assert.True(t, room.IsDMBetween("b", "a"))
	assert.False(t, room.IsDMBetween("a", "c"))

	room.Type = GroupRoom
	assert.False(t, room.IsDMBetween("a", "b"))
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	room := Room{}
	assert.False(t, room.Expired(now))
	room.ExpiresAt = &past
	assert.True(t, room.Expired(now))

	m := Message{CreatedAt: now.Add(-2 * time.Second)}
	assert.False(t, m.Expired(nil, now))
	assert.True(t, m.Expired(Ptr(int64(1000)), now))
	assert.False(t, m.Expired(Ptr(int64(5000)), now))
	assert.False(t, m.Expired(Ptr(int64(0)), now))
}

func TestMarkReadBy(t *testing.T) {
	m := Message{ReadBy: []string{"a"}}
	assert.False(t, m.MarkReadBy("a"))
	assert.True(t, m.MarkReadBy("b"))
	assert.False(t, m.MarkReadBy("b"))
	assert.Equal(t, []string{"a", "b"}, m.ReadBy)
}
