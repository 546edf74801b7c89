package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/media"
	"github.com/putto11262002/roomsync/remote"
	"github.com/putto11262002/roomsync/syncer"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	u1 = identity.Static{UserID: "u1"}
	u2 = identity.Static{UserID: "u2"}
)

type StoreFixture struct {
	store    *Store
	docs     *remote.MemoryStore
	outbox   *syncer.Outbox
	media    afero.Fs
	ctx      context.Context
	t        *testing.T
	tearDown func()
}

// NewStoreFixture returns a store backed by a fresh in-memory document store.
func NewStoreFixture(t *testing.T, id identity.Provider) *StoreFixture {
	return NewStoreFixtureWithDocs(t, remote.NewMemoryStore(), id)
}

// NewStoreFixtureWithDocs returns a store sharing docs, as a second device would.
func NewStoreFixtureWithDocs(t *testing.T, docs *remote.MemoryStore, id identity.Provider) *StoreFixture {
	ctx, cancel := context.WithCancel(context.Background())

	fs := afero.NewMemMapFs()
	storage, err := media.NewFSStorage(fs, "/media", "http://localhost:8080/media")
	if err != nil {
		t.Fatal(err)
	}
	adapter := syncer.NewAdapter(docs, id, media.NewPromoter(storage, fs), discard)

	outbox := syncer.NewOutbox(syncer.OutboxConfig{
		Size:       64,
		MaxRetries: 1,
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
		Timeout:    time.Second,
	}, discard)
	outbox.Start()

	f := &StoreFixture{
		store:  New(adapter, outbox, id, DefaultConfig, discard),
		docs:   docs,
		outbox: outbox,
		media:  fs,
		ctx:    ctx,
		t:      t,
		tearDown: func() {
			cancel()
			outbox.Stop(context.Background())
		},
	}
	t.Cleanup(f.tearDown)
	return f
}

// flush waits until every queued remote intent has been handled.
func (f *StoreFixture) flush() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
	defer cancel()
	require.NoError(f.t, f.outbox.Flush(ctx))
}

func (f *StoreFixture) doc(path string) remote.Document {
	f.t.Helper()
	doc, err := f.docs.Get(f.ctx, path)
	require.NoError(f.t, err)
	return doc
}

func (f *StoreFixture) createRoom(title string, members ...string) string {
	f.t.Helper()
	room, err := f.store.CreateRoom(CreateRoomInput{Title: title, Members: members})
	require.NoError(f.t, err)
	return room.ID
}

func (f *StoreFixture) send(roomID, senderID, content string) string {
	f.t.Helper()
	msg, err := f.store.SendMessage(SendMessageInput{RoomID: roomID, SenderID: senderID, Content: content})
	require.NoError(f.t, err)
	return msg.ID
}
