package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/putto11262002/roomsync/models"
	"github.com/putto11262002/roomsync/persist"
	"github.com/putto11262002/roomsync/remote"
	"github.com/putto11262002/roomsync/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	config, err := (&DefaultConfigLoader{}).Load()
	require.NoError(t, err)
	dir := t.TempDir()
	config.SQLite.File = filepath.Join(dir, "state.db")
	config.Media.Dir = filepath.Join(dir, "media")
	return config
}

func TestNew_RestoresState(t *testing.T) {
	config := testConfig(t)

	state := models.NewState()
	state.CurrentRoomID = "r1"
	state.Rooms = []models.Room{{ID: "r1", Title: "Team", Members: []string{"u1", "u2", "u3"}, Type: models.GroupRoom}}
	data, err := persist.Encode(state, persist.DefaultPolicy)
	require.NoError(t, err)

	db, err := persist.OpenSQLite(config.SQLite.File, nil)
	require.NoError(t, err)
	require.NoError(t, persist.NewSQLiteStorage(db).Save(context.Background(), data))
	require.NoError(t, db.Close())

	app, err := New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { app.close(context.Background()) })

	room, ok := app.Store().Room("r1")
	require.True(t, ok)
	assert.Equal(t, "Team", room.Title)
	assert.Equal(t, "r1", app.Store().CurrentRoom())
	assert.IsType(t, &remote.MemoryStore{}, app.docs)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/r1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_SavesOnShutdown(t *testing.T) {
	config := testConfig(t)

	app, err := New(context.Background(), config)
	require.NoError(t, err)
	app.run()

	room, err := app.Store().CreateRoom(store.CreateRoomInput{Title: "Team", Members: []string{"u1", "u2", "u3"}})
	require.NoError(t, err)
	assert.Equal(t, 0, app.shutdown(5 * time.Second))

	restored, err := New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { restored.close(context.Background()) })
	got, ok := restored.Store().Room(room.ID)
	require.True(t, ok)
	assert.Equal(t, "Team", got.Title)
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	config := testConfig(t)
	config.Redis.URL = "redis://" + mr.Addr()

	app, err := New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { app.close(context.Background()) })
	assert.IsType(t, &remote.RedisStore{}, app.docs)
}

func TestNew_InvalidConfig(t *testing.T) {
	config := testConfig(t)
	config.Port = 0
	_, err := New(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is a required field")
}
