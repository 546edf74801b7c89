package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/putto11262002/roomsync/models"
)

// Source is the state being persisted. It is implemented by store.Store.
type Source interface {
	Snapshot() models.State
	Restore(state models.State)
	// Changes receives a value after the state changed.
	Changes() <-chan struct{}
}

// Manager loads the state on start and saves it after every change.
type Manager struct {
	storage Storage
	source  Source
	policy  Policy
	logger  *slog.Logger
}

func NewManager(storage Storage, source Source, policy Policy, logger *slog.Logger) *Manager {
	return &Manager{
		storage: storage,
		source:  source,
		policy:  policy,
		logger:  logger,
	}
}

// Load restores the saved state into the source. Nothing happens when nothing was saved.
func (m *Manager) Load(ctx context.Context) error {
	data, err := m.storage.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	state, err := Decode(data, m.policy)
	if err != nil {
		return err
	}
	m.source.Restore(state)
	m.logger.Info("state loaded",
		slog.Int("rooms", len(state.Rooms)),
		slog.String("current_room", state.CurrentRoomID))
	return nil
}

// Save writes the current state.
func (m *Manager) Save(ctx context.Context) error {
	data, err := Encode(m.source.Snapshot(), m.policy)
	if err != nil {
		return err
	}
	if err := m.storage.Save(ctx, data); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Run saves the state after every change notification until ctx is done, then saves it
// one last time. Bursts of changes are written once.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-m.source.Changes():
			if err := m.Save(ctx); err != nil {
				m.logger.Error("failed to save state", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			if err := m.Save(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			return nil
		}
	}
}
