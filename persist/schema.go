// Package persist saves the local store to device-local storage and loads it back,
// migrating documents written by older versions.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/putto11262002/roomsync/models"
)

// CurrentVersion is the version of the documents written by Encode.
//
//	1: rooms, messages and currentRoomId
//	2: adds roomSettings and hiddenByRoom
//	3: bounded retention and typing
const CurrentVersion = 3

var (
	// ErrUnsupportedVersion is returned for a document written by a newer version.
	ErrUnsupportedVersion = errors.New("unsupported schema version")
	// ErrCorrupt is returned when a document cannot be decoded.
	ErrCorrupt = errors.New("corrupt snapshot")
)

// Migration maps a raw document of version N to version N+1.
type Migration func(doc map[string]any) (map[string]any, error)

// Migrations returns the ordered migration steps. The step at index i maps version i+1
// to version i+2.
func Migrations(policy Policy) []Migration {
	return []Migration{
		addSettingsAndHidden,
		retention(policy),
	}
}

func addSettingsAndHidden(doc map[string]any) (map[string]any, error) {
	for _, key := range []string{"roomSettings", "hiddenByRoom"} {
		if _, ok := doc[key].(map[string]any); !ok {
			doc[key] = map[string]any{}
		}
	}
	return doc, nil
}

func retention(policy Policy) Migration {
	return func(doc map[string]any) (map[string]any, error) {
		state, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		policy.Apply(&state)
		return toDoc(state)
	}
}

// Decode reads a document of any known version and returns the state it holds, with the
// retention policy applied.
func Decode(data []byte, policy Policy) (models.State, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc == nil {
		return models.State{}, fmt.Errorf("%w: not an object", ErrCorrupt)
	}

	version := 1
	if v, ok := doc["version"].(float64); ok {
		version = int(v)
	}
	if version > CurrentVersion {
		return models.State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if version < 1 {
		return models.State{}, fmt.Errorf("%w: version %d", ErrCorrupt, version)
	}

	steps := Migrations(policy)
	for v := version; v < CurrentVersion; v++ {
		next, err := steps[v-1](doc)
		if err != nil {
			return models.State{}, fmt.Errorf("migrate v%d: %w", v, err)
		}
		doc = next
		doc["version"] = v + 1
	}

	state, err := fromDoc(doc)
	if err != nil {
		return models.State{}, err
	}
	policy.Apply(&state)
	return state, nil
}

// Encode applies the retention policy to a copy of the state and serializes it at the
// current version.
func Encode(state models.State, policy Policy) ([]byte, error) {
	policy.Apply(&state)
	state.Version = CurrentVersion
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}
	return data, nil
}

func fromDoc(doc map[string]any) (models.State, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return models.State{}, fmt.Errorf("json.Marshal: %w", err)
	}
	var state models.State
	if err := json.Unmarshal(b, &state); err != nil {
		return models.State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	state.Normalize()
	return state, nil
}

func toDoc(state models.State) (map[string]any, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return doc, nil
}
