package models

// State is a point in time copy of everything the local store holds.
// It is the document persisted to device-local storage.
type State struct {
	Version       int                        `json:"version"`
	Rooms         []Room                     `json:"rooms"`
	Messages      map[string][]Message       `json:"messages"`
	CurrentRoomID string                     `json:"currentRoomId"`
	RoomSettings  map[string]RoomSettings    `json:"roomSettings"`
	HiddenByRoom  map[string]map[string]bool `json:"hiddenByRoom"`
	Typing        map[string]map[string]bool `json:"typing"`
}

// NewState returns an empty state with every map allocated.
func NewState() State {
	return State{
		Rooms:        []Room{},
		Messages:     make(map[string][]Message),
		RoomSettings: make(map[string]RoomSettings),
		HiddenByRoom: make(map[string]map[string]bool),
		Typing:       make(map[string]map[string]bool),
	}
}

// Normalize allocates any nil collection so the state can be mutated safely.
func (s *State) Normalize() {
	if s.Rooms == nil {
		s.Rooms = []Room{}
	}
	if s.Messages == nil {
		s.Messages = make(map[string][]Message)
	}
	if s.RoomSettings == nil {
		s.RoomSettings = make(map[string]RoomSettings)
	}
	if s.HiddenByRoom == nil {
		s.HiddenByRoom = make(map[string]map[string]bool)
	}
	if s.Typing == nil {
		s.Typing = make(map[string]map[string]bool)
	}
}
