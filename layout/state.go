package layout

import "sync"

type Mode string

const (
	ModeGrid      Mode = "grid"
	ModeSpeaker   Mode = "speaker"
	ModeSidebar   Mode = "sidebar"
	ModeSpotlight Mode = "spotlight"
)

// State holds the layout mode and the pin override. It decides which
// participant, if any, is focused; the committed active speaker is passed in
// by the caller (the detector owns it).
type State struct {
	mu     sync.Mutex
	mode   Mode
	pinned string
}

func NewState() *State {
	return &State{mode: ModeGrid}
}

func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *State) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch mode {
	case ModeGrid, ModeSpeaker, ModeSidebar, ModeSpotlight:
		s.mode = mode
	}
}

// Pin focuses one participant regardless of who is speaking. An empty
// channel clears the pin.
func (s *State) Pin(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = channel
}

func (s *State) Unpin() { s.Pin("") }

func (s *State) Pinned() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned
}

// Focused resolves the focused participant. A pinned participant always wins
// over the active speaker; in grid mode focus is always empty; spotlight
// focuses only an explicitly pinned participant.
func (s *State) Focused(activeSpeaker string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.mode {
	case ModeGrid:
		return ""
	case ModeSpotlight:
		return s.pinned
	default:
		if s.pinned != "" {
			return s.pinned
		}
		return activeSpeaker
	}
}
