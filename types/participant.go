package types

import "time"

// Participant is one channel in a conference room. The channel identifier is
// the identity key, it is unique across all rooms.
type Participant struct {
	Channel      string    `json:"channel"`
	Room         string    `json:"room"`
	CallerNumber string    `json:"caller_number"`
	CallerName   string    `json:"caller_name"`
	IsAdmin      bool      `json:"is_admin"`
	IsMarked     bool      `json:"is_marked"`
	IsMuted      bool      `json:"is_muted"`
	IsTalking    bool      `json:"is_talking"`
	IsOnHold     bool      `json:"is_on_hold"`
	IsSelf       bool      `json:"is_self"`
	AudioLevel   *float64  `json:"audio_level,omitempty"` // nil until the manager reports a level
	JoinedAt     time.Time `json:"joined_at"`
}

func (p Participant) Key() string { return p.Channel }

// DisplayName returns the best human-readable name available.
func (p Participant) DisplayName() string {
	if p.CallerName != "" {
		return p.CallerName
	}
	if p.CallerNumber != "" {
		return p.CallerNumber
	}
	return p.Channel
}
