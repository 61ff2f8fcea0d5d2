package types

import (
	"strconv"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// SpeakerHistoryEntry is one speaking period of a participant. EndedAt is nil
// while the participant is the committed active speaker; PeakLevel may only
// ever be raised while the entry is open.
type SpeakerHistoryEntry struct {
	Id          string     `json:"id" gorm:"primaryKey"`
	Room        string     `json:"room"`
	Participant string     `json:"participant"`
	DisplayName string     `json:"display_name"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
	PeakLevel   float64    `json:"peak_level" hash:"ignore"`
}

// CreateId sets the entry id from a hash over its identity fields.
func (e *SpeakerHistoryEntry) CreateId() error {
	hash, err := hashstructure.Hash(struct {
		Room        string
		Participant string
		StartedAt   int64
	}{e.Room, e.Participant, e.StartedAt.UnixNano()}, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	e.Id = strconv.FormatUint(hash, 16)
	return nil
}
