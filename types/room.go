package types

import (
	"time"

	"gorm.io/gorm"
)

// Room is one conference bridge as reported by the manager. ParticipantCount
// is derived from the participant store, it is never taken from an event
// field once the participants of the room have been synchronized.
type Room struct {
	Id               string         `json:"id" gorm:"primaryKey"`
	ParticipantCount int            `json:"participant_count"`
	Locked           bool           `json:"locked"`
	Muted            bool           `json:"muted"`
	Recording        bool           `json:"recording"`
	MarkedCount      int            `json:"marked_count"`
	Raw              JSONStringMap  `json:"-"` // unmodelled protocol fields, kept for debugging
	UpdatedAt        time.Time      `json:"-"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}

func (r Room) Key() string { return r.Id }
