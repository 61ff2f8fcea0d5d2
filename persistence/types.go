package persistence

import (
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-pbx/config"
	"github.com/tcriess/lightspeed-pbx/types"
)

// Persister is the last-known-good cache. Rooms and mailboxes are written
// after every successful refresh so a restart can seed the mirror before the
// first snapshot arrives; speaker history entries are appended as they close.
type Persister interface {
	StoreRoom(types.Room) error
	GetRoom(*types.Room) error
	GetRooms() ([]*types.Room, error)
	DeleteRoom(*types.Room) error
	StoreMailbox(types.Mailbox) error
	GetMailboxes() ([]*types.Mailbox, error)
	StoreSpeakerHistory([]*types.SpeakerHistoryEntry) error
	GetSpeakerHistory(time.Time, time.Time, int, int) ([]*types.SpeakerHistoryEntry, error)
	Close() error
}

// NewPersister picks the persister implementation from the configuration.
// An empty type disables persistence (nil, nil).
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "":
		return nil, nil

	case "buntdb":
		return NewBuntPersister(cfg)

	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %s", cfg.PersistenceConfig.Type)
}
