package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-pbx/config"
	"github.com/tcriess/lightspeed-pbx/globals"
	"github.com/tcriess/lightspeed-pbx/types"
	"github.com/tidwall/buntdb"
)

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &BuntDBPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	var db *buntdb.DB
	if cfg.PersistenceConfig.DSN != "" {
		fileName := cfg.PersistenceConfig.DSN
		var err error
		db, err = buntdb.Open(fileName)
		if err != nil {
			return nil, err
		}
		err = db.CreateIndex("speakerts", "speaker:*", buntdb.IndexJSON("started_at"))
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (p *BuntDBPersist) StoreRoom(room types.Room) error {
	r, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("room:"+room.Id, string(r), nil)
		return err
	})
}

func (p *BuntDBPersist) GetRoom(room *types.Room) error {
	if room.Id == "" {
		return fmt.Errorf("no room id")
	}
	err := p.db.View(func(tx *buntdb.Tx) error {
		r, err := tx.Get("room:" + room.Id)
		if err != nil {
			return err
		}
		err = json.Unmarshal([]byte(r), room)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (p *BuntDBPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			room := &types.Room{}
			if err := json.Unmarshal([]byte(val), room); err == nil {
				rooms = append(rooms, room)
			}
			return true
		})
	})
	return rooms, err
}

func (p *BuntDBPersist) DeleteRoom(room *types.Room) error {
	if room.Id == "" {
		return fmt.Errorf("no room id")
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("room:" + room.Id)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

func (p *BuntDBPersist) StoreMailbox(mailbox types.Mailbox) error {
	m, err := json.Marshal(mailbox)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("mailbox:"+mailbox.Id, string(m), nil)
		return err
	})
}

func (p *BuntDBPersist) GetMailboxes() ([]*types.Mailbox, error) {
	mailboxes := make([]*types.Mailbox, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("mailbox:*", func(key, val string) bool {
			mailbox := &types.Mailbox{}
			if err := json.Unmarshal([]byte(val), mailbox); err == nil {
				mailboxes = append(mailboxes, mailbox)
			}
			return true
		})
	})
	return mailboxes, err
}

func (p *BuntDBPersist) StoreSpeakerHistory(entries []*types.SpeakerHistoryEntry) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, entry := range entries {
			msg, err := json.Marshal(entry)
			if err != nil {
				globals.AppLogger.Error("could not marshal speaker history entry", "error", err)
				return err
			}
			_, _, err = tx.Set("speaker:"+entry.Id, string(msg), nil)
			if err != nil {
				globals.AppLogger.Error("could not store speaker history entry", "error", err)
				return err
			}
		}
		return nil
	})
}

// GetSpeakerHistory returns a slice of speaker history entries from db, most
// recent first.
//
// Use fromTs/toTs to restrict the time range, and fromIdx/maxCount for pagination.
func (p *BuntDBPersist) GetSpeakerHistory(fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.SpeakerHistoryEntry, error) {
	entries := make([]*types.SpeakerHistoryEntry, 0)

	fromCond := fmt.Sprintf(`{"started_at":"%s"}`, fromTs.In(time.UTC).Format(time.RFC3339))
	toCond := fmt.Sprintf(`{"started_at":"%s"}`, toTs.In(time.UTC).Format(time.RFC3339))

	err := p.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		count := 0
		return tx.DescendRange("speakerts", toCond, fromCond, func(key, val string) bool {
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			entry := &types.SpeakerHistoryEntry{}
			if err := json.Unmarshal([]byte(val), entry); err == nil {
				entries = append(entries, entry)
			}
			count++
			return maxCount <= 0 || count < maxCount
		})
	})
	return entries, err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
