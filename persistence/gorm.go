package persistence

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/tcriess/lightspeed-pbx/config"
	"github.com/tcriess/lightspeed-pbx/types"
	"gorm.io/datatypes"
	_ "gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ driver.Valuer = &datatypes.JSON{}

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	db.Migrator().AutoMigrate(&types.Room{}, &types.Mailbox{}, &types.SpeakerHistoryEntry{})
	return db, nil
}

func (p *GormPersist) StoreRoom(room types.Room) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&room).Error
}

func (p *GormPersist) GetRoom(room *types.Room) error {
	return p.db.First(room).Error
}

func (p *GormPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) DeleteRoom(room *types.Room) error {
	return p.db.Delete(room).Error
}

func (p *GormPersist) StoreMailbox(mailbox types.Mailbox) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&mailbox).Error
}

func (p *GormPersist) GetMailboxes() ([]*types.Mailbox, error) {
	mailboxes := make([]*types.Mailbox, 0)
	err := p.db.Find(&mailboxes).Error
	return mailboxes, err
}

func (p *GormPersist) StoreSpeakerHistory(entries []*types.SpeakerHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entries).Error
}

func (p *GormPersist) GetSpeakerHistory(fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.SpeakerHistoryEntry, error) {
	entries := make([]*types.SpeakerHistoryEntry, 0)
	tx := p.db.Where("started_at BETWEEN ? AND ?", fromTs, toTs).Order("started_at DESC")
	if maxCount > 0 { // maxCount <= 0 means unlimited, like the buntdb backend
		tx = tx.Limit(maxCount)
	}
	if fromIdx > 0 {
		tx = tx.Offset(fromIdx)
	}
	err := tx.Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *GormPersist) Close() error {
	return nil
}
