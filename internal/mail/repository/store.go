package repository

import (
	"time"

	"gorm.io/gorm"

	accountdomain "github.com/coder92330/nylas-mail/internal/account/domain"
	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/pkg/bus"
)

// Store owns the shared gorm handle and turns every logical mutation into one
// atomic unit: entity writes plus their change-log rows commit together, and
// committed log entries are republished on the bus afterwards. This replaces
// implicit ORM save hooks with an explicit transaction boundary.
type Store struct {
	db  *gorm.DB
	bus *bus.Bus
}

func NewStore(db *gorm.DB, b *bus.Bus) *Store {
	return &Store{db: db, bus: b}
}

// DB exposes the underlying handle for read paths.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates the schema for every tracked entity.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&accountdomain.Account{},
		&domain.Mailbox{},
		&domain.Label{},
		&domain.Thread{},
		&domain.Message{},
		&domain.Reference{},
		&domain.File{},
		&domain.Contact{},
		&domain.Transaction{},
		&domain.SyncbackRequest{},
	)
}

// ChangeLog accumulates change-log rows inside one store transaction.
type ChangeLog struct {
	tx      *gorm.DB
	entries []domain.Transaction
}

// Record appends one change-log entry within the surrounding transaction.
func (l *ChangeLog) Record(accountID, modelName, objectID, event string) error {
	entry := domain.Transaction{
		AccountID: accountID,
		ModelName: modelName,
		ObjectID:  objectID,
		Event:     event,
		CreatedAt: time.Now(),
	}
	if err := l.tx.Create(&entry).Error; err != nil {
		return err
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Transaction runs fn atomically. Change-log entries recorded through the
// ChangeLog are published to the bus only after the commit succeeds, so
// subscribers never observe uncommitted state.
func (s *Store) Transaction(fn func(tx *gorm.DB, log *ChangeLog) error) error {
	var committed []domain.Transaction

	err := s.db.Transaction(func(tx *gorm.DB) error {
		log := &ChangeLog{tx: tx}
		if err := fn(tx, log); err != nil {
			return err
		}
		committed = log.entries
		return nil
	})
	if err != nil {
		return err
	}

	if s.bus != nil {
		for i := range committed {
			entry := committed[i]
			s.bus.Publish(bus.Event{
				AccountID: entry.AccountID,
				Kind:      bus.EventTransactionCommitted,
				Payload:   &entry,
			})
		}
	}
	return nil
}
