package delta

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/repository"
	"github.com/coder92330/nylas-mail/pkg/bus"
)

// Delta is one ordered change notification. Attributes carry the current row
// for create/modify; delete deltas are tombstones with the id only.
type Delta struct {
	ID         uint64      `json:"id"`
	Cursor     string      `json:"cursor"`
	Event      string      `json:"event"`
	Object     string      `json:"object"`
	ObjectID   string      `json:"object_id"`
	Attributes interface{} `json:"attributes,omitempty"`
}

// Feed turns the change log into a resumable, ordered stream. Consumers hold
// a cursor (the last delta id they saw) and replay forward from it; live
// commits are appended as they happen.
type Feed struct {
	db           *gorm.DB
	transactions repository.TransactionRepository
	bus          *bus.Bus
	logger       *logrus.Logger
}

func NewFeed(db *gorm.DB, transactions repository.TransactionRepository, b *bus.Bus, logger *logrus.Logger) *Feed {
	return &Feed{db: db, transactions: transactions, bus: b, logger: logger}
}

// LatestCursor returns the cursor a consumer should start from to receive
// only future changes.
func (f *Feed) LatestCursor(accountID string) (string, error) {
	id, err := f.transactions.LatestID(accountID)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(id, 10), nil
}

// ParseCursor reads a cursor string; empty means "from the beginning".
func ParseCursor(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// Stream sends inflated delta batches to out until ctx is done. The bus
// subscription is taken before the replay so no commit can fall into the gap
// between them; because every wakeup re-reads the log past the cursor,
// duplicate or dropped bus events cannot duplicate or lose deltas.
func (f *Feed) Stream(ctx context.Context, accountID string, cursor uint64, out chan<- []Delta) error {
	events, cancel := f.bus.Subscribe(accountID)
	defer cancel()

	last := cursor
	emit := func() error {
		entries, err := f.transactions.FindAfterID(accountID, last)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		deltas, err := f.inflate(entries)
		if err != nil {
			return err
		}
		last = entries[len(entries)-1].ID
		select {
		case out <- deltas:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := emit(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if evt.Kind != bus.EventTransactionCommitted {
				continue
			}
			if err := emit(); err != nil {
				return err
			}
		}
	}
}
