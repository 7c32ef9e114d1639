package bus

import (
	"sync"
)

// EventKind identifies what happened to an account-scoped entity.
type EventKind string

const (
	// EventAccountUpdated signals that the account row itself changed
	// (settings edited, credentials rotated) and workers should reload.
	EventAccountUpdated EventKind = "account-updated"

	// EventTransactionCommitted carries a freshly appended change-log entry.
	EventTransactionCommitted EventKind = "transaction-committed"
)

// Event is a single account-scoped notification.
type Event struct {
	AccountID string
	Kind      EventKind
	Payload   interface{}
}

// Bus is a process-wide publish/subscribe hub keyed by account id. Publishing
// never blocks: subscribers that fall behind lose events and are expected to
// recover from durable state (the change log, the account row).
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event
}

func New() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a listener for one account's events. The returned cancel
// function unregisters the listener and closes its channel.
func (b *Bus) Subscribe(accountID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, 256)
	if b.subs[accountID] == nil {
		b.subs[accountID] = make(map[int]chan Event)
	}
	b.subs[accountID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if listeners, ok := b.subs[accountID]; ok {
			if ch, ok := listeners[id]; ok {
				delete(listeners, id)
				close(ch)
			}
			if len(listeners) == 0 {
				delete(b.subs, accountID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its account.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[evt.AccountID] {
		select {
		case ch <- evt:
		default:
			// Subscriber is not draining; drop rather than block the publisher
		}
	}
}
