package session

import (
	"context"
	"time"

	accountdomain "github.com/coder92330/nylas-mail/internal/account/domain"
)

// EventKind is a server-pushed change notification category.
type EventKind string

const (
	// EventMail signals new mail arrived in the open mailbox.
	EventMail EventKind = "mail"
	// EventUpdate signals flags or mailbox state changed.
	EventUpdate EventKind = "update"
)

// Event is delivered on the idle channel while a session holds a mailbox open.
type Event struct {
	Kind EventKind
}

// MailboxInfo describes one remote container from a listing.
type MailboxInfo struct {
	Name       string
	Attributes []string
}

// MailboxStatus is returned when a mailbox is opened.
type MailboxStatus struct {
	Name        string
	Messages    uint32
	UIDValidity uint32
	UIDNext     uint32
}

// FetchedMessage is one raw message pulled off the wire, untouched by the
// ingestion pipeline.
type FetchedMessage struct {
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Raw          []byte
}

// Operation is a syncback task replayed against the live session before a
// fetch pass (flag change, move, label edit).
type Operation interface {
	Describe() string
	Run(ctx context.Context, s Session) error
}

// Session is one authenticated protocol connection for a single account.
// Lifecycle (open, idle, close, error) is orchestrated by the sync worker;
// byte-level protocol details live below this interface.
type Session interface {
	ListMailboxes(ctx context.Context) ([]MailboxInfo, error)
	Open(ctx context.Context, name string) (*MailboxStatus, error)

	// Fetch streams messages with UID >= sinceUID from the currently open
	// mailbox into out. It closes out when the fetch completes.
	Fetch(ctx context.Context, sinceUID uint32, out chan<- FetchedMessage) error

	// Flag and move primitives operate on the currently open mailbox.
	AddFlags(ctx context.Context, uid uint32, flags []string) error
	RemoveFlags(ctx context.Context, uid uint32, flags []string) error
	Move(ctx context.Context, uid uint32, dest string) error

	RunOperation(ctx context.Context, op Operation) error

	// Idle blocks holding the open mailbox, emitting push events until ctx
	// is done or the connection drops.
	Idle(ctx context.Context, events chan<- Event) error

	Close() error
}

// Connector opens sessions from decrypted account material.
type Connector interface {
	Connect(ctx context.Context, settings accountdomain.ConnectionSettings, creds accountdomain.Credentials) (Session, error)
}
