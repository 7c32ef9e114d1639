package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/mail/repository"
	"github.com/coder92330/nylas-mail/internal/session"
)

func TestPipelineProcessesInOrder(t *testing.T) {
	store, _ := newTestStore(t)
	seedMailbox(t, store, "inbox", domain.RoleInbox)
	mailboxes := repository.NewMailboxRepository(store.DB())
	p := NewPipeline(NewProcessor(store, quietLogger()), mailboxes, quietLogger(), 10, 0, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	done, err := p.Enqueue(&Item{
		AccountID:   "acc",
		MailboxID:   "inbox",
		MailboxName: "INBOX",
		Fetched:     session.FetchedMessage{UID: 1, Raw: rawMessage(simpleHeaders(), "hello")},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("item never completed")
	}

	var count int64
	store.DB().Model(&domain.Message{}).Count(&count)
	if count != 1 {
		t.Fatalf("messages = %d, want 1", count)
	}
}

func TestPipelineQueueFull(t *testing.T) {
	store, _ := newTestStore(t)
	mailboxes := repository.NewMailboxRepository(store.DB())
	p := NewPipeline(NewProcessor(store, quietLogger()), mailboxes, quietLogger(), 1, 0, "")

	// No consumer running; first fills the queue, second must be rejected.
	if _, err := p.Enqueue(&Item{Fetched: session.FetchedMessage{UID: 1, Raw: []byte("x")}}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	done, err := p.Enqueue(&Item{Fetched: session.FetchedMessage{UID: 2, Raw: []byte("x")}})
	if err != ErrQueueFull {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}

	select {
	case <-done:
	default:
		t.Fatal("rejected item's done channel must already be closed")
	}
}

// One broken message must not block the queue, and its uid must be recorded
// on the mailbox for later inspection.
func TestPipelineFailureIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	seedMailbox(t, store, "inbox", domain.RoleInbox)
	mailboxes := repository.NewMailboxRepository(store.DB())
	dumpDir := filepath.Join(t.TempDir(), "parse-errors")
	p := NewPipeline(NewProcessor(store, quietLogger()), mailboxes, quietLogger(), 10, 0, dumpDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	bad, err := p.Enqueue(&Item{
		AccountID:   "acc",
		MailboxID:   "inbox",
		MailboxName: "INBOX",
		Fetched:     session.FetchedMessage{UID: 13},
	})
	if err != nil {
		t.Fatalf("enqueue bad: %v", err)
	}
	good, err := p.Enqueue(&Item{
		AccountID:   "acc",
		MailboxID:   "inbox",
		MailboxName: "INBOX",
		Fetched:     session.FetchedMessage{UID: 14, Raw: rawMessage(simpleHeaders(), "hello")},
	})
	if err != nil {
		t.Fatalf("enqueue good: %v", err)
	}

	for _, done := range []<-chan struct{}{bad, good} {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("item never completed")
		}
	}

	mb, err := mailboxes.FindByID("inbox")
	if err != nil {
		t.Fatalf("load mailbox: %v", err)
	}
	if len(mb.SyncState.FailedUIDs) != 1 || mb.SyncState.FailedUIDs[0] != 13 {
		t.Fatalf("failed uids = %v, want [13]", mb.SyncState.FailedUIDs)
	}

	var count int64
	store.DB().Model(&domain.Message{}).Count(&count)
	if count != 1 {
		t.Fatalf("messages = %d, the good message should still land", count)
	}

	dump := filepath.Join(dumpDir, "acc", "INBOX", "13.json")
	if _, err := os.Stat(dump); err != nil {
		t.Fatalf("expected parse error dump at %s: %v", dump, err)
	}
}
