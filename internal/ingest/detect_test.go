package ingest

import (
	"testing"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/mail/repository"
)

func TestNormalizeSubject(t *testing.T) {
	cases := map[string]string{
		"Re: Budget":             "Budget",
		"RE: re: Budget":         "Budget",
		"Fwd: Budget":            "Budget",
		"FW: Budget":             "Budget",
		"Re[2]: Budget":          "Budget",
		"AW: Budget":             "Budget",
		"Budget":                 "Budget",
		"Rewrite of the budget":  "Rewrite of the budget",
		"  Re: spaced subject  ": "spaced subject",
	}
	for in, want := range cases {
		if got := normalizeSubject(in); got != want {
			t.Fatalf("normalizeSubject(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectThreadByReference(t *testing.T) {
	store, _ := newTestStore(t)
	threads := repository.NewThreadRepository(store.DB())
	references := repository.NewReferenceRepository(store.DB())

	thread := &domain.Thread{ID: "t1", AccountID: "acc", Subject: "Budget"}
	if err := threads.Create(thread); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if err := references.Create(&domain.Reference{
		AccountID:        "acc",
		RFC2822MessageID: "orig@example.com",
		ThreadID:         "t1",
	}); err != nil {
		t.Fatalf("create reference: %v", err)
	}

	parsed := &ParsedMessage{
		HeaderMessageID: "reply@example.com",
		Subject:         "Something entirely different",
		References:      []string{"orig@example.com"},
	}
	got, err := detectThread("acc", parsed, threads, references)
	if err != nil {
		t.Fatalf("detectThread: %v", err)
	}
	if got.ID != "t1" {
		t.Fatalf("got thread %q, want t1", got.ID)
	}
}

// An earlier message can cite a message we only see later; the later arrival
// must find the thread through its own id.
func TestDetectThreadByOwnMessageID(t *testing.T) {
	store, _ := newTestStore(t)
	threads := repository.NewThreadRepository(store.DB())
	references := repository.NewReferenceRepository(store.DB())

	thread := &domain.Thread{ID: "t1", AccountID: "acc", Subject: "Budget"}
	if err := threads.Create(thread); err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if err := references.Create(&domain.Reference{
		AccountID:        "acc",
		RFC2822MessageID: "late@example.com",
		ThreadID:         "t1",
	}); err != nil {
		t.Fatalf("create reference: %v", err)
	}

	parsed := &ParsedMessage{HeaderMessageID: "late@example.com", Subject: "Unrelated"}
	got, err := detectThread("acc", parsed, threads, references)
	if err != nil {
		t.Fatalf("detectThread: %v", err)
	}
	if got.ID != "t1" {
		t.Fatalf("got thread %q, want t1", got.ID)
	}
}

func TestDetectThreadBySubject(t *testing.T) {
	store, _ := newTestStore(t)
	threads := repository.NewThreadRepository(store.DB())
	references := repository.NewReferenceRepository(store.DB())

	thread := &domain.Thread{ID: "t1", AccountID: "acc", Subject: "Budget"}
	if err := threads.Create(thread); err != nil {
		t.Fatalf("create thread: %v", err)
	}

	parsed := &ParsedMessage{HeaderMessageID: "new@example.com", Subject: "Re: Budget"}
	got, err := detectThread("acc", parsed, threads, references)
	if err != nil {
		t.Fatalf("detectThread: %v", err)
	}
	if got.ID != "t1" {
		t.Fatalf("got thread %q, want t1", got.ID)
	}
}

func TestDetectThreadStartsNew(t *testing.T) {
	store, _ := newTestStore(t)
	threads := repository.NewThreadRepository(store.DB())
	references := repository.NewReferenceRepository(store.DB())

	parsed := &ParsedMessage{HeaderMessageID: "fresh@example.com", Subject: "Re: Never seen"}
	got, err := detectThread("acc", parsed, threads, references)
	if err != nil {
		t.Fatalf("detectThread: %v", err)
	}
	if got.ID != "" {
		t.Fatal("expected an unsaved thread")
	}
	if got.Subject != "Never seen" {
		t.Fatalf("subject = %q, want normalized", got.Subject)
	}
	if got.AccountID != "acc" {
		t.Fatalf("account = %q", got.AccountID)
	}
}
