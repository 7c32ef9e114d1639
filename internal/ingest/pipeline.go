package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coder92330/nylas-mail/internal/mail/repository"
	"github.com/coder92330/nylas-mail/internal/session"
)

// ErrQueueFull is returned when the ingestion queue is at capacity. The
// caller should stop fetching and let the next sync pass pick the message up
// again.
var ErrQueueFull = errors.New("ingest: queue is full")

// Item is one fetched message waiting to be processed.
type Item struct {
	AccountID   string
	MailboxID   string
	MailboxName string
	Fetched     session.FetchedMessage

	done chan struct{}
}

// Pipeline serializes message processing through a single consumer. Messages
// are processed one at a time in arrival order; a failure never stops the
// queue and never reaches the producer. Failed UIDs are recorded on the
// mailbox sync state and the raw input is dumped for later inspection.
type Pipeline struct {
	processor *Processor
	mailboxes repository.MailboxRepository
	logger    *logrus.Logger

	queue chan *Item
	delay time.Duration

	parseErrorDir string
}

// NewPipeline builds a pipeline with the given queue capacity. delay, when
// positive, is the pause between items so a large backlog cannot starve the
// database.
func NewPipeline(processor *Processor, mailboxes repository.MailboxRepository, logger *logrus.Logger, limit int, delay time.Duration, parseErrorDir string) *Pipeline {
	if limit <= 0 {
		limit = 500
	}
	return &Pipeline{
		processor:     processor,
		mailboxes:     mailboxes,
		logger:        logger,
		queue:         make(chan *Item, limit),
		delay:         delay,
		parseErrorDir: parseErrorDir,
	}
}

// Enqueue submits one message for processing. The returned channel closes
// when the item has been handled, whether it succeeded or not. When the queue
// is full the item is dropped and ErrQueueFull returned; the channel is
// already closed in that case.
func (p *Pipeline) Enqueue(item *Item) (<-chan struct{}, error) {
	item.done = make(chan struct{})
	select {
	case p.queue <- item:
		return item.done, nil
	default:
		close(item.done)
		return item.done, ErrQueueFull
	}
}

// Len reports the number of queued items.
func (p *Pipeline) Len() int {
	return len(p.queue)
}

// Run consumes the queue until the context is cancelled. It is meant to be
// started once, as a goroutine, next to the sync workers.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.queue:
			p.handle(item)
			if p.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.delay):
				}
			}
		}
	}
}

func (p *Pipeline) handle(item *Item) {
	defer close(item.done)

	err := p.processor.ProcessMessage(item.AccountID, item.MailboxID, item.Fetched)
	if err == nil {
		return
	}

	p.logger.WithFields(logrus.Fields{
		"account_id": item.AccountID,
		"mailbox":    item.MailboxName,
		"uid":        item.Fetched.UID,
	}).WithError(err).Error("Message processing failed")

	if recErr := p.mailboxes.RecordFailedUID(item.MailboxID, item.Fetched.UID); recErr != nil {
		p.logger.WithError(recErr).Warn("Could not record failed UID")
	}
	p.dumpFailure(item, err)
}

// dumpFailure writes the raw message plus failure context to disk so parse
// bugs can be reproduced offline. Dump failures are only logged.
func (p *Pipeline) dumpFailure(item *Item, cause error) {
	if p.parseErrorDir == "" {
		return
	}
	dir := filepath.Join(p.parseErrorDir, item.AccountID, sanitizeName(item.MailboxName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.WithError(err).Warn("Could not create parse error directory")
		return
	}

	dump := struct {
		AccountID string    `json:"account_id"`
		Mailbox   string    `json:"mailbox"`
		UID       uint32    `json:"uid"`
		Error     string    `json:"error"`
		FailedAt  time.Time `json:"failed_at"`
		Flags     []string  `json:"flags"`
		Raw       []byte    `json:"raw"`
	}{
		AccountID: item.AccountID,
		Mailbox:   item.MailboxName,
		UID:       item.Fetched.UID,
		Error:     cause.Error(),
		FailedAt:  time.Now().UTC(),
		Flags:     item.Fetched.Flags,
		Raw:       item.Fetched.Raw,
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		p.logger.WithError(err).Warn("Could not marshal parse error dump")
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.json", item.Fetched.UID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.logger.WithError(err).Warn("Could not write parse error dump")
	}
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
