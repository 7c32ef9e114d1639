package assembler

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/mail/repository"
)

// ErrRecomputeNeedsStore is returned when a recompute is requested without
// the repositories needed to load the full message set. Recompute folds every
// message with labels, mailbox and files eagerly available; calling it
// without that is a caller error, not a silently wrong answer.
var ErrRecomputeNeedsStore = errors.New("assembler: recompute requires message and mailbox repositories")

// Assembler merges messages into thread rollups. Construct it with
// transaction-bound repositories so every mutation joins the caller's atomic
// unit. All rollup fields stay a pure function of the member messages and can
// be rebuilt from scratch at any time.
type Assembler struct {
	threads   repository.ThreadRepository
	messages  repository.MessageRepository
	mailboxes repository.MailboxRepository
	logger    *logrus.Logger

	mailboxCache map[string]*domain.Mailbox
}

func New(threads repository.ThreadRepository, messages repository.MessageRepository, mailboxes repository.MailboxRepository, logger *logrus.Logger) *Assembler {
	return &Assembler{
		threads:      threads,
		messages:     messages,
		mailboxes:    mailboxes,
		logger:       logger,
		mailboxCache: make(map[string]*domain.Mailbox),
	}
}

// UpdateLabelsAndFolders recomputes the thread's mailbox/label membership as
// the union over all member messages. Always a full recompute, never
// incremental, so membership cannot drift.
func (a *Assembler) UpdateLabelsAndFolders(thread *domain.Thread) error {
	msgs, err := a.messages.FindByThread(thread.ID)
	if err != nil {
		return err
	}

	mailboxSet := map[string]domain.Mailbox{}
	labelSet := map[string]domain.Label{}
	for i := range msgs {
		if msgs[i].MailboxID != "" {
			mb, err := a.mailbox(msgs[i].MailboxID)
			if err != nil {
				return err
			}
			if mb != nil {
				mailboxSet[mb.ID] = *mb
			}
		}
		for _, l := range msgs[i].Labels {
			labelSet[l.ID] = l
		}
	}

	if err := a.threads.SetMailboxes(thread, mapValuesMailbox(mailboxSet)); err != nil {
		return err
	}
	if err := a.threads.SetLabels(thread, mapValuesLabel(labelSet)); err != nil {
		return err
	}
	return a.threads.Save(thread)
}

// UpdateFromMessages folds messages into the thread's rollups. In incremental
// mode the given messages extend the existing rollups. In recompute mode all
// rollups are discarded and rebuilt from every message currently in the
// thread; a thread left with zero messages is deleted rather than kept empty.
// Returns true when the thread was deleted.
func (a *Assembler) UpdateFromMessages(thread *domain.Thread, msgs []domain.Message, recompute bool) (bool, error) {
	if recompute {
		if a.messages == nil || a.mailboxes == nil {
			return false, ErrRecomputeNeedsStore
		}
		loaded, err := a.messages.FindByThread(thread.ID)
		if err != nil {
			return false, err
		}
		if len(loaded) == 0 {
			a.logger.WithField("thread_id", thread.ID).Info("Thread has no messages after recompute, deleting")
			return true, a.threads.Delete(thread)
		}
		msgs = loaded

		thread.UnreadCount = 0
		thread.StarredCount = 0
		thread.Participants = nil
		thread.HasAttachments = false
		thread.Snippet = ""
		thread.FirstMessageDate = nil
		thread.LastMessageDate = nil
		thread.LastMessageSentDate = nil
		thread.LastMessageReceivedDate = nil
		thread.Mailboxes = nil
		thread.Labels = nil
	}

	mailboxSet := map[string]domain.Mailbox{}
	labelSet := map[string]domain.Label{}
	for _, mb := range thread.Mailboxes {
		mailboxSet[mb.ID] = mb
	}
	for _, l := range thread.Labels {
		labelSet[l.ID] = l
	}

	seen := map[string]bool{}
	for _, p := range thread.Participants {
		seen[p.Email] = true
	}

	for i := range msgs {
		msg := &msgs[i]

		role := ""
		if msg.MailboxID != "" {
			mb, err := a.mailbox(msg.MailboxID)
			if err != nil {
				return false, err
			}
			if mb != nil {
				mailboxSet[mb.ID] = *mb
				role = mb.Role
			}
		}
		for _, l := range msg.Labels {
			labelSet[l.ID] = l
		}

		a.foldRollups(thread, msg, role)

		for _, p := range msg.Participants() {
			if p.Email == "" || seen[p.Email] {
				continue
			}
			seen[p.Email] = true
			thread.Participants = append(thread.Participants, p)
		}

		// Incremental callers set has-attachments via file extraction; only
		// inspect files here when they were loaded (recompute path).
		if !thread.HasAttachments {
			for _, f := range msg.Files {
				if !f.IsInline() {
					thread.HasAttachments = true
					break
				}
			}
		}
	}

	// Mailbox/label association needs a persisted row first
	if thread.ID == "" {
		thread.ID = uuid.New().String()
		if err := a.threads.Create(thread); err != nil {
			return false, err
		}
	}

	if err := a.threads.SetMailboxes(thread, mapValuesMailbox(mailboxSet)); err != nil {
		return false, err
	}
	if err := a.threads.SetLabels(thread, mapValuesLabel(labelSet)); err != nil {
		return false, err
	}
	return false, a.threads.Save(thread)
}

// foldRollups applies one message's flags and dates to the thread counters.
func (a *Assembler) foldRollups(thread *domain.Thread, msg *domain.Message, mailboxRole string) {
	if msg.Unread {
		thread.UnreadCount++
	}
	if msg.Starred {
		thread.StarredCount++
	}

	date := msg.Date
	if thread.LastMessageDate == nil || date.After(*thread.LastMessageDate) {
		thread.LastMessageDate = timePtr(date)
		thread.Snippet = msg.Snippet
	}
	if thread.FirstMessageDate == nil || date.Before(*thread.FirstMessageDate) {
		thread.FirstMessageDate = timePtr(date)
	}

	if msg.IsSent(mailboxRole) {
		if thread.LastMessageSentDate == nil || date.After(*thread.LastMessageSentDate) {
			thread.LastMessageSentDate = timePtr(date)
		}
	}
	// The received date advances for every message, sent ones included:
	// it tracks "last activity", not delivery direction.
	if thread.LastMessageReceivedDate == nil || date.After(*thread.LastMessageReceivedDate) {
		thread.LastMessageReceivedDate = timePtr(date)
	}
}

func (a *Assembler) mailbox(id string) (*domain.Mailbox, error) {
	if mb, ok := a.mailboxCache[id]; ok {
		return mb, nil
	}
	mb, err := a.mailboxes.FindByID(id)
	if err != nil || mb == nil {
		return mb, err
	}
	a.mailboxCache[id] = mb
	return mb, nil
}

func mapValuesMailbox(m map[string]domain.Mailbox) []domain.Mailbox {
	out := make([]domain.Mailbox, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func mapValuesLabel(m map[string]domain.Label) []domain.Label {
	out := make([]domain.Label, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
