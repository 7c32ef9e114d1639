package usecase

import (
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/ingest/assembler"
	"github.com/coder92330/nylas-mail/internal/mail/domain"
	"github.com/coder92330/nylas-mail/internal/mail/repository"
	syncpkg "github.com/coder92330/nylas-mail/internal/sync"
	"github.com/coder92330/nylas-mail/pkg/fuzzy"
)

var ErrNotFound = errors.New("not found")

// searchWindow caps how many recent threads a fuzzy search scans.
const searchWindow = 200

// SyncTrigger requests an immediate sync cycle for an account.
type SyncTrigger interface {
	SyncNow(accountID string) bool
}

// MailUsecase is the read/edit surface over the synced mail graph. Local
// edits apply optimistically: the row and its thread rollups change in one
// store transaction, a syncback request is queued in the same transaction,
// and a sync cycle is triggered to replay it remotely.
type MailUsecase interface {
	ListThreads(accountID, query string, limit, offset int) ([]domain.Thread, error)
	GetThread(accountID, threadID string) (*domain.Thread, []domain.Message, error)
	ListMailboxes(accountID string) ([]domain.Mailbox, error)
	ListContacts(accountID string) ([]domain.Contact, error)
	SetRead(accountID, messageID string, read bool) error
	SetStarred(accountID, messageID string, starred bool) error
	Move(accountID, messageID, mailboxID string) error
}

type mailUsecase struct {
	store     *repository.Store
	threads   repository.ThreadRepository
	messages  repository.MessageRepository
	mailboxes repository.MailboxRepository
	contacts  repository.ContactRepository
	trigger   SyncTrigger
	logger    *logrus.Logger
}

func NewMailUsecase(store *repository.Store, trigger SyncTrigger, logger *logrus.Logger) MailUsecase {
	db := store.DB()
	return &mailUsecase{
		store:     store,
		threads:   repository.NewThreadRepository(db),
		messages:  repository.NewMessageRepository(db),
		mailboxes: repository.NewMailboxRepository(db),
		contacts:  repository.NewContactRepository(db),
		trigger:   trigger,
		logger:    logger,
	}
}

func (u *mailUsecase) ListThreads(accountID, query string, limit, offset int) ([]domain.Thread, error) {
	if query == "" {
		return u.threads.FindByAccount(accountID, limit, offset)
	}

	candidates, err := u.threads.FindByAccount(accountID, searchWindow, 0)
	if err != nil {
		return nil, err
	}

	type scored struct {
		thread domain.Thread
		score  float64
	}
	var hits []scored
	for _, thread := range candidates {
		score := fuzzy.Score(query, thread.Subject, participantText(thread.Participants), thread.Snippet)
		if score > 0 {
			hits = append(hits, scored{thread: thread, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit <= 0 || limit > len(hits) {
		limit = len(hits)
	}
	out := make([]domain.Thread, 0, limit)
	for _, hit := range hits[:limit] {
		out = append(out, hit.thread)
	}
	return out, nil
}

func participantText(participants domain.ParticipantList) string {
	parts := make([]string, 0, len(participants)*2)
	for _, p := range participants {
		if p.Name != "" {
			parts = append(parts, p.Name)
		}
		parts = append(parts, p.Email)
	}
	return strings.Join(parts, " ")
}

func (u *mailUsecase) GetThread(accountID, threadID string) (*domain.Thread, []domain.Message, error) {
	thread, err := u.threads.FindByID(threadID)
	if err != nil {
		return nil, nil, err
	}
	if thread == nil || thread.AccountID != accountID {
		return nil, nil, ErrNotFound
	}
	msgs, err := u.messages.FindByThread(threadID)
	if err != nil {
		return nil, nil, err
	}
	return thread, msgs, nil
}

func (u *mailUsecase) ListMailboxes(accountID string) ([]domain.Mailbox, error) {
	return u.mailboxes.FindByAccount(accountID)
}

func (u *mailUsecase) ListContacts(accountID string) ([]domain.Contact, error) {
	return u.contacts.FindByAccount(accountID)
}

func (u *mailUsecase) SetRead(accountID, messageID string, read bool) error {
	syncbackType := syncpkg.SyncbackMarkUnread
	if read {
		syncbackType = syncpkg.SyncbackMarkRead
	}
	return u.applyLocalEdit(accountID, messageID, syncbackType, nil, func(msg *domain.Message) {
		msg.Unread = !read
	})
}

func (u *mailUsecase) SetStarred(accountID, messageID string, starred bool) error {
	syncbackType := syncpkg.SyncbackUnstar
	if starred {
		syncbackType = syncpkg.SyncbackStar
	}
	return u.applyLocalEdit(accountID, messageID, syncbackType, nil, func(msg *domain.Message) {
		msg.Starred = starred
	})
}

func (u *mailUsecase) Move(accountID, messageID, mailboxID string) error {
	target, err := u.mailboxes.FindByID(mailboxID)
	if err != nil {
		return err
	}
	if target == nil || target.AccountID != accountID {
		return ErrNotFound
	}
	extra := domain.SyncbackPayload{"target": target.Name}
	return u.applyLocalEdit(accountID, messageID, syncpkg.SyncbackMove, extra, func(msg *domain.Message) {
		msg.MailboxID = target.ID
	})
}

// applyLocalEdit runs the optimistic update: mutate the message, rebuild the
// thread rollups from scratch, queue the syncback request, all in one store
// transaction. The payload's mailbox/uid always describe where the message
// lives remotely, captured before the mutation.
func (u *mailUsecase) applyLocalEdit(accountID, messageID, syncbackType string, extra domain.SyncbackPayload, mutate func(*domain.Message)) error {
	err := u.store.Transaction(func(tx *gorm.DB, log *repository.ChangeLog) error {
		messages := u.messages.WithTx(tx)
		threads := u.threads.WithTx(tx)
		mailboxes := u.mailboxes.WithTx(tx)

		msg, err := messages.FindByID(messageID)
		if err != nil {
			return err
		}
		if msg == nil || msg.AccountID != accountID {
			return ErrNotFound
		}

		payload := domain.SyncbackPayload{"uid": msg.UID}
		if source, err := mailboxes.FindByID(msg.MailboxID); err != nil {
			return err
		} else if source != nil {
			payload["mailbox"] = source.Name
		}
		for k, v := range extra {
			payload[k] = v
		}

		mutate(msg)
		if err := messages.Save(msg); err != nil {
			return err
		}
		if err := log.Record(accountID, "message", msg.ID, domain.TransactionModify); err != nil {
			return err
		}

		if msg.ThreadID != "" {
			thread, err := threads.FindByID(msg.ThreadID)
			if err != nil {
				return err
			}
			if thread != nil {
				asm := assembler.New(threads, messages, mailboxes, u.logger)
				deleted, err := asm.UpdateFromMessages(thread, nil, true)
				if err != nil {
					return err
				}
				event := domain.TransactionModify
				if deleted {
					event = domain.TransactionDelete
				}
				if err := log.Record(accountID, "thread", thread.ID, event); err != nil {
					return err
				}
			}
		}

		return repository.NewSyncbackRepository(tx).Create(&domain.SyncbackRequest{
			AccountID: accountID,
			Type:      syncbackType,
			Payload:   payload,
		})
	})
	if err != nil {
		return err
	}

	if u.trigger != nil {
		u.trigger.SyncNow(accountID)
	}
	return nil
}
