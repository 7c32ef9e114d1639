package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// ThreadRepository persists threads and their denormalized mailbox/label sets.
type ThreadRepository interface {
	WithTx(tx *gorm.DB) ThreadRepository
	FindByID(id string) (*domain.Thread, error)
	FindBySubject(accountID, subject string) (*domain.Thread, error)
	FindByAccount(accountID string, limit, offset int) ([]domain.Thread, error)
	Create(thread *domain.Thread) error
	Save(thread *domain.Thread) error
	Delete(thread *domain.Thread) error
	SetMailboxes(thread *domain.Thread, mailboxes []domain.Mailbox) error
	SetLabels(thread *domain.Thread, labels []domain.Label) error
	AddReferences(thread *domain.Thread, refs []domain.Reference) error
}

type threadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) WithTx(tx *gorm.DB) ThreadRepository {
	return &threadRepository{db: tx}
}

func (r *threadRepository) FindByID(id string) (*domain.Thread, error) {
	var thread domain.Thread
	err := r.db.
		Preload("Mailboxes").
		Preload("Labels").
		Where("id = ?", id).
		First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &thread, nil
}

// FindBySubject returns the most recently active thread with a matching
// subject, used by the threading heuristic when no reference matches.
func (r *threadRepository) FindBySubject(accountID, subject string) (*domain.Thread, error) {
	var thread domain.Thread
	err := r.db.
		Preload("Mailboxes").
		Preload("Labels").
		Where("account_id = ? AND subject = ?", accountID, subject).
		Order("last_message_date desc").
		First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &thread, nil
}

// FindByAccount pages threads newest-activity first.
func (r *threadRepository) FindByAccount(accountID string, limit, offset int) ([]domain.Thread, error) {
	if limit <= 0 {
		limit = 50
	}
	var threads []domain.Thread
	err := r.db.
		Preload("Mailboxes").
		Preload("Labels").
		Where("account_id = ?", accountID).
		Order("last_message_date desc").
		Limit(limit).
		Offset(offset).
		Find(&threads).Error
	return threads, err
}

func (r *threadRepository) Create(thread *domain.Thread) error {
	return r.db.Omit("Mailboxes", "Labels").Create(thread).Error
}

func (r *threadRepository) Save(thread *domain.Thread) error {
	thread.Version++
	return r.db.Omit("Mailboxes", "Labels").Save(thread).Error
}

func (r *threadRepository) Delete(thread *domain.Thread) error {
	if err := r.db.Model(thread).Association("Mailboxes").Clear(); err != nil {
		return err
	}
	if err := r.db.Model(thread).Association("Labels").Clear(); err != nil {
		return err
	}
	return r.db.Delete(thread).Error
}

func (r *threadRepository) SetMailboxes(thread *domain.Thread, mailboxes []domain.Mailbox) error {
	return r.db.Model(thread).Association("Mailboxes").Replace(mailboxes)
}

func (r *threadRepository) SetLabels(thread *domain.Thread, labels []domain.Label) error {
	return r.db.Model(thread).Association("Labels").Replace(labels)
}

func (r *threadRepository) AddReferences(thread *domain.Thread, refs []domain.Reference) error {
	for i := range refs {
		if refs[i].ThreadID == "" {
			refs[i].ThreadID = thread.ID
			if err := r.db.Model(&domain.Reference{}).
				Where("id = ?", refs[i].ID).
				Update("thread_id", thread.ID).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
