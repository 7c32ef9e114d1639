package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// MailboxRepository persists remote containers and their per-folder cursors.
type MailboxRepository interface {
	WithTx(tx *gorm.DB) MailboxRepository
	FindByID(id string) (*domain.Mailbox, error)
	FindByAccount(accountID string) ([]domain.Mailbox, error)
	FindByRole(accountID, role string) (*domain.Mailbox, error)
	Upsert(accountID, name, role string) (*domain.Mailbox, error)
	SaveSyncState(mailbox *domain.Mailbox) error
	RecordFailedUID(mailboxID string, uid uint32) error
}

type mailboxRepository struct {
	db *gorm.DB
}

func NewMailboxRepository(db *gorm.DB) MailboxRepository {
	return &mailboxRepository{db: db}
}

func (r *mailboxRepository) WithTx(tx *gorm.DB) MailboxRepository {
	return &mailboxRepository{db: tx}
}

func (r *mailboxRepository) FindByID(id string) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	err := r.db.Where("id = ?", id).First(&mb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mb, nil
}

func (r *mailboxRepository) FindByAccount(accountID string) ([]domain.Mailbox, error) {
	var boxes []domain.Mailbox
	err := r.db.Where("account_id = ?", accountID).Find(&boxes).Error
	return boxes, err
}

func (r *mailboxRepository) FindByRole(accountID, role string) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	err := r.db.Where("account_id = ? AND role = ?", accountID, role).First(&mb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mb, nil
}

// Upsert refreshes a mailbox from a category listing, keeping the existing
// sync state when the container is already known.
func (r *mailboxRepository) Upsert(accountID, name, role string) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	err := r.db.Where("account_id = ? AND name = ?", accountID, name).First(&mb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		mb = domain.Mailbox{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Name:      name,
			Role:      role,
		}
		if err := r.db.Create(&mb).Error; err != nil {
			return nil, err
		}
		return &mb, nil
	} else if err != nil {
		return nil, err
	}

	if mb.Role != role {
		mb.Role = role
		if err := r.db.Save(&mb).Error; err != nil {
			return nil, err
		}
	}
	return &mb, nil
}

func (r *mailboxRepository) SaveSyncState(mailbox *domain.Mailbox) error {
	mailbox.Version++
	return r.db.Save(mailbox).Error
}

// RecordFailedUID adds a uid to the mailbox's failed-item list, deduplicated.
func (r *mailboxRepository) RecordFailedUID(mailboxID string, uid uint32) error {
	var mb domain.Mailbox
	if err := r.db.Where("id = ?", mailboxID).First(&mb).Error; err != nil {
		return err
	}
	for _, existing := range mb.SyncState.FailedUIDs {
		if existing == uid {
			return nil
		}
	}
	mb.SyncState.FailedUIDs = append(mb.SyncState.FailedUIDs, uid)
	return r.SaveSyncState(&mb)
}
