package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// MessageRepository persists messages and their label/reference associations.
type MessageRepository interface {
	WithTx(tx *gorm.DB) MessageRepository
	FindByID(id string) (*domain.Message, error)
	FindByHash(accountID, hash string) (*domain.Message, error)
	FindByThread(threadID string) ([]domain.Message, error)
	Create(msg *domain.Message) error
	Save(msg *domain.Message) error
	Delete(msg *domain.Message) error
	SetLabels(msg *domain.Message, labels []domain.Label) error
	SetReferences(msg *domain.Message, refs []domain.Reference) error
	CountByThread(threadID string) (int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) WithTx(tx *gorm.DB) MessageRepository {
	return &messageRepository{db: tx}
}

func (r *messageRepository) FindByID(id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.
		Preload("Labels").
		Preload("Files").
		Where("id = ?", id).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) FindByHash(accountID, hash string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.
		Preload("Labels").
		Preload("Files").
		Where("account_id = ? AND hash = ?", accountID, hash).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// FindByThread returns every message of a thread with labels and files
// eagerly loaded, as required by thread recompute.
func (r *messageRepository) FindByThread(threadID string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := r.db.
		Preload("Labels").
		Preload("Files").
		Where("thread_id = ?", threadID).
		Order("date asc").
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) Create(msg *domain.Message) error {
	return r.db.Omit("Labels", "References", "Files").Create(msg).Error
}

func (r *messageRepository) Save(msg *domain.Message) error {
	msg.Version++
	return r.db.Omit("Labels", "References", "Files").Save(msg).Error
}

func (r *messageRepository) Delete(msg *domain.Message) error {
	return r.db.Delete(msg).Error
}

func (r *messageRepository) SetLabels(msg *domain.Message, labels []domain.Label) error {
	return r.db.Model(msg).Association("Labels").Replace(labels)
}

func (r *messageRepository) SetReferences(msg *domain.Message, refs []domain.Reference) error {
	return r.db.Model(msg).Association("References").Replace(refs)
}

func (r *messageRepository) CountByThread(threadID string) (int64, error) {
	var n int64
	err := r.db.Model(&domain.Message{}).Where("thread_id = ?", threadID).Count(&n).Error
	return n, err
}
