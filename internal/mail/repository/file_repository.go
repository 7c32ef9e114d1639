package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// FileRepository persists extracted attachments.
type FileRepository interface {
	WithTx(tx *gorm.DB) FileRepository
	Create(file *domain.File) error
	FindByMessage(messageID string) ([]domain.File, error)
}

type fileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) WithTx(tx *gorm.DB) FileRepository {
	return &fileRepository{db: tx}
}

func (r *fileRepository) Create(file *domain.File) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	return r.db.Create(file).Error
}

func (r *fileRepository) FindByMessage(messageID string) ([]domain.File, error) {
	var files []domain.File
	err := r.db.Where("message_id = ?", messageID).Find(&files).Error
	return files, err
}
