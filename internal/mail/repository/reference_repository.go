package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// ReferenceRepository persists message-id links used for threading.
type ReferenceRepository interface {
	WithTx(tx *gorm.DB) ReferenceRepository
	FindByMessageIDs(accountID string, rfcIDs []string) ([]domain.Reference, error)
	Create(ref *domain.Reference) error
}

type referenceRepository struct {
	db *gorm.DB
}

func NewReferenceRepository(db *gorm.DB) ReferenceRepository {
	return &referenceRepository{db: db}
}

func (r *referenceRepository) WithTx(tx *gorm.DB) ReferenceRepository {
	return &referenceRepository{db: tx}
}

func (r *referenceRepository) FindByMessageIDs(accountID string, rfcIDs []string) ([]domain.Reference, error) {
	if len(rfcIDs) == 0 {
		return nil, nil
	}
	var refs []domain.Reference
	err := r.db.
		Where("account_id = ? AND rfc2822_message_id IN ?", accountID, rfcIDs).
		Find(&refs).Error
	return refs, err
}

func (r *referenceRepository) Create(ref *domain.Reference) error {
	if ref.ID == "" {
		ref.ID = uuid.New().String()
	}
	return r.db.Create(ref).Error
}
