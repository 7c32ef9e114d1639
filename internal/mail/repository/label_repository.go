package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// LabelRepository persists provider-side tags.
type LabelRepository interface {
	WithTx(tx *gorm.DB) LabelRepository
	Upsert(accountID, name, role string) (*domain.Label, error)
	FindByNames(accountID string, names []string) ([]domain.Label, error)
}

type labelRepository struct {
	db *gorm.DB
}

func NewLabelRepository(db *gorm.DB) LabelRepository {
	return &labelRepository{db: db}
}

func (r *labelRepository) WithTx(tx *gorm.DB) LabelRepository {
	return &labelRepository{db: tx}
}

func (r *labelRepository) Upsert(accountID, name, role string) (*domain.Label, error) {
	var label domain.Label
	err := r.db.Where("account_id = ? AND name = ?", accountID, name).First(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		label = domain.Label{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Name:      name,
			Role:      role,
		}
		if err := r.db.Create(&label).Error; err != nil {
			return nil, err
		}
		return &label, nil
	} else if err != nil {
		return nil, err
	}
	return &label, nil
}

func (r *labelRepository) FindByNames(accountID string, names []string) ([]domain.Label, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var labels []domain.Label
	err := r.db.Where("account_id = ? AND name IN ?", accountID, names).Find(&labels).Error
	return labels, err
}
