package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// ContactRepository deduplicates participants by address within an account.
type ContactRepository interface {
	WithTx(tx *gorm.DB) ContactRepository
	Upsert(accountID, email, name string) (*domain.Contact, bool, error)
	FindByAccount(accountID string) ([]domain.Contact, error)
}

type contactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) WithTx(tx *gorm.DB) ContactRepository {
	return &contactRepository{db: tx}
}

func (r *contactRepository) FindByAccount(accountID string) ([]domain.Contact, error) {
	var contacts []domain.Contact
	err := r.db.
		Where("account_id = ?", accountID).
		Order("email asc").
		Find(&contacts).Error
	return contacts, err
}

// Upsert returns the contact and whether it was newly created. An existing
// contact only changes when the incoming entry fills in a missing name.
func (r *contactRepository) Upsert(accountID, email, name string) (*domain.Contact, bool, error) {
	var contact domain.Contact
	err := r.db.Where("account_id = ? AND email = ?", accountID, email).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		contact = domain.Contact{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Email:     email,
			Name:      name,
		}
		if err := r.db.Create(&contact).Error; err != nil {
			return nil, false, err
		}
		return &contact, true, nil
	} else if err != nil {
		return nil, false, err
	}

	if contact.Name == "" && name != "" {
		contact.Name = name
		if err := r.db.Save(&contact).Error; err != nil {
			return nil, false, err
		}
	}
	return &contact, false, nil
}
