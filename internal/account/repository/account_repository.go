package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/account/domain"
)

// AccountRepository persists accounts and their sticky error state.
type AccountRepository interface {
	FindByID(id string) (*domain.Account, error)
	FindByEmail(email string) (*domain.Account, error)
	FindAll() ([]domain.Account, error)
	Create(account *domain.Account) error
	Update(account *domain.Account) error
	Delete(id string) error
	SetSyncError(id string, syncErr domain.SyncError) error
	ClearSyncError(id string) error
	SetLastSyncCompletedAt(id string, at time.Time) error
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) FindByID(id string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByEmail(email string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.Where("email_address = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindAll() ([]domain.Account, error) {
	var accounts []domain.Account
	err := r.db.Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) Create(account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	return r.db.Create(account).Error
}

func (r *accountRepository) Update(account *domain.Account) error {
	return r.db.Save(account).Error
}

func (r *accountRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&domain.Account{}).Error
}

func (r *accountRepository) SetSyncError(id string, syncErr domain.SyncError) error {
	return r.db.Model(&domain.Account{}).
		Where("id = ?", id).
		Update("sync_error", &syncErr).Error
}

func (r *accountRepository) ClearSyncError(id string) error {
	return r.db.Model(&domain.Account{}).
		Where("id = ?", id).
		Update("sync_error", nil).Error
}

func (r *accountRepository) SetLastSyncCompletedAt(id string, at time.Time) error {
	return r.db.Model(&domain.Account{}).
		Where("id = ?", id).
		Update("last_sync_completed_at", at).Error
}
