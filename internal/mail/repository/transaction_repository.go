package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// TransactionRepository reads the append-only change log. Writes happen only
// through Store.Transaction's ChangeLog.
type TransactionRepository interface {
	FindSince(accountID string, since time.Time) ([]domain.Transaction, error)
	FindAfterID(accountID string, afterID uint64) ([]domain.Transaction, error)
	LatestID(accountID string) (uint64, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) FindSince(accountID string, since time.Time) ([]domain.Transaction, error) {
	var entries []domain.Transaction
	err := r.db.
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Order("id asc").
		Find(&entries).Error
	return entries, err
}

func (r *transactionRepository) FindAfterID(accountID string, afterID uint64) ([]domain.Transaction, error) {
	var entries []domain.Transaction
	err := r.db.
		Where("account_id = ? AND id > ?", accountID, afterID).
		Order("id asc").
		Find(&entries).Error
	return entries, err
}

// LatestID returns the newest change-log id for the account, zero when the
// log is empty.
func (r *transactionRepository) LatestID(accountID string) (uint64, error) {
	var entry domain.Transaction
	err := r.db.
		Where("account_id = ?", accountID).
		Order("id desc").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}
