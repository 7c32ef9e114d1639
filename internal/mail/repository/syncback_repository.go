package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coder92330/nylas-mail/internal/mail/domain"
)

// SyncbackRepository tracks pending local actions awaiting remote replay.
type SyncbackRepository interface {
	Create(req *domain.SyncbackRequest) error
	FindPending(accountID string) ([]domain.SyncbackRequest, error)
	MarkSucceeded(id string) error
	MarkFailed(id string, reason string) error
}

type syncbackRepository struct {
	db *gorm.DB
}

func NewSyncbackRepository(db *gorm.DB) SyncbackRepository {
	return &syncbackRepository{db: db}
}

func (r *syncbackRepository) Create(req *domain.SyncbackRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = domain.SyncbackNew
	}
	return r.db.Create(req).Error
}

func (r *syncbackRepository) FindPending(accountID string) ([]domain.SyncbackRequest, error) {
	var reqs []domain.SyncbackRequest
	err := r.db.
		Where("account_id = ? AND status = ?", accountID, domain.SyncbackNew).
		Order("created_at asc").
		Find(&reqs).Error
	return reqs, err
}

func (r *syncbackRepository) MarkSucceeded(id string) error {
	return r.db.Model(&domain.SyncbackRequest{}).
		Where("id = ?", id).
		Update("status", domain.SyncbackSucceeded).Error
}

func (r *syncbackRepository) MarkFailed(id string, reason string) error {
	return r.db.Model(&domain.SyncbackRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": domain.SyncbackFailed, "error": reason}).Error
}
