package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Syncback request lifecycle.
const (
	SyncbackNew       = "new"
	SyncbackSucceeded = "succeeded"
	SyncbackFailed    = "failed"
)

// SyncbackPayload is the operation-specific argument blob.
type SyncbackPayload map[string]interface{}

func (p SyncbackPayload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (p *SyncbackPayload) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// SyncbackRequest records a local edit (flag change, move, label change) that
// has not yet been replayed against the remote mailbox. Workers apply pending
// requests before fetching so local intent is never overwritten by a
// concurrent fetch.
type SyncbackRequest struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index;not null"`

	Type    string          `json:"type" gorm:"not null"`
	Payload SyncbackPayload `json:"payload" gorm:"type:text"`
	Status  string          `json:"status" gorm:"index;default:new"`
	Error   string          `json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
