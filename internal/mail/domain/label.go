package domain

import "time"

// Label is a provider-side tag (Gmail label or IMAP keyword) applied to
// messages and denormalized onto threads.
type Label struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index:idx_account_label_name,unique;not null"`

	Name string `json:"name" gorm:"index:idx_account_label_name,unique;not null"`
	Role string `json:"role"`

	CreatedAt time.Time `json:"created_at"`
}
