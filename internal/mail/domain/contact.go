package domain

import "time"

// Contact is a participant extracted from message address lists, deduplicated
// by email address within an account.
type Contact struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index:idx_account_contact_email,unique;not null"`

	Email string `json:"email" gorm:"index:idx_account_contact_email,unique;not null"`
	Name  string `json:"name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
