package domain

import "time"

// Reference is an RFC 2822 message-id link used to stitch messages into the
// correct thread when structural threading metadata is absent. Created lazily
// and shared by every message and thread that cites it.
type Reference struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index:idx_account_rfc_mid,unique;not null"`

	RFC2822MessageID string `json:"rfc2822_message_id" gorm:"index:idx_account_rfc_mid,unique;not null"`
	ThreadID         string `json:"thread_id" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
}
