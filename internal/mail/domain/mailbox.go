package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Mailbox roles. Role tags drive fetch priority and sent-message
// classification.
const (
	RoleInbox  = "inbox"
	RoleSent   = "sent"
	RoleDrafts = "drafts"
	RoleTrash  = "trash"
	RoleSpam   = "spam"
	RoleAll    = "all"
)

// Canonical Gmail containers; a Gmail account missing any of these is not in
// a syncable state.
var GmailCanonicalMailboxes = []string{"[Gmail]/All Mail", "[Gmail]/Trash", "[Gmail]/Spam"}

// MailboxSyncState is the per-folder cursor, stored as a JSON column.
type MailboxSyncState struct {
	UIDValidity uint32 `json:"uid_validity"`
	UIDNext     uint32 `json:"uid_next"`

	// UIDs whose ingestion failed, retained for inspection and retry.
	FailedUIDs UintList `json:"failed_uids"`
}

func (s MailboxSyncState) Value() (driver.Value, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *MailboxSyncState) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// Mailbox is a named remote container (folder or label view) with a role tag.
type Mailbox struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index;not null"`
	Version   int    `json:"version"`

	Name string `json:"name" gorm:"not null"`
	Role string `json:"role" gorm:"index"`

	SyncState MailboxSyncState `json:"sync_state" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
