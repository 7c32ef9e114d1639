package domain

import "time"

// Thread aggregates related messages. Every rollup field is a pure function
// of the member messages' flags, dates and folder/label membership, and can
// be rebuilt from scratch at any time.
type Thread struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index;not null"`
	Version   int    `json:"version"`

	Subject string `json:"subject" gorm:"index"`
	Snippet string `json:"snippet"`

	UnreadCount  int `json:"unread_count"`
	StarredCount int `json:"starred_count"`

	FirstMessageDate        *time.Time `json:"first_message_date"`
	LastMessageDate         *time.Time `json:"last_message_date"`
	LastMessageSentDate     *time.Time `json:"last_message_sent_date"`
	LastMessageReceivedDate *time.Time `json:"last_message_received_date"`

	Participants   ParticipantList `json:"participants" gorm:"type:text"`
	HasAttachments bool            `json:"has_attachments"`

	Mailboxes []Mailbox `json:"mailboxes" gorm:"many2many:thread_mailboxes"`
	Labels    []Label   `json:"labels" gorm:"many2many:thread_labels"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
