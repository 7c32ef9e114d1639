package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Message is the immutable-once-processed unit of mail. Identity is the
// canonical header hash so re-ingesting the same message is an update, never
// a duplicate.
type Message struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index;index:idx_account_message_hash,unique;not null"`
	Version   int    `json:"version"`

	ThreadID  string `json:"thread_id" gorm:"index"`
	MailboxID string `json:"mailbox_id" gorm:"index"`

	HeaderMessageID string `json:"header_message_id" gorm:"index"`

	// Dedupe is per account: the same logical message can legitimately be
	// synced into several accounts.
	Hash string `json:"hash" gorm:"index:idx_account_message_hash,unique;not null"`

	Subject string    `json:"subject"`
	Snippet string    `json:"snippet"`
	Body    string    `json:"body"`
	Date    time.Time `json:"date"`

	Unread    bool `json:"unread"`
	Starred   bool `json:"starred"`
	Processed bool `json:"processed"`

	From ParticipantList `json:"from" gorm:"type:text"`
	To   ParticipantList `json:"to" gorm:"type:text"`
	Cc   ParticipantList `json:"cc" gorm:"type:text"`
	Bcc  ParticipantList `json:"bcc" gorm:"type:text"`

	// IMAP UID within the owning mailbox.
	UID uint32 `json:"uid"`

	// Reference ids in the order the message declared them.
	ReferencesOrder StringList `json:"references_order" gorm:"type:text"`

	Labels     []Label     `json:"labels" gorm:"many2many:message_labels"`
	References []Reference `json:"-" gorm:"many2many:message_references"`
	Files      []File      `json:"files"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participants returns from/to/cc/bcc concatenated in that order.
func (m *Message) Participants() []Participant {
	out := make([]Participant, 0, len(m.From)+len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.From...)
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// IsSent classifies a message as outgoing when its mailbox or any label
// carries the sent role.
func (m *Message) IsSent(mailboxRole string) bool {
	if mailboxRole == RoleSent {
		return true
	}
	for _, l := range m.Labels {
		if l.Role == RoleSent {
			return true
		}
	}
	return false
}

// HashForHeaders computes the canonical content hash used for deduplication.
func HashForHeaders(headers string) string {
	sum := sha256.Sum256([]byte(headers))
	return hex.EncodeToString(sum[:])
}
