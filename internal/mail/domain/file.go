package domain

import "time"

// File is an extracted attachment. Parts carrying a content id are inline
// images and do not count toward a thread's has-attachments flag.
type File struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index;not null"`
	MessageID string `json:"message_id" gorm:"index;not null"`

	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	ContentID   string `json:"content_id"`
	Size        int64  `json:"size"`

	CreatedAt time.Time `json:"created_at"`
}

// IsInline reports whether the file is an inline body part.
func (f *File) IsInline() bool {
	return f.ContentID != ""
}
