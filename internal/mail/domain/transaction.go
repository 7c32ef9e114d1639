package domain

import "time"

// Transaction events.
const (
	TransactionCreate = "create"
	TransactionModify = "modify"
	TransactionDelete = "delete"
)

// Transaction is one append-only change-log entry. Rows are never mutated
// after creation; the delta feed only reads forward from a cursor. The
// auto-increment ID doubles as the per-account commit order.
type Transaction struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	AccountID string `json:"account_id" gorm:"index;not null"`

	ModelName string `json:"model_name" gorm:"not null"`
	ObjectID  string `json:"object_id" gorm:"not null"`
	Event     string `json:"event" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
