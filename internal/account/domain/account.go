package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderIMAP  Provider = "imap"
)

// AfterSync controls what a worker does with its session once a cycle ends.
const (
	AfterSyncIdle  = "idle"
	AfterSyncClose = "close"
)

// ConnectionSettings holds the IMAP endpoint for an account. Stored as a JSON
// column so provider-specific fields can be added without a migration.
type ConnectionSettings struct {
	IMAPHost string `json:"imap_host"`
	IMAPPort int    `json:"imap_port"`
	TLS      bool   `json:"tls"`
}

func (s ConnectionSettings) Value() (driver.Value, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *ConnectionSettings) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// Credentials is the decrypted form of Account.Credentials. For Gmail-style
// accounts the refresh token drives XOAUTH2; plain IMAP uses username/password.
type Credentials struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// SyncPolicy decides poll cadence and post-sync session behavior.
type SyncPolicy struct {
	// Poll intervals in seconds; zero means "do not reschedule".
	ActiveIntervalSec   int `json:"active_interval_sec"`
	InactiveIntervalSec int `json:"inactive_interval_sec"`

	// "idle" keeps the session open on the inbox for push events,
	// "close" tears it down after each cycle.
	AfterSync string `json:"after_sync"`
}

func (p SyncPolicy) Value() (driver.Value, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (p *SyncPolicy) Scan(value interface{}) error {
	return scanJSON(value, p)
}

func (p SyncPolicy) Interval(active bool) time.Duration {
	sec := p.InactiveIntervalSec
	if active {
		sec = p.ActiveIntervalSec
	}
	return time.Duration(sec) * time.Second
}

// SyncError is the sticky account-level fault. While present, automatic sync
// cycles are suspended until the account is edited or re-authenticated.
type SyncError struct {
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e SyncError) Value() (driver.Value, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (e *SyncError) Scan(value interface{}) error {
	return scanJSON(value, e)
}

type Account struct {
	ID           string   `json:"id" gorm:"primaryKey"`
	EmailAddress string   `json:"email_address" gorm:"uniqueIndex;not null"`
	Provider     Provider `json:"provider" gorm:"not null"`

	ConnectionSettings ConnectionSettings `json:"connection_settings" gorm:"type:text"`

	// AES-GCM sealed JSON blob of Credentials; see pkg/crypto.
	Credentials string `json:"-"`

	SyncPolicy SyncPolicy `json:"sync_policy" gorm:"type:text"`
	SyncError  *SyncError `json:"sync_error,omitempty" gorm:"type:text"`

	LastSyncCompletedAt *time.Time `json:"last_sync_completed_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Errored reports whether the account carries a sticky sync error.
func (a *Account) Errored() bool {
	return a.SyncError != nil
}

func scanJSON(value, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return nil
	}
}
