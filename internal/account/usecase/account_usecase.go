package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder92330/nylas-mail/internal/account/domain"
	"github.com/coder92330/nylas-mail/internal/account/repository"
	"github.com/coder92330/nylas-mail/pkg/bus"
	"github.com/coder92330/nylas-mail/pkg/crypto"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// AccountInput carries the user-supplied fields of an account. Credentials
// arrive in the clear and are sealed before they touch the database.
type AccountInput struct {
	EmailAddress       string                     `json:"email_address"`
	Provider           domain.Provider            `json:"provider"`
	ConnectionSettings *domain.ConnectionSettings `json:"connection_settings"`
	Credentials        *domain.Credentials        `json:"credentials"`
	SyncPolicy         *domain.SyncPolicy         `json:"sync_policy"`
}

// SyncDefaults are the polling intervals applied when an account is created
// without an explicit policy.
type SyncDefaults struct {
	ActiveInterval   time.Duration
	InactiveInterval time.Duration
}

// SyncController is the slice of the worker manager the usecase needs.
type SyncController interface {
	Ensure(accountID string)
	Remove(accountID string)
	SyncNow(accountID string) bool
}

type AccountUsecase interface {
	Create(input AccountInput) (*domain.Account, error)
	Update(id string, input AccountInput) (*domain.Account, error)
	Delete(id string) error
	Get(id string) (*domain.Account, error)
	List() ([]domain.Account, error)
	SyncNow(id string) error
}

type accountUsecase struct {
	accounts repository.AccountRepository
	bus      *bus.Bus
	sync     SyncController
	secret   string
	defaults SyncDefaults
}

func NewAccountUsecase(accounts repository.AccountRepository, b *bus.Bus, sync SyncController, secret string, defaults SyncDefaults) AccountUsecase {
	if defaults.ActiveInterval <= 0 {
		defaults.ActiveInterval = 60 * time.Second
	}
	if defaults.InactiveInterval <= 0 {
		defaults.InactiveInterval = 5 * time.Minute
	}
	return &accountUsecase{accounts: accounts, bus: b, sync: sync, secret: secret, defaults: defaults}
}

func (u *accountUsecase) Create(input AccountInput) (*domain.Account, error) {
	if input.EmailAddress == "" {
		return nil, fmt.Errorf("email_address is required")
	}
	if input.Credentials == nil || input.Credentials.Username == "" {
		return nil, fmt.Errorf("credentials with a username are required")
	}
	if input.ConnectionSettings == nil || input.ConnectionSettings.IMAPHost == "" {
		return nil, fmt.Errorf("connection_settings with an imap_host are required")
	}

	existing, err := u.accounts.FindByEmail(input.EmailAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	sealed, err := u.sealCredentials(input.Credentials)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		EmailAddress:       input.EmailAddress,
		Provider:           input.Provider,
		ConnectionSettings: *input.ConnectionSettings,
		Credentials:        sealed,
		SyncPolicy:         u.defaultSyncPolicy(input.Provider),
	}
	if account.Provider == "" {
		account.Provider = domain.ProviderIMAP
	}
	if input.SyncPolicy != nil {
		account.SyncPolicy = *input.SyncPolicy
	}

	if err := u.accounts.Create(account); err != nil {
		return nil, err
	}
	if u.sync != nil {
		u.sync.Ensure(account.ID)
	}
	return account, nil
}

// Update applies the edit and clears any sticky sync error, then tells the
// worker to drop its session so new settings take effect.
func (u *accountUsecase) Update(id string, input AccountInput) (*domain.Account, error) {
	account, err := u.accounts.FindByID(id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if input.ConnectionSettings != nil {
		account.ConnectionSettings = *input.ConnectionSettings
	}
	if input.SyncPolicy != nil {
		account.SyncPolicy = *input.SyncPolicy
	}
	if input.Credentials != nil {
		sealed, err := u.sealCredentials(input.Credentials)
		if err != nil {
			return nil, err
		}
		account.Credentials = sealed
	}
	account.SyncError = nil

	if err := u.accounts.Update(account); err != nil {
		return nil, err
	}

	u.bus.Publish(bus.Event{AccountID: account.ID, Kind: bus.EventAccountUpdated})
	return account, nil
}

func (u *accountUsecase) Delete(id string) error {
	account, err := u.accounts.FindByID(id)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if u.sync != nil {
		u.sync.Remove(id)
	}
	return u.accounts.Delete(id)
}

func (u *accountUsecase) Get(id string) (*domain.Account, error) {
	account, err := u.accounts.FindByID(id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (u *accountUsecase) List() ([]domain.Account, error) {
	return u.accounts.FindAll()
}

func (u *accountUsecase) SyncNow(id string) error {
	account, err := u.accounts.FindByID(id)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if u.sync == nil || !u.sync.SyncNow(id) {
		return fmt.Errorf("no sync worker running for account %s", id)
	}
	return nil
}

func (u *accountUsecase) sealCredentials(creds *domain.Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	sealed, err := crypto.Encrypt(string(raw), u.secret)
	if err != nil {
		return "", fmt.Errorf("failed to seal credentials: %w", err)
	}
	return sealed, nil
}

func (u *accountUsecase) defaultSyncPolicy(provider domain.Provider) domain.SyncPolicy {
	policy := domain.SyncPolicy{
		ActiveIntervalSec:   int(u.defaults.ActiveInterval / time.Second),
		InactiveIntervalSec: int(u.defaults.InactiveInterval / time.Second),
		AfterSync:           domain.AfterSyncClose,
	}
	if provider == domain.ProviderGmail {
		policy.AfterSync = domain.AfterSyncIdle
	}
	return policy
}
