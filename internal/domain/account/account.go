package account

import (
	"context"
	"errors"
	"strings"
	"time"

	perrors "partybot-server-go/internal/platform/errors"
)

// ErrNotFound is returned when an account id is not registered.
var ErrNotFound = errors.New("account not found")

// Account is a registered game account and the device credential used to
// mint access tokens for it.
type Account struct {
	AccountID   string    `json:"accountId"`
	DisplayName string    `json:"displayName"`
	DeviceID    string    `json:"deviceId"`
	Secret      string    `json:"-"`
	NeedsAction bool      `json:"needsAction"` // upstream demands a corrective action (EULA etc.)
	CreatedAt   time.Time `json:"createdAt"`
}

// New validates the identity fields and stamps the creation time.
func New(accountID, displayName, deviceID, secret string) (*Account, error) {
	accountID = strings.TrimSpace(accountID)
	switch {
	case accountID == "":
		return nil, perrors.New(perrors.KindDomain, "account.new", "account ID cannot be empty")
	case deviceID == "" || secret == "":
		return nil, perrors.New(perrors.KindDomain, "account.new", "device credentials are required")
	}
	if displayName == "" {
		displayName = accountID
	}
	return &Account{
		AccountID:   accountID,
		DisplayName: displayName,
		DeviceID:    deviceID,
		Secret:      secret,
		CreatedAt:   time.Now(),
	}, nil
}

// Repository persists accounts.
type Repository interface {
	// Save inserts or replaces the account.
	Save(ctx context.Context, acc *Account) error

	// FindByID returns ErrNotFound when the account does not exist.
	FindByID(ctx context.Context, accountID string) (*Account, error)

	List(ctx context.Context) ([]*Account, error)

	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, accountID string) error

	SetNeedsAction(ctx context.Context, accountID string, needsAction bool) error
}
