package model

import (
	"time"

	"partybot-server-go/internal/platform/logging"
)

// Token is a short-lived bearer token minted for one account and scope.
type Token struct {
	AccountID   string    `json:"account_id"`
	Scope       string    `json:"scope"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Valid reports whether the token is non-empty and unexpired at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// Key identifies the (account, scope) pair a token belongs to.
func (t Token) Key() string {
	return Key(t.AccountID, t.Scope)
}

// Key joins an account id and scope into a store key.
func Key(accountID, scope string) string {
	if scope == "" {
		return accountID
	}
	return accountID + ":" + scope
}

// Logger is the logging contract used across the auth domain.
type Logger = logging.Logger
