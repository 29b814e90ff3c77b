// Package auth produces valid bearer tokens per account. Refreshes are
// single-flight: concurrent callers for one account share one exchange.
package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/auth/model"
	"partybot-server-go/internal/domain/auth/store"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/util/lock"
)

// DefaultExpiryMargin is subtracted from the upstream expiry so a token is
// never handed out seconds before it dies.
const DefaultExpiryMargin = 30 * time.Second

type (
	// Token re-exports the shared token entity for callers.
	Token = model.Token
	// Logger re-exports the logging interface used across the domain.
	Logger = model.Logger
)

// AccountDirectory is the slice of the account registry the cache needs.
type AccountDirectory interface {
	Get(accountID string) (account.Account, bool)
	Remove(ctx context.Context, accountID string) (bool, error)
	MarkNeedsAction(ctx context.Context, accountID string) error
}

// Exchanger trades a device credential for an access token.
type Exchanger interface {
	ExchangeDeviceAuth(ctx context.Context, accountID, deviceID, secret string) (*epic.TokenResponse, error)
}

// Options encapsulates the dependencies required to construct a TokenCache.
type Options struct {
	Accounts  AccountDirectory
	Exchanger Exchanger

	// Store is optional; without it tokens live in memory only.
	Store    store.Store
	Notifier *Notifier
	Logger   Logger

	// Scope distinguishes token kinds minted for the same account.
	Scope        string
	ExpiryMargin time.Duration
}

type tokenState struct {
	mu    sync.RWMutex
	token model.Token
	lock  lock.Mutex
}

func (s *tokenState) current(now time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token.Valid(now) {
		return s.token.AccessToken, true
	}
	return "", false
}

func (s *tokenState) set(t model.Token) {
	s.mu.Lock()
	s.token = t
	s.mu.Unlock()
}

func (s *tokenState) invalidate() {
	s.set(model.Token{})
}

// TokenCache hands out valid access tokens per account.
type TokenCache struct {
	accounts  AccountDirectory
	exchanger Exchanger
	store     store.Store
	notifier  *Notifier
	logger    Logger
	scope     string
	margin    time.Duration
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*tokenState

	exchanges atomic.Int64
}

// NewTokenCache wires a TokenCache using the supplied options.
func NewTokenCache(opts Options) (*TokenCache, error) {
	if opts.Accounts == nil {
		return nil, errors.New("token cache requires an account directory")
	}
	if opts.Exchanger == nil {
		return nil, errors.New("token cache requires an exchanger")
	}
	if opts.Logger == nil {
		return nil, errors.New("token cache requires a logger")
	}
	margin := opts.ExpiryMargin
	if margin <= 0 {
		margin = DefaultExpiryMargin
	}
	return &TokenCache{
		accounts:  opts.Accounts,
		exchanger: opts.Exchanger,
		store:     opts.Store,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		scope:     opts.Scope,
		margin:    margin,
		now:       time.Now,
		states:    make(map[string]*tokenState),
	}, nil
}

// state lazily creates the per-account state. States are kept for the
// process lifetime so every caller for an account shares one lock.
func (c *TokenCache) state(accountID string) *tokenState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[accountID]
	if !ok {
		st = &tokenState{}
		c.states[accountID] = st
	}
	return st
}

// Token returns a valid access token for accountID. force discards the
// cached and persisted token first. Concurrent callers that find no valid
// token queue on the account's lock and the first one performs the exchange.
func (c *TokenCache) Token(ctx context.Context, accountID string, force bool) (string, error) {
	st := c.state(accountID)

	if force {
		st.invalidate()
		if c.store != nil {
			if err := c.store.Remove(ctx, accountID, c.scope); err != nil {
				c.logger.Warn("dropping persisted token for %s failed: %v", accountID, err)
			}
		}
	}

	if token, ok := st.current(c.now()); ok {
		return token, nil
	}

	return lock.WithLock(ctx, &st.lock, func(ctx context.Context) (string, error) {
		if token, ok := st.current(c.now()); ok {
			return token, nil
		}
		if token, ok := c.restore(ctx, accountID, st); ok {
			return token, nil
		}
		return c.refresh(ctx, accountID, st)
	})
}

// restore adopts a still-valid token from the persisted store.
func (c *TokenCache) restore(ctx context.Context, accountID string, st *tokenState) (string, bool) {
	if c.store == nil {
		return "", false
	}
	t, err := c.store.Get(ctx, accountID, c.scope)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("reading persisted token for %s failed: %v", accountID, err)
		}
		return "", false
	}
	if !t.Valid(c.now()) {
		return "", false
	}
	st.set(t)
	c.logger.Debug("restored persisted token for %s", accountID)
	return t.AccessToken, true
}

func (c *TokenCache) refresh(ctx context.Context, accountID string, st *tokenState) (string, error) {
	acc, ok := c.accounts.Get(accountID)
	if !ok {
		return "", perrors.Wrap(perrors.KindAuth, "auth.refresh", "unknown account "+accountID, account.ErrNotFound)
	}

	c.logger.Debug("refreshing access token for %s", accountID)
	c.exchanges.Add(1)
	resp, err := c.exchanger.ExchangeDeviceAuth(ctx, acc.AccountID, acc.DeviceID, acc.Secret)
	if err != nil {
		c.handleExchangeError(ctx, acc, err)
		return "", err
	}

	now := c.now()
	expiresAt, ok := c.expiry(resp, now)
	if !ok || resp.AccessToken == "" {
		return "", perrors.New(perrors.KindAuth, "auth.refresh", "exchange returned no usable token for "+accountID)
	}

	t := model.Token{
		AccountID:   accountID,
		Scope:       c.scope,
		AccessToken: resp.AccessToken,
		ExpiresAt:   expiresAt,
		IssuedAt:    now,
	}
	st.set(t)
	if c.store != nil {
		if err := c.store.Save(ctx, t); err != nil {
			c.logger.Warn("persisting token for %s failed: %v", accountID, err)
		}
	}
	return t.AccessToken, nil
}

// expiry prefers expires_in and falls back to the JWT exp claim.
func (c *TokenCache) expiry(resp *epic.TokenResponse, now time.Time) (time.Time, bool) {
	var exp time.Time
	switch {
	case resp.ExpiresIn > 0:
		exp = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	default:
		fromJWT, ok := expiryFromJWT(resp.AccessToken)
		if !ok {
			return time.Time{}, false
		}
		exp = fromJWT
	}

	// Short-lived tokens keep at least half of their lifetime.
	margin := min(c.margin, exp.Sub(now)/2)
	exp = exp.Add(-margin)
	return exp, exp.After(now)
}

// handleExchangeError applies the account-level consequences of a failed
// exchange. The caller still returns err.
func (c *TokenCache) handleExchangeError(ctx context.Context, acc account.Account, err error) {
	apiErr, ok := epic.AsAPIError(err)
	if !ok {
		return
	}
	// These run even when the caller gives up waiting.
	ctx = context.WithoutCancel(ctx)

	switch apiErr.ErrorCode {
	case epic.ErrCodeInvalidCredentials:
		c.logger.Warn("removing account %s (%s): device credentials rejected", acc.AccountID, acc.DisplayName)
		if _, rmErr := c.accounts.Remove(ctx, acc.AccountID); rmErr != nil {
			c.logger.Error("removing account %s failed: %v", acc.AccountID, rmErr)
		}
		if c.store != nil {
			if rmErr := c.store.RemoveAccount(ctx, acc.AccountID); rmErr != nil {
				c.logger.Warn("dropping persisted tokens for %s failed: %v", acc.AccountID, rmErr)
			}
		}
		c.notify(acc, apiErr.ErrorCode, "Login expired for "+acc.DisplayName+", please log in again")

	case epic.ErrCodeCorrectiveAction:
		c.logger.Warn("account %s (%s) requires a corrective action: %s", acc.AccountID, acc.DisplayName, apiErr.CorrectiveAction)
		if flagErr := c.accounts.MarkNeedsAction(ctx, acc.AccountID); flagErr != nil {
			c.logger.Error("flagging account %s failed: %v", acc.AccountID, flagErr)
		}
		c.notify(acc, apiErr.ErrorCode, acc.DisplayName+" must accept the latest EULA")
	}
}

func (c *TokenCache) notify(acc account.Account, code, message string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(eventbus.Notification{
		AccountID: acc.AccountID,
		Code:      code,
		Level:     "error",
		Message:   message,
	})
}

// Forget drops the in-memory and persisted token of accountID. The lock
// state is kept so callers already queued stay serialized.
func (c *TokenCache) Forget(ctx context.Context, accountID string) {
	c.mu.Lock()
	st, ok := c.states[accountID]
	c.mu.Unlock()
	if ok {
		st.invalidate()
	}
	if c.store != nil {
		if err := c.store.RemoveAccount(ctx, accountID); err != nil {
			c.logger.Warn("dropping persisted tokens for %s failed: %v", accountID, err)
		}
	}
}

// StoreStats summarizes the persisted token store. Without a store it
// reports an empty summary.
func (c *TokenCache) StoreStats(ctx context.Context) (store.Stats, error) {
	if c.store == nil {
		return store.Stats{}, nil
	}
	return c.store.Stats(ctx)
}

// Exchanges returns how many credential exchanges were attempted.
func (c *TokenCache) Exchanges() int64 {
	return c.exchanges.Load()
}

// Close releases the persisted store.
func (c *TokenCache) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close(ctx)
}
