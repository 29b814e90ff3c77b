package account

import (
	"context"
	"errors"
	"sort"
	"sync"

	"partybot-server-go/internal/domain/eventbus"
	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
)

// Registry is the in-process view of every registered account, written
// through to a Repository. Removal and corrective-action signals are
// published on the application bus so that listeners never run under the
// caller's locks.
type Registry struct {
	repo   Repository
	events eventbus.Publisher
	logger logging.Logger

	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewRegistry(repo Repository, events eventbus.Publisher, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		repo:     repo,
		events:   events,
		logger:   logger,
		accounts: make(map[string]*Account),
	}
}

// Load replaces the cache with the repository contents.
func (r *Registry) Load(ctx context.Context) error {
	list, err := r.repo.List(ctx)
	if err != nil {
		return perrors.Wrap(perrors.KindDomain, "account.load", "failed to list accounts", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make(map[string]*Account, len(list))
	for _, acc := range list {
		r.accounts[acc.AccountID] = acc
	}
	return nil
}

// Add registers or updates an account.
func (r *Registry) Add(ctx context.Context, acc *Account) error {
	if acc == nil || acc.AccountID == "" {
		return perrors.New(perrors.KindDomain, "account.add", "account ID cannot be empty")
	}
	stored := *acc
	if err := r.repo.Save(ctx, &stored); err != nil {
		return perrors.Wrap(perrors.KindDomain, "account.add", "failed to save account", err)
	}

	r.mu.Lock()
	r.accounts[stored.AccountID] = &stored
	r.mu.Unlock()

	r.logger.Info("account %s (%s) registered", stored.AccountID, stored.DisplayName)
	r.publish(eventbus.EventAccountAdded, eventbus.AccountEvent{AccountID: stored.AccountID, DisplayName: stored.DisplayName})
	return nil
}

// Get returns a copy of the account.
func (r *Registry) Get(accountID string) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// Has reports whether accountID is registered.
func (r *Registry) Has(accountID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.accounts[accountID]
	return ok
}

// List returns copies of all accounts ordered by display name.
func (r *Registry) List() []Account {
	r.mu.RLock()
	out := make([]Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		out = append(out, *acc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// Remove deregisters the account. Removing an unknown account is a no-op
// that reports false.
func (r *Registry) Remove(ctx context.Context, accountID string) (bool, error) {
	r.mu.Lock()
	acc, ok := r.accounts[accountID]
	delete(r.accounts, accountID)
	r.mu.Unlock()

	if err := r.repo.Delete(ctx, accountID); err != nil {
		return ok, perrors.Wrap(perrors.KindDomain, "account.remove", "failed to delete account", err)
	}
	if !ok {
		return false, nil
	}

	r.logger.Warn("account %s (%s) removed", acc.AccountID, acc.DisplayName)
	r.publish(eventbus.EventAccountRemoved, eventbus.AccountEvent{AccountID: acc.AccountID, DisplayName: acc.DisplayName})
	return true, nil
}

// MarkNeedsAction flags the account as requiring a corrective action without
// removing it.
func (r *Registry) MarkNeedsAction(ctx context.Context, accountID string) error {
	r.mu.Lock()
	acc, ok := r.accounts[accountID]
	if ok {
		acc.NeedsAction = true
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if err := r.repo.SetNeedsAction(ctx, accountID, true); err != nil && !errors.Is(err, ErrNotFound) {
		return perrors.Wrap(perrors.KindDomain, "account.needs_action", "failed to flag account", err)
	}
	r.publish(eventbus.EventAccountNeedsAction, eventbus.AccountEvent{AccountID: acc.AccountID, DisplayName: acc.DisplayName})
	return nil
}

// ClearNeedsAction resets the flag after the user resolved the issue.
func (r *Registry) ClearNeedsAction(ctx context.Context, accountID string) error {
	r.mu.Lock()
	acc, ok := r.accounts[accountID]
	if ok {
		acc.NeedsAction = false
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return r.repo.SetNeedsAction(ctx, accountID, false)
}

func (r *Registry) publish(topic string, payload any) {
	if r.events != nil {
		r.events.Publish(topic, payload)
	}
}
