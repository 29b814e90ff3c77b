// Package stream owns the push-stream session of every account. A session
// is shared by purposes and lives while at least one purpose holds it.
package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/transport/presence"
	"partybot-server-go/internal/util/lock"
)

// TokenSource supplies access tokens for dialing.
type TokenSource interface {
	Token(ctx context.Context, accountID string, force bool) (string, error)
}

// Mirror is the state mirror fed by the session's notifications.
type Mirror interface {
	Refresh(ctx context.Context, accountID string) error
	Apply(ctx context.Context, owner, topic string, payload any)
	Forget(accountID string)
}

// Registry holds at most one Session per account.
type Registry struct {
	cfg    Config
	dialer presence.Dialer
	tokens TokenSource
	mirror Mirror
	logger logging.Logger

	// backoff maps failed attempts to the next reconnect delay.
	backoff func(attempts int) time.Duration

	locks lock.KeyedMutex

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds an empty registry dialing through dialer.
func NewRegistry(cfg Config, dialer presence.Dialer, tokens TokenSource, mirror Mirror, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		dialer:   dialer,
		tokens:   tokens,
		mirror:   mirror,
		logger:   logger,
		backoff:  ReconnectDelay,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the account's session with purpose added, connecting a
// new one when none exists. A failed connect registers nothing.
func (r *Registry) Acquire(ctx context.Context, accountID, purpose string) (*Session, error) {
	return lock.WithLock(ctx, r.locks.Get(accountID), func(ctx context.Context) (*Session, error) {
		if s, ok := r.Get(accountID); ok {
			s.addPurpose(purpose)
			return s, nil
		}

		s := newSession(r, accountID)
		if err := s.connect(ctx, true); err != nil {
			s.discard()
			return nil, perrors.Wrap(perrors.KindTransport, "stream.acquire", "connecting stream for "+accountID, err)
		}
		s.addPurpose(purpose)

		r.mu.Lock()
		r.sessions[accountID] = s
		r.mu.Unlock()
		r.logger.Info("stream session for %s established (%s)", accountID, purpose)

		if r.mirror != nil {
			if err := r.mirror.Refresh(ctx, accountID); err != nil {
				r.logger.Warn("initial mirror refresh for %s failed: %v", accountID, err)
			}
		}
		return s, nil
	})
}

// Get returns the live session of accountID.
func (r *Registry) Get(accountID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[accountID]
	return s, ok
}

// List returns the account ids with a live session.
func (r *Registry) List() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Disconnect tears down accountID's session whatever purposes hold it.
func (r *Registry) Disconnect(ctx context.Context, accountID string) error {
	release, err := r.locks.Get(accountID).Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if s, ok := r.Get(accountID); ok {
		s.teardown(nil)
	}
	return nil
}

// Close tears down every session.
func (r *Registry) Close(ctx context.Context) error {
	for _, id := range r.List() {
		if err := r.Disconnect(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) forget(s *Session) {
	r.mu.Lock()
	if r.sessions[s.accountID] == s {
		delete(r.sessions, s.accountID)
	}
	r.mu.Unlock()
	if r.mirror != nil {
		r.mirror.Forget(s.accountID)
	}
}
