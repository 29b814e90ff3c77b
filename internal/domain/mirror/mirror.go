// Package mirror keeps a local, eventually consistent copy of the party and
// friends state of every held account. Snapshots come from REST; stream
// events patch them in place.
package mirror

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"partybot-server-go/internal/domain/epic"
	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
)

// PartyFetcher reads an account's current party; nil means no party.
type PartyFetcher interface {
	Get(ctx context.Context, accountID string) (*epic.Party, error)
}

// FriendsFetcher reads an account's friends summary.
type FriendsFetcher interface {
	Summary(ctx context.Context, accountID string) (*epic.FriendsSummary, error)
}

// Holder reports whether an account is held by this process.
type Holder interface {
	Has(accountID string) bool
}

// Mirror is safe for concurrent use. One event application is atomic with
// respect to readers.
type Mirror struct {
	parties PartyFetcher
	friends FriendsFetcher
	holder  Holder
	logger  logging.Logger

	mu           sync.RWMutex
	partyByAcc   map[string]*epic.Party
	friendsByAcc map[string]*Friends
}

// New builds an empty mirror. holder decides which accounts are held locally.
func New(parties PartyFetcher, friends FriendsFetcher, holder Holder, logger logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Mirror{
		parties:      parties,
		friends:      friends,
		holder:       holder,
		logger:       logger,
		partyByAcc:   make(map[string]*epic.Party),
		friendsByAcc: make(map[string]*Friends),
	}
}

// Refresh replaces both mirrors of accountID from REST.
func (m *Mirror) Refresh(ctx context.Context, accountID string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := m.RefreshParty(ctx, accountID)
		return err
	})
	g.Go(func() error {
		return m.RefreshFriends(ctx, accountID)
	})
	return g.Wait()
}

// RefreshParty replaces the party mirror of accountID and returns a copy of it.
func (m *Mirror) RefreshParty(ctx context.Context, accountID string) (*epic.Party, error) {
	party, err := m.parties.Get(ctx, accountID)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindTransport, "mirror.refresh_party", "failed to fetch party of "+accountID, err)
	}
	m.SetParty(accountID, party)
	return party.Clone(), nil
}

// RefreshFriends replaces the friends mirror of accountID.
func (m *Mirror) RefreshFriends(ctx context.Context, accountID string) error {
	summary, err := m.friends.Summary(ctx, accountID)
	if err != nil {
		return perrors.Wrap(perrors.KindTransport, "mirror.refresh_friends", "failed to fetch friends of "+accountID, err)
	}
	f := friendsFromSummary(summary)

	m.mu.Lock()
	m.friendsByAcc[accountID] = f
	m.mu.Unlock()
	return nil
}

// SetParty stores a copy of party for accountID; nil drops the mirror.
func (m *Mirror) SetParty(accountID string, party *epic.Party) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if party == nil {
		delete(m.partyByAcc, accountID)
		return
	}
	m.partyByAcc[accountID] = party.Clone()
}

// Forget drops everything mirrored for accountID.
func (m *Mirror) Forget(accountID string) {
	m.mu.Lock()
	delete(m.partyByAcc, accountID)
	delete(m.friendsByAcc, accountID)
	m.mu.Unlock()
}

// Party returns a copy of accountID's party, or nil.
func (m *Mirror) Party(accountID string) *epic.Party {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.partyByAcc[accountID].Clone()
}

// Friends returns a copy of accountID's friends mirror, or nil.
func (m *Mirror) Friends(accountID string) *Friends {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.friendsByAcc[accountID].Clone()
}

// IsFriend reports whether otherID is a confirmed friend of accountID.
func (m *Mirror) IsFriend(accountID, otherID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.friendsByAcc[accountID]
	if !ok {
		return false
	}
	_, ok = f.Friends[otherID]
	return ok
}

// PartyAccounts lists the held accounts whose mirror holds partyID.
func (m *Mirror) PartyAccounts(partyID string) []string {
	m.mu.RLock()
	var out []string
	for accountID, party := range m.partyByAcc {
		if party.ID == partyID {
			out = append(out, accountID)
		}
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// matching returns the mirrors holding partyID. Callers hold m.mu.
func (m *Mirror) matching(partyID string) []*epic.Party {
	var out []*epic.Party
	for _, party := range m.partyByAcc {
		if party.ID == partyID {
			out = append(out, party)
		}
	}
	return out
}
