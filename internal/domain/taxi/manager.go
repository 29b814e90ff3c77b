// Package taxi runs accounts as public carries: a taxi accepts every party
// invite, advertises a configured power level, flips its status between
// available and busy and leaves parties that outstay the timeout.
package taxi

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/platform/config"
	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/util/lock"
)

// ErrNotRunning is returned for accounts that are not running as a taxi.
var ErrNotRunning = errors.New("taxi not running for account")

// DefaultPartyTimeout is how long a taxi stays in an accepted party.
const DefaultPartyTimeout = 3 * time.Minute

// Session is the slice of a stream session a taxi drives.
type Session interface {
	Bus() *eventbus.Bus
	JID() string
	RemovePurpose(purpose string)
	SetStatus(ctx context.Context, text, mode string) error
	ResetStatus(ctx context.Context) error
}

// Streams hands out stream sessions.
type Streams interface {
	Acquire(ctx context.Context, accountID, purpose string) (Session, error)
}

type registryStreams struct {
	r *stream.Registry
}

// StreamsFrom adapts a stream registry.
func StreamsFrom(r *stream.Registry) Streams {
	return registryStreams{r: r}
}

func (s registryStreams) Acquire(ctx context.Context, accountID, purpose string) (Session, error) {
	sess, err := s.r.Acquire(ctx, accountID, purpose)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Parties performs the party calls of a taxi.
type Parties interface {
	Leave(ctx context.Context, accountID, partyID string) error
	PatchSelf(ctx context.Context, accountID, partyID string, revision int, update map[string]string, deleted []string) error
	InviterParties(ctx context.Context, accountID, senderID string) ([]epic.InviterParty, error)
	AcceptInvite(ctx context.Context, partyID, senderID string, req epic.JoinRequest) error
}

// Friends accepts friend requests.
type Friends interface {
	Add(ctx context.Context, accountID, friendID string) error
	AcceptIncoming(ctx context.Context, accountID string) ([]string, error)
}

// Accounts resolves registered accounts.
type Accounts interface {
	Get(accountID string) (account.Account, bool)
}

// PartyView reads and refreshes the mirrored party of an account.
type PartyView interface {
	Party(accountID string) *epic.Party
	RefreshParty(ctx context.Context, accountID string) (*epic.Party, error)
}

// Options encapsulates the dependencies of a Manager.
type Options struct {
	Accounts Accounts
	Streams  Streams
	Parties  Parties
	Friends  Friends
	Mirror   PartyView
	Events   eventbus.Publisher
	Logger   logging.Logger

	// Defaults fill the fields a Start request leaves empty.
	Defaults     Settings
	PartyTimeout time.Duration
}

// OptionsFrom maps the taxi section of the application config.
func OptionsFrom(cfg config.TaxiConfig) Options {
	return Options{
		Defaults:     SettingsFrom(cfg),
		PartyTimeout: cfg.PartyTimeout,
	}
}

// Snapshot is the externally visible state of one taxi.
type Snapshot struct {
	AccountID   string   `json:"accountId"`
	DisplayName string   `json:"displayName"`
	Available   bool     `json:"available"`
	PartyID     string   `json:"partyId,omitempty"`
	Settings    Settings `json:"settings"`
}

// Manager owns one cab per taxi account.
type Manager struct {
	accounts     Accounts
	streams      Streams
	parties      Parties
	friends      Friends
	mirror       PartyView
	events       eventbus.Publisher
	logger       logging.Logger
	defaults     Settings
	partyTimeout time.Duration

	lifecycle lock.KeyedMutex

	mu      sync.Mutex
	cabs    map[string]*cab
	unwatch func()
}

func NewManager(opts Options) (*Manager, error) {
	switch {
	case opts.Accounts == nil:
		return nil, errors.New("taxi manager requires an account directory")
	case opts.Streams == nil:
		return nil, errors.New("taxi manager requires a stream registry")
	case opts.Parties == nil, opts.Friends == nil, opts.Mirror == nil:
		return nil, errors.New("taxi manager requires its party, friends and mirror collaborators")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Defaults == (Settings{}) {
		opts.Defaults = DefaultSettings()
	}
	if opts.PartyTimeout <= 0 {
		opts.PartyTimeout = DefaultPartyTimeout
	}
	return &Manager{
		accounts:     opts.Accounts,
		streams:      opts.Streams,
		parties:      opts.Parties,
		friends:      opts.Friends,
		mirror:       opts.Mirror,
		events:       opts.Events,
		logger:       opts.Logger,
		defaults:     opts.Defaults,
		partyTimeout: opts.PartyTimeout,
		cabs:         make(map[string]*cab),
	}, nil
}

// Watch stops the taxi of accounts removed from the registry.
func (m *Manager) Watch(bus *eventbus.Bus) {
	unsubscribe := eventbus.On(bus, eventbus.EventAccountRemoved, func(ev eventbus.AccountEvent) {
		if err := m.Stop(context.Background(), ev.AccountID); err != nil && !errors.Is(err, ErrNotRunning) {
			m.logger.Warn("stopping taxi of removed account %s: %v", ev.AccountID, err)
		}
	})
	m.mu.Lock()
	m.unwatch = unsubscribe
	m.mu.Unlock()
}

// Start runs accountID as a taxi. Starting a running taxi replaces its
// settings.
func (m *Manager) Start(ctx context.Context, accountID string, settings Settings) error {
	acc, ok := m.accounts.Get(accountID)
	if !ok {
		return perrors.Wrap(perrors.KindDomain, "taxi.start", "unknown account "+accountID, account.ErrNotFound)
	}
	settings, err := settings.merged(m.defaults)
	if err != nil {
		return err
	}

	release, err := m.lifecycle.Get(accountID).Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if c, running := m.cab(accountID); running {
		c.enqueue(func() { c.updateSettings(settings) })
		return nil
	}

	sess, err := m.streams.Acquire(ctx, accountID, stream.PurposeTaxi)
	if err != nil {
		m.logger.Error("taxi for %s could not connect: %v", accountID, err)
		return err
	}
	c := newCab(m, acc, settings, sess)
	m.mu.Lock()
	m.cabs[accountID] = c
	m.mu.Unlock()

	c.enqueue(c.onStarted)
	m.logger.Info("taxi started for %s (%s)", acc.DisplayName, accountID)
	return nil
}

// Stop takes accountID off taxi duty and releases its stream purpose.
func (m *Manager) Stop(ctx context.Context, accountID string) error {
	release, err := m.lifecycle.Get(accountID).Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	c, ok := m.cabs[accountID]
	delete(m.cabs, accountID)
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	c.stop()
	m.logger.Info("taxi stopped for %s", accountID)
	return nil
}

// Status returns the snapshot of one taxi.
func (m *Manager) Status(accountID string) (Snapshot, bool) {
	c, ok := m.cab(accountID)
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshot(), true
}

// List returns every taxi ordered by account id.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	cabs := make([]*cab, 0, len(m.cabs))
	for _, c := range m.cabs {
		cabs = append(cabs, c)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(cabs))
	for _, c := range cabs {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Close stops every taxi.
func (m *Manager) Close(context.Context) error {
	m.mu.Lock()
	cabs := m.cabs
	m.cabs = make(map[string]*cab)
	unwatch := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	for _, c := range cabs {
		c.stop()
	}
	return nil
}

func (m *Manager) cab(accountID string) (*cab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cabs[accountID]
	return c, ok
}

// forget drops c if it is still the registered cab of its account.
func (m *Manager) forget(c *cab) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cabs[c.acc.AccountID] == c {
		delete(m.cabs, c.acc.AccountID)
	}
}

func (m *Manager) publish(topic string, payload any) {
	if m.events != nil {
		m.events.Publish(topic, payload)
	}
}
