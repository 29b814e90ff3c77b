// Package automation runs the per-account post-match state machine: it polls
// matchmaking, reacts to party events and fires the configured side effects
// (kick, reward claim, material transfer, re-invite) when a mission ends.
package automation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/domain/rewards"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/platform/config"
	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/util/lock"
	"partybot-server-go/internal/util/work"
)

// ErrNotRunning is returned for accounts without an automation.
var ErrNotRunning = errors.New("automation not running for account")

// Session is the slice of a stream session the engine drives.
type Session interface {
	Bus() *eventbus.Bus
	RemovePurpose(purpose string)
	SetStatus(ctx context.Context, text, mode string) error
	ResetStatus(ctx context.Context) error
}

// Streams hands out stream sessions.
type Streams interface {
	Acquire(ctx context.Context, accountID, purpose string) (Session, error)
	Disconnect(ctx context.Context, accountID string) error
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

func (s registryStreams) Disconnect(ctx context.Context, accountID string) error {
	return s.r.Disconnect(ctx, accountID)
}

// Matchmaking looks up the match session of a player.
type Matchmaking interface {
	FindPlayer(ctx context.Context, accountID, targetID string) (*epic.MatchSession, error)
}

// Parties performs the party calls of the post-mission actions.
type Parties interface {
	Get(ctx context.Context, accountID string) (*epic.Party, error)
	Kick(ctx context.Context, accountID, partyID, memberID string) error
	Leave(ctx context.Context, accountID, partyID string) error
	Invite(ctx context.Context, accountID, partyID, friendID string) error
}

// Friends lists the friends eligible for a re-invite.
type Friends interface {
	List(ctx context.Context, accountID string) ([]epic.Friend, error)
}

// Rewards claims rewards and moves materials after a mission.
type Rewards interface {
	Claim(ctx context.Context, accountID string, delay time.Duration) (*rewards.ClaimReport, error)
	TransferMaterials(ctx context.Context, accountID string, delay time.Duration) (*rewards.TransferReport, error)
}

// Accounts resolves registered accounts.
type Accounts interface {
	Get(accountID string) (account.Account, bool)
	Has(accountID string) bool
}

// PartyView reads the mirrored party of an account.
type PartyView interface {
	Party(accountID string) *epic.Party
}

// Timings are the engine-wide delays.
type Timings struct {
	PostMatchDelay    time.Duration
	RejoinRearmDelay  time.Duration
	RejoinTimeout     time.Duration
	InviteSettleDelay time.Duration
	PresenceAvailable string
	PresenceBusy      string
}

// DefaultTimings returns the production delays.
func DefaultTimings() Timings {
	return Timings{
		PostMatchDelay:    60 * time.Second,
		RejoinRearmDelay:  20 * time.Second,
		RejoinTimeout:     20 * time.Second,
		InviteSettleDelay: 10 * time.Second,
		PresenceAvailable: "Available",
		PresenceBusy:      "Busy",
	}
}

// TimingsFrom overlays the configured delays on DefaultTimings.
func TimingsFrom(cfg config.AutomationConfig) Timings {
	t := DefaultTimings()
	if cfg.PostMatchDelay > 0 {
		t.PostMatchDelay = cfg.PostMatchDelay
	}
	if cfg.RejoinRearmDelay > 0 {
		t.RejoinRearmDelay = cfg.RejoinRearmDelay
	}
	if cfg.RejoinTimeout > 0 {
		t.RejoinTimeout = cfg.RejoinTimeout
	}
	if cfg.InviteSettleDelay > 0 {
		t.InviteSettleDelay = cfg.InviteSettleDelay
	}
	if cfg.PresenceAvailable != "" {
		t.PresenceAvailable = cfg.PresenceAvailable
	}
	if cfg.PresenceBusy != "" {
		t.PresenceBusy = cfg.PresenceBusy
	}
	return t
}

// Options encapsulates the dependencies required to construct an Engine.
type Options struct {
	Accounts    Accounts
	Streams     Streams
	Matchmaking Matchmaking
	Parties     Parties
	Friends     Friends
	Rewards     Rewards
	Mirror      PartyView
	Events      eventbus.Publisher
	Logger      logging.Logger
	Timings     Timings

	// Settings is optional; without it settings are not persisted.
	Settings SettingsRepository

	// Workers sizes the side-effect pool.
	Workers int
}

// Engine owns one machine per automated account.
type Engine struct {
	accounts    Accounts
	streams     Streams
	matchmaking Matchmaking
	parties     Parties
	friends     Friends
	rewards     Rewards
	mirror      PartyView
	settings    SettingsRepository
	events      eventbus.Publisher
	logger      logging.Logger
	timings     Timings

	queue *work.Queue[sideEffect]
	wg    sync.WaitGroup

	// lifecycle serializes Start and Stop per account.
	lifecycle lock.KeyedMutex

	mu       sync.Mutex
	machines map[string]*machine
	unwatch  func()
}

// NewEngine validates opts and starts the side-effect pool.
func NewEngine(opts Options) (*Engine, error) {
	switch {
	case opts.Accounts == nil:
		return nil, errors.New("automation engine requires an account directory")
	case opts.Streams == nil:
		return nil, errors.New("automation engine requires a stream registry")
	case opts.Matchmaking == nil, opts.Parties == nil, opts.Friends == nil, opts.Rewards == nil:
		return nil, errors.New("automation engine requires its REST collaborators")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	e := &Engine{
		accounts:    opts.Accounts,
		streams:     opts.Streams,
		matchmaking: opts.Matchmaking,
		parties:     opts.Parties,
		friends:     opts.Friends,
		rewards:     opts.Rewards,
		mirror:      opts.Mirror,
		settings:    opts.Settings,
		events:      opts.Events,
		logger:      opts.Logger,
		timings:     opts.Timings,
		machines:    make(map[string]*machine),
	}
	e.queue = work.NewQueue[sideEffect](opts.Workers, e.runSideEffect,
		work.WithRetryIf[sideEffect](epic.Temporary),
		work.WithResult[sideEffect](e.sideEffectDone))
	return e, nil
}

// Watch stops automation and drops the stream of accounts removed from the
// registry.
func (e *Engine) Watch(bus *eventbus.Bus) {
	unsubscribe := eventbus.On(bus, eventbus.EventAccountRemoved, func(ev eventbus.AccountEvent) {
		ctx := context.Background()
		if err := e.Stop(ctx, ev.AccountID); err != nil && !errors.Is(err, ErrNotRunning) {
			e.logger.Warn("stopping automation of removed account %s: %v", ev.AccountID, err)
		}
		if err := e.streams.Disconnect(ctx, ev.AccountID); err != nil {
			e.logger.Warn("disconnecting removed account %s: %v", ev.AccountID, err)
		}
	})
	e.mu.Lock()
	e.unwatch = unsubscribe
	e.mu.Unlock()
}

// Start automates accountID. Starting a running account updates its settings.
// Concurrent Starts and Stops of one account run one after another.
func (e *Engine) Start(ctx context.Context, accountID string, settings Settings) error {
	acc, ok := e.accounts.Get(accountID)
	if !ok {
		return perrors.Wrap(perrors.KindDomain, "automation.start", "unknown account "+accountID, account.ErrNotFound)
	}
	settings = settings.normalized()

	release, err := e.lifecycle.Get(accountID).Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	e.mu.Lock()
	previous, running := e.machines[accountID]
	if running && previous.currentSession() != nil {
		e.mu.Unlock()
		return e.UpdateSettings(ctx, accountID, settings)
	}
	m := newMachine(e, acc, settings)
	e.machines[accountID] = m
	e.mu.Unlock()

	// A machine without a session failed to connect or gave up; replace it.
	if running {
		previous.stop()
	}

	if err := e.persist(ctx, accountID, settings); err != nil {
		e.logger.Warn("persisting automation settings for %s failed: %v", accountID, err)
	}

	if err := m.connect(ctx); err != nil {
		if isCredentialError(err) {
			m.setStatus(StatusInvalidCredentials)
		} else {
			m.setStatus(StatusDisconnected)
		}
		e.logger.Error("automation for %s could not connect: %v", accountID, err)
		return err
	}
	e.logger.Info("automation started for %s (%s)", acc.DisplayName, accountID)
	return nil
}

// Stop ends the automation of accountID and forgets its settings.
func (e *Engine) Stop(ctx context.Context, accountID string) error {
	release, err := e.lifecycle.Get(accountID).Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	e.mu.Lock()
	m, ok := e.machines[accountID]
	delete(e.machines, accountID)
	e.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	m.stop()
	if e.settings != nil {
		if err := e.settings.Delete(ctx, accountID); err != nil {
			return perrors.Wrap(perrors.KindStorage, "automation.stop", "deleting settings of "+accountID, err)
		}
	}
	e.logger.Info("automation stopped for %s", accountID)
	return nil
}

// UpdateSettings replaces the settings of a running automation.
func (e *Engine) UpdateSettings(ctx context.Context, accountID string, settings Settings) error {
	m, ok := e.machine(accountID)
	if !ok {
		return ErrNotRunning
	}
	settings = settings.normalized()
	m.updateSettings(settings)
	return e.persist(ctx, accountID, settings)
}

// Status returns the snapshot of one automation.
func (e *Engine) Status(accountID string) (Snapshot, bool) {
	m, ok := e.machine(accountID)
	if !ok {
		return Snapshot{}, false
	}
	return m.snapshot(), true
}

// List returns every automation ordered by account id.
func (e *Engine) List() []Snapshot {
	e.mu.Lock()
	machines := make([]*machine, 0, len(e.machines))
	for _, m := range e.machines {
		machines = append(machines, m)
	}
	e.mu.Unlock()

	out := make([]Snapshot, 0, len(machines))
	for _, m := range machines {
		out = append(out, m.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Restore starts every persisted automation. Entries without an enabled
// setting or without a registered account are pruned.
func (e *Engine) Restore(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	saved, err := e.settings.List(ctx)
	if err != nil {
		return perrors.Wrap(perrors.KindStorage, "automation.restore", "listing settings", err)
	}

	var g errgroup.Group
	for accountID, settings := range saved {
		if !settings.Enabled() || !e.accounts.Has(accountID) {
			e.logger.Info("pruning stale automation settings for %s", accountID)
			if err := e.settings.Delete(ctx, accountID); err != nil {
				e.logger.Warn("pruning settings of %s failed: %v", accountID, err)
			}
			continue
		}
		g.Go(func() error {
			if err := e.Start(ctx, accountID, settings); err != nil {
				e.logger.Warn("restoring automation for %s failed: %v", accountID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close stops every machine without touching persisted settings and drains
// the side-effect pool.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	machines := e.machines
	e.machines = make(map[string]*machine)
	unwatch := e.unwatch
	e.unwatch = nil
	e.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	for _, m := range machines {
		m.stop()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return e.queue.Stop(ctx)
}

func (e *Engine) machine(accountID string) (*machine, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.machines[accountID]
	return m, ok
}

// autoKickEnabled reports whether accountID runs an automation with auto-kick on.
func (e *Engine) autoKickEnabled(accountID string) bool {
	m, ok := e.machine(accountID)
	if !ok {
		return false
	}
	return m.currentSettings().AutoKick
}

func (e *Engine) persist(ctx context.Context, accountID string, settings Settings) error {
	if e.settings == nil {
		return nil
	}
	return e.settings.Save(ctx, accountID, settings)
}

func (e *Engine) publish(topic string, payload any) {
	if e.events != nil {
		e.events.Publish(topic, payload)
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, account.ErrNotFound) ||
		epic.IsErrorCode(err, epic.ErrCodeInvalidCredentials, epic.ErrCodeCorrectiveAction, epic.ErrCodeAccountNotFound)
}
