package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/platform/logging"
)

// State is the position of an account in the match cycle.
type State string

const (
	StateLobby   State = "lobby"
	StatePregame State = "pregame"
	StateMission State = "mission"
	StateEndgame State = "endgame"
)

const (
	StatusLoading            = "LOADING"
	StatusActive             = "ACTIVE"
	StatusInvalidCredentials = "INVALID_CREDENTIALS"
	StatusDisconnected       = "DISCONNECTED"
)

type presenceMode string

const (
	presenceAvailable presenceMode = "available"
	presenceBusy      presenceMode = "busy"
)

var errStopped = errors.New("automation stopped")

// Snapshot is the externally visible state of one automation.
type Snapshot struct {
	AccountID   string     `json:"accountId"`
	DisplayName string     `json:"displayName"`
	Status      string     `json:"status"`
	State       State      `json:"state"`
	Settings    Settings   `json:"settings"`
	LastKick    *time.Time `json:"lastKick,omitempty"`
	Presence    string     `json:"presence,omitempty"`
}

// machine is the automation of one account. Every transition runs on its task
// loop so stream handlers only enqueue and never block the read goroutine.
type machine struct {
	e      *Engine
	acc    account.Account
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan func()

	mu              sync.Mutex
	settings        Settings
	status          string
	state           State
	previousStarted bool
	lastKick        time.Time
	presence        presenceMode
	session         Session
	unsubscribe     []func()
	delayTimer      *time.Timer
	stopChecker     context.CancelFunc
}

func newMachine(e *Engine, acc account.Account, settings Settings) *machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &machine{
		e:        e,
		acc:      acc,
		logger:   logging.Tagged(e.logger, "automation "+acc.AccountID),
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(chan func(), 128),
		settings: settings,
		status:   StatusLoading,
		state:    StateLobby,
	}
	e.publish(eventbus.EventAutomationStatus, eventbus.AutomationStatusEvent{AccountID: acc.AccountID, Status: StatusLoading})
	go m.loop()
	return m
}

func (m *machine) loop() {
	for {
		select {
		case fn := <-m.tasks:
			fn()
		case <-m.ctx.Done():
			return
		}
	}
}

// enqueue schedules fn on the task loop. Tasks queued after stop are dropped.
func (m *machine) enqueue(fn func()) {
	select {
	case m.tasks <- fn:
	case <-m.ctx.Done():
	}
}

// connect acquires the automation purpose and subscribes to the session.
func (m *machine) connect(ctx context.Context) error {
	sess, err := m.e.streams.Acquire(ctx, m.acc.AccountID, stream.PurposeAutomation)
	if err != nil {
		return err
	}
	if m.ctx.Err() != nil {
		sess.RemovePurpose(stream.PurposeAutomation)
		return errStopped
	}

	self := m.acc.AccountID
	bus := sess.Bus()
	unsubscribe := []func(){
		eventbus.On(bus, eventbus.EventSessionStarted, func(eventbus.SessionEvent) {
			m.enqueue(m.onSessionStarted)
		}),
		eventbus.On(bus, eventbus.EventDisconnected, func(ev eventbus.SessionEvent) {
			m.enqueue(func() { m.onDisconnected(ev) })
		}),
		eventbus.On(bus, eventbus.EventMemberDisconnected, func(ev eventbus.MemberEvent) {
			if ev.AccountID == self {
				m.enqueue(m.resetState)
			}
		}),
		eventbus.On(bus, eventbus.EventMemberExpired, func(ev eventbus.MemberEvent) {
			if ev.AccountID == self {
				m.enqueue(m.resetState)
			}
			m.enqueue(m.syncPresence)
		}),
		eventbus.On(bus, eventbus.EventMemberJoined, func(ev eventbus.MemberEvent) {
			if ev.AccountID == self {
				m.enqueue(m.onSelfJoined)
			}
			m.enqueue(m.syncPresence)
		}),
		eventbus.On(bus, eventbus.EventMemberLeft, func(eventbus.MemberEvent) {
			m.enqueue(m.syncPresence)
		}),
		eventbus.On(bus, eventbus.EventMemberKicked, func(eventbus.MemberEvent) {
			m.enqueue(m.syncPresence)
		}),
		eventbus.On(bus, eventbus.EventPartyUpdated, func(ev eventbus.PartyUpdated) {
			if ev.PartyStateUpdated[epic.MetaPartyState] == epic.PartyStatePostGame {
				m.enqueue(func() {
					m.logger.Debug("post-matchmaking detected, scheduling checker in %v", m.e.timings.PostMatchDelay)
					m.scheduleChecker(m.e.timings.PostMatchDelay)
				})
			}
		}),
	}

	m.mu.Lock()
	m.session = sess
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.setStatus(StatusActive)
	// The session was already up before the handlers existed.
	m.enqueue(m.onSessionStarted)
	m.enqueue(m.syncPresence)
	return nil
}

// stop cancels timers, unsubscribes and releases the automation purpose.
func (m *machine) stop() {
	m.cancel()
	m.resetState()

	m.mu.Lock()
	sess := m.session
	unsubscribe := m.unsubscribe
	presence := m.presence
	m.session = nil
	m.unsubscribe = nil
	m.presence = ""
	m.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	if sess == nil {
		return
	}
	if presence != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sess.ResetStatus(ctx); err != nil {
			m.logger.Warn("resetting presence failed: %v", err)
		}
		cancel()
	}
	sess.RemovePurpose(stream.PurposeAutomation)
}

func (m *machine) onSessionStarted() {
	m.setStatus(StatusActive)

	state, err := m.checkMissionState()
	if err != nil {
		m.logger.Warn("initial mission check failed: %v", err)
		return
	}
	m.setState(state)

	switch state {
	case StatePregame:
		m.scheduleChecker(m.e.timings.PostMatchDelay)
	case StateMission:
		m.startChecker()
	case StateEndgame:
		m.resetState()
		m.postMission()
	}
}

func (m *machine) onDisconnected(ev eventbus.SessionEvent) {
	m.setStatus(StatusDisconnected)
	m.resetState()
	if ev.Terminal {
		m.mu.Lock()
		m.session = nil
		m.unsubscribe = nil
		m.presence = ""
		m.mu.Unlock()
		m.logger.Warn("stream gave up after %d attempts, automation left disconnected", ev.Attempts)
	}
}

// onSelfJoined re-arms the checker unless the join is the lobby party the
// game creates right after our own kick.
func (m *machine) onSelfJoined() {
	m.setStatus(StatusActive)

	m.mu.Lock()
	recentKick := !m.lastKick.IsZero() && time.Since(m.lastKick) <= m.e.timings.RejoinRearmDelay
	m.mu.Unlock()
	if recentKick {
		return
	}
	m.logger.Debug("scheduling mission checker in %v after party join", m.e.timings.RejoinRearmDelay)
	m.scheduleChecker(m.e.timings.RejoinRearmDelay)
}

// checkMissionState polls matchmaking for the account's own session.
func (m *machine) checkMissionState() (State, error) {
	session, err := m.e.matchmaking.FindPlayer(m.ctx, m.acc.AccountID, m.acc.AccountID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session == nil {
		m.previousStarted = false
		return StateLobby, nil
	}

	var state State
	switch {
	case m.previousStarted && !session.Started:
		state = StateEndgame
	case session.Started:
		state = StateMission
	default:
		// Starting while already in endgame reads as pregame; left as is.
		state = StatePregame
	}
	m.previousStarted = session.Started
	return state, nil
}

// poll is one checker tick.
func (m *machine) poll(checker context.Context) {
	if checker.Err() != nil {
		return
	}
	state, err := m.checkMissionState()
	if err != nil {
		m.logger.Warn("mission check failed: %v", err)
		return
	}
	previous := m.setState(state)
	m.logger.Debug("mission state polled: %s", state)

	switch state {
	case StateEndgame:
		m.resetState()
		m.postMission()
	case StateLobby:
		m.resetState()
		// Removed from a running match.
		if previous == StateMission {
			m.postMission()
		}
	}
}

// scheduleChecker starts the checker after delay, replacing any pending one.
func (m *machine) scheduleChecker(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	if m.delayTimer != nil {
		m.delayTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.enqueue(func() {
			m.mu.Lock()
			current := m.delayTimer == timer
			m.mu.Unlock()
			if current {
				m.startChecker()
			}
		})
	})
	m.delayTimer = timer
}

// startChecker polls every interval until reset.
func (m *machine) startChecker() {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	if m.stopChecker != nil {
		m.stopChecker()
	}
	checker, cancel := context.WithCancel(m.ctx)
	m.stopChecker = cancel
	interval := m.settings.pollInterval()
	m.mu.Unlock()

	m.logger.Debug("starting mission checker every %v", interval)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.enqueue(func() { m.poll(checker) })
			case <-checker.Done():
				return
			}
		}
	}()
}

// resetState returns to lobby and cancels the checker and any pending timer.
func (m *machine) resetState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateLobby
	m.previousStarted = false
	if m.stopChecker != nil {
		m.stopChecker()
		m.stopChecker = nil
	}
	if m.delayTimer != nil {
		m.delayTimer.Stop()
		m.delayTimer = nil
	}
}

func (m *machine) setState(state State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.state
	m.state = state
	return previous
}

func (m *machine) setStatus(status string) {
	m.mu.Lock()
	changed := m.status != status
	m.status = status
	m.mu.Unlock()
	if changed {
		m.e.publish(eventbus.EventAutomationStatus, eventbus.AutomationStatusEvent{AccountID: m.acc.AccountID, Status: status})
	}
}

func (m *machine) updateSettings(settings Settings) {
	m.mu.Lock()
	before := m.settings
	m.settings = settings
	restart := m.stopChecker != nil && before.MissionCheckInterval != settings.MissionCheckInterval
	m.mu.Unlock()

	if restart {
		m.enqueue(m.startChecker)
	}
	if before.ManagePresence != settings.ManagePresence {
		m.enqueue(m.syncPresence)
	}
}

func (m *machine) currentSettings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *machine) currentSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *machine) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		AccountID:   m.acc.AccountID,
		DisplayName: m.acc.DisplayName,
		Status:      m.status,
		State:       m.state,
		Settings:    m.settings,
		Presence:    string(m.presence),
	}
	if !m.lastKick.IsZero() {
		lastKick := m.lastKick
		s.LastKick = &lastKick
	}
	return s
}
