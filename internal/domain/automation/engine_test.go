package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/domain/rewards"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/transport/presence"
)

type fakeSession struct {
	bus *eventbus.Bus

	mu       sync.Mutex
	removed  []string
	statuses []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{bus: eventbus.NewSessionBus()}
}

func (s *fakeSession) Bus() *eventbus.Bus { return s.bus }

func (s *fakeSession) RemovePurpose(purpose string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, purpose)
}

func (s *fakeSession) SetStatus(_ context.Context, text, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, text+"/"+mode)
	return nil
}

func (s *fakeSession) ResetStatus(ctx context.Context) error {
	return s.SetStatus(ctx, "", "online")
}

func (s *fakeSession) removedPurposes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

func (s *fakeSession) sentStatuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

type fakeStreams struct {
	mu           sync.Mutex
	sessions     map[string]*fakeSession
	err          error
	acquired     []string
	disconnected []string
}

func (f *fakeStreams) Acquire(_ context.Context, accountID, purpose string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, accountID+":"+purpose)
	if f.sessions == nil {
		f.sessions = make(map[string]*fakeSession)
	}
	sess, ok := f.sessions[accountID]
	if !ok {
		sess = newFakeSession()
		f.sessions[accountID] = sess
	}
	return sess, nil
}

func (f *fakeStreams) Disconnect(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, accountID)
	return nil
}

func (f *fakeStreams) session(accountID string) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[accountID]
}

// scriptedMatchmaking answers each poll with the next scripted value; a nil
// entry means no tracked session. Once exhausted it reports no session.
type scriptedMatchmaking struct {
	mu     sync.Mutex
	script []*bool
	calls  int
}

func started(v bool) *bool { return &v }

func (s *scriptedMatchmaking) FindPlayer(context.Context, string, string) (*epic.MatchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.script) == 0 {
		return nil, nil
	}
	next := s.script[0]
	s.script = s.script[1:]
	if next == nil {
		return nil, nil
	}
	return &epic.MatchSession{SessionID: "s1", Started: *next}, nil
}

func (s *scriptedMatchmaking) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type mockParties struct {
	mock.Mock
}

func (m *mockParties) Get(ctx context.Context, accountID string) (*epic.Party, error) {
	args := m.Called(ctx, accountID)
	party, _ := args.Get(0).(*epic.Party)
	return party, args.Error(1)
}

func (m *mockParties) Kick(ctx context.Context, accountID, partyID, memberID string) error {
	return m.Called(ctx, accountID, partyID, memberID).Error(0)
}

func (m *mockParties) Leave(ctx context.Context, accountID, partyID string) error {
	return m.Called(ctx, accountID, partyID).Error(0)
}

func (m *mockParties) Invite(ctx context.Context, accountID, partyID, friendID string) error {
	return m.Called(ctx, accountID, partyID, friendID).Error(0)
}

type fakeFriends struct {
	friends []epic.Friend
}

func (f fakeFriends) List(context.Context, string) ([]epic.Friend, error) {
	return f.friends, nil
}

type fakeRewards struct {
	claims    atomic.Int32
	transfers atomic.Int32
}

func (f *fakeRewards) Claim(context.Context, string, time.Duration) (*rewards.ClaimReport, error) {
	f.claims.Add(1)
	return &rewards.ClaimReport{}, nil
}

func (f *fakeRewards) TransferMaterials(context.Context, string, time.Duration) (*rewards.TransferReport, error) {
	f.transfers.Add(1)
	return &rewards.TransferReport{}, nil
}

type fakeAccounts map[string]account.Account

func (f fakeAccounts) Get(id string) (account.Account, bool) {
	acc, ok := f[id]
	return acc, ok
}

func (f fakeAccounts) Has(id string) bool {
	_, ok := f[id]
	return ok
}

type fakeMirror struct {
	mu    sync.Mutex
	party *epic.Party
}

func (f *fakeMirror) Party(string) *epic.Party {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.party.Clone()
}

func (f *fakeMirror) set(p *epic.Party) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.party = p
}

type memorySettings struct {
	mu   sync.Mutex
	data map[string]Settings
}

func newMemorySettings() *memorySettings {
	return &memorySettings{data: make(map[string]Settings)}
}

func (m *memorySettings) Save(_ context.Context, id string, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = s
	return nil
}

func (m *memorySettings) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *memorySettings) List(context.Context) (map[string]Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Settings, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *memorySettings) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[id]
	return ok
}

type harness struct {
	engine      *Engine
	streams     *fakeStreams
	matchmaking *scriptedMatchmaking
	parties     *mockParties
	rewards     *fakeRewards
	mirror      *fakeMirror
	settings    *memorySettings
	accounts    fakeAccounts
	logs        *recordingLogger
}

// recordingLogger keeps every line rendered the way the console handler
// renders format-style calls.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(msg, args...))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record(msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record(msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record(msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record(msg, args...) }

func (l *recordingLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func newHarness(t *testing.T, ids ...string) *harness {
	t.Helper()
	accounts := fakeAccounts{}
	for _, id := range ids {
		accounts[id] = account.Account{AccountID: id, DisplayName: "name-" + id}
	}
	h := &harness{
		streams:     &fakeStreams{},
		matchmaking: &scriptedMatchmaking{},
		parties:     &mockParties{},
		rewards:     &fakeRewards{},
		mirror:      &fakeMirror{},
		settings:    newMemorySettings(),
		accounts:    accounts,
		logs:        &recordingLogger{},
	}
	engine, err := NewEngine(Options{
		Logger:      h.logs,
		Accounts:    accounts,
		Streams:     h.streams,
		Matchmaking: h.matchmaking,
		Parties:     h.parties,
		Friends:     fakeFriends{},
		Rewards:     h.rewards,
		Mirror:      h.mirror,
		Settings:    h.settings,
		Timings: Timings{
			PostMatchDelay:    5 * time.Millisecond,
			RejoinRearmDelay:  5 * time.Millisecond,
			RejoinTimeout:     200 * time.Millisecond,
			InviteSettleDelay: time.Millisecond,
			PresenceAvailable: "free",
			PresenceBusy:      "busy",
		},
	})
	require.NoError(t, err)
	h.engine = engine
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return h
}

func fastSettings() Settings {
	return Settings{AutoClaim: true, MissionCheckInterval: 0.005}
}

func TestMissionStateSequence(t *testing.T) {
	h := newHarness(t, "a")
	h.matchmaking.script = []*bool{started(false), started(false), started(true), started(true), started(false), nil}
	m := newMachine(h.engine, h.accounts["a"], fastSettings())
	defer m.stop()

	var states []State
	for i := 0; i < 6; i++ {
		state, err := m.checkMissionState()
		require.NoError(t, err)
		states = append(states, state)
	}
	assert.Equal(t, []State{StatePregame, StatePregame, StateMission, StateMission, StateEndgame, StateLobby}, states)
}

func TestPollRunsPostMissionOnce(t *testing.T) {
	h := newHarness(t, "a")
	h.matchmaking.script = []*bool{started(false), started(false), started(true), started(true), started(false)}
	h.parties.On("Get", mock.Anything, "a").Return(nil, errors.New("no party"))

	require.NoError(t, h.engine.Start(context.Background(), "a", fastSettings()))

	assert.Eventually(t, func() bool { return h.rewards.claims.Load() == 1 }, time.Second, 5*time.Millisecond)
	// The endgame reset stops the checker.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, h.matchmaking.callCount())
	assert.Equal(t, int32(1), h.rewards.claims.Load())

	snap, ok := h.engine.Status("a")
	require.True(t, ok)
	assert.Equal(t, StateLobby, snap.State)
	assert.NotNil(t, snap.LastKick)
}

func TestRemovedFromMatchRunsPostMission(t *testing.T) {
	h := newHarness(t, "a")
	h.matchmaking.script = []*bool{started(true), started(true), nil}
	h.parties.On("Get", mock.Anything, "a").Return(nil, errors.New("no party"))

	require.NoError(t, h.engine.Start(context.Background(), "a", fastSettings()))

	assert.Eventually(t, func() bool { return h.rewards.claims.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestKickByHeldCaptain(t *testing.T) {
	h := newHarness(t, "a", "cap", "k")
	h.engine.mu.Lock()
	h.engine.machines["k"] = newMachine(h.engine, h.accounts["k"], Settings{AutoKick: true})
	h.engine.mu.Unlock()

	party := &epic.Party{ID: "p1", Members: []epic.PartyMember{
		{AccountID: "cap", Role: epic.RoleCaptain},
		{AccountID: "a", Role: epic.RoleMember},
		{AccountID: "k", Role: epic.RoleMember},
		{AccountID: "x", Role: epic.RoleMember},
	}}
	h.parties.On("Kick", mock.Anything, "cap", "p1", "x").Return(nil).Once()
	h.parties.On("Leave", mock.Anything, "a", "p1").Return(nil).Once()

	m := newMachine(h.engine, h.accounts["a"], Settings{AutoKick: true})
	defer m.stop()
	require.NoError(t, m.kick(context.Background(), party))

	h.parties.AssertExpectations(t)
	h.parties.AssertNotCalled(t, "Kick", mock.Anything, "cap", "p1", "k")
	h.parties.AssertNotCalled(t, "Kick", mock.Anything, "cap", "p1", "cap")
}

func TestKickWithoutHeldCaptainLeaves(t *testing.T) {
	h := newHarness(t, "a", "b")
	party := &epic.Party{ID: "p1", Members: []epic.PartyMember{
		{AccountID: "z", Role: epic.RoleCaptain},
		{AccountID: "a", Role: epic.RoleMember},
		{AccountID: "b", Role: epic.RoleMember},
		{AccountID: "y", Role: epic.RoleMember},
	}}
	h.parties.On("Leave", mock.Anything, "a", "p1").Return(nil).Once()
	h.parties.On("Leave", mock.Anything, "b", "p1").Return(errors.New("gone")).Once()

	m := newMachine(h.engine, h.accounts["a"], Settings{AutoKick: true})
	defer m.stop()
	err := m.kick(context.Background(), party)

	assert.EqualError(t, err, "gone")
	h.parties.AssertExpectations(t)
	h.parties.AssertNotCalled(t, "Kick", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMissionKicksTransfersAndInvites(t *testing.T) {
	h := newHarness(t, "a")
	h.engine.friends = fakeFriends{friends: []epic.Friend{{AccountID: "x"}, {AccountID: "stranger"}}}
	party := &epic.Party{ID: "p1", Members: []epic.PartyMember{
		{AccountID: "a", Role: epic.RoleCaptain},
		{AccountID: "x", Role: epic.RoleMember},
	}}
	h.parties.On("Get", mock.Anything, "a").Return(party, nil).Once()
	h.parties.On("Kick", mock.Anything, "a", "p1", "x").Return(nil).Once()
	h.parties.On("Leave", mock.Anything, "a", "p1").Return(nil).Once()
	h.parties.On("Get", mock.Anything, "a").Return(&epic.Party{ID: "p2"}, nil).Once()
	invited := make(chan string, 1)
	h.parties.On("Invite", mock.Anything, "a", "p2", "x").Return(nil).Once().
		Run(func(args mock.Arguments) { invited <- args.String(3) })

	settings := Settings{AutoKick: true, AutoInvite: true, AutoTransfer: true, MissionCheckInterval: 1}
	require.NoError(t, h.engine.Start(context.Background(), "a", settings))
	m, ok := h.engine.machine("a")
	require.True(t, ok)

	m.enqueue(m.postMission)
	assert.Eventually(t, func() bool { return h.rewards.transfers.Load() == 1 }, time.Second, 5*time.Millisecond)

	h.streams.session("a").Bus().Publish(eventbus.EventMemberJoined, eventbus.MemberEvent{AccountID: "a", PartyID: "p2"})
	select {
	case id := <-invited:
		assert.Equal(t, "x", id)
	case <-time.After(time.Second):
		t.Fatal("previous member was not re-invited")
	}
	h.parties.AssertExpectations(t)
	assert.Equal(t, int32(0), h.rewards.claims.Load())
}

func TestStartAndStopReleasePurpose(t *testing.T) {
	h := newHarness(t, "a")
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, "a", fastSettings()))
	assert.Equal(t, []string{"a:" + stream.PurposeAutomation}, h.streams.acquired)
	assert.True(t, h.settings.has("a"))

	snap, ok := h.engine.Status("a")
	require.True(t, ok)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Len(t, h.engine.List(), 1)

	require.NoError(t, h.engine.Stop(ctx, "a"))
	assert.Equal(t, []string{stream.PurposeAutomation}, h.streams.session("a").removedPurposes())
	assert.False(t, h.settings.has("a"))
	assert.ErrorIs(t, h.engine.Stop(ctx, "a"), ErrNotRunning)
	assert.Empty(t, h.engine.List())
}

func TestStartUpdatesRunningSettings(t *testing.T) {
	h := newHarness(t, "a")
	ctx := context.Background()
	require.NoError(t, h.engine.Start(ctx, "a", fastSettings()))

	updated := fastSettings()
	updated.AutoTransfer = true
	require.NoError(t, h.engine.Start(ctx, "a", updated))

	snap, _ := h.engine.Status("a")
	assert.True(t, snap.Settings.AutoTransfer)
	assert.Len(t, h.streams.acquired, 1)
}

func TestStartFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid credentials", &epic.APIError{ErrorCode: epic.ErrCodeInvalidCredentials}, StatusInvalidCredentials},
		{"transport", errors.New("dial refused"), StatusDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "a")
			h.streams.err = tt.err

			err := h.engine.Start(context.Background(), "a", fastSettings())
			require.Error(t, err)

			snap, ok := h.engine.Status("a")
			require.True(t, ok)
			assert.Equal(t, tt.want, snap.Status)

			// A retry replaces the dead machine.
			h.streams.mu.Lock()
			h.streams.err = nil
			h.streams.mu.Unlock()
			require.NoError(t, h.engine.Start(context.Background(), "a", fastSettings()))
			snap, _ = h.engine.Status("a")
			assert.Equal(t, StatusActive, snap.Status)
		})
	}
}

func TestStartUnknownAccount(t *testing.T) {
	h := newHarness(t)
	err := h.engine.Start(context.Background(), "ghost", fastSettings())
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestRestorePrunesStaleSettings(t *testing.T) {
	h := newHarness(t, "a", "b")
	ctx := context.Background()
	require.NoError(t, h.settings.Save(ctx, "a", fastSettings()))
	require.NoError(t, h.settings.Save(ctx, "b", Settings{MissionCheckInterval: 5}))
	require.NoError(t, h.settings.Save(ctx, "gone", fastSettings()))

	require.NoError(t, h.engine.Restore(ctx))

	_, running := h.engine.Status("a")
	assert.True(t, running)
	_, running = h.engine.Status("b")
	assert.False(t, running)
	assert.True(t, h.settings.has("a"))
	assert.False(t, h.settings.has("b"))
	assert.False(t, h.settings.has("gone"))
}

func TestAccountRemovalStopsAutomation(t *testing.T) {
	h := newHarness(t, "a")
	bus := eventbus.NewAppBus()
	h.engine.Watch(bus)
	require.NoError(t, h.engine.Start(context.Background(), "a", fastSettings()))

	bus.Publish(eventbus.EventAccountRemoved, eventbus.AccountEvent{AccountID: "a"})

	_, running := h.engine.Status("a")
	assert.False(t, running)
	assert.Equal(t, []string{"a"}, h.streams.disconnected)
}

func TestDisconnectSetsStatus(t *testing.T) {
	h := newHarness(t, "a")
	require.NoError(t, h.engine.Start(context.Background(), "a", fastSettings()))

	h.streams.session("a").Bus().Publish(eventbus.EventDisconnected, eventbus.SessionEvent{AccountID: "a", Terminal: true})

	assert.Eventually(t, func() bool {
		snap, _ := h.engine.Status("a")
		return snap.Status == StatusDisconnected
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceFlipsIdempotently(t *testing.T) {
	h := newHarness(t, "a")
	h.mirror.set(&epic.Party{ID: "p1", Members: []epic.PartyMember{{AccountID: "a"}, {AccountID: "x"}}})

	settings := fastSettings()
	settings.ManagePresence = true
	require.NoError(t, h.engine.Start(context.Background(), "a", settings))
	sess := h.streams.session("a")

	assert.Eventually(t, func() bool { return len(sess.sentStatuses()) == 1 }, time.Second, 5*time.Millisecond)
	sess.Bus().Publish(eventbus.EventMemberJoined, eventbus.MemberEvent{AccountID: "y", PartyID: "p1"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"busy/away"}, sess.sentStatuses())

	h.mirror.set(&epic.Party{ID: "p1", Members: []epic.PartyMember{{AccountID: "a"}}})
	sess.Bus().Publish(eventbus.EventMemberLeft, eventbus.MemberEvent{AccountID: "x", PartyID: "p1"})
	assert.Eventually(t, func() bool { return len(sess.sentStatuses()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "free/online", sess.sentStatuses()[1])

	require.NoError(t, h.engine.Stop(context.Background(), "a"))
	assert.Equal(t, "/online", sess.sentStatuses()[2])
}

func TestMachineLogsUseFormatArgs(t *testing.T) {
	h := newHarness(t, "a")
	h.mirror.set(&epic.Party{ID: "p1", Members: []epic.PartyMember{{AccountID: "a"}, {AccountID: "x"}}})

	settings := fastSettings()
	settings.ManagePresence = true
	require.NoError(t, h.engine.Start(context.Background(), "a", settings))
	sess := h.streams.session("a")
	assert.Eventually(t, func() bool { return len(sess.sentStatuses()) == 1 }, time.Second, 5*time.Millisecond)

	sess.Bus().Publish(eventbus.EventPartyUpdated, eventbus.PartyUpdated{
		PartyID:           "p1",
		PartyStateUpdated: map[string]string{epic.MetaPartyState: epic.PartyStatePostGame},
	})
	require.NoError(t, h.engine.Stop(context.Background(), "a"))

	lines := h.logs.snapshot()
	require.NotEmpty(t, lines)
	var flipped bool
	for _, line := range lines {
		assert.NotContains(t, line, "%!", "unformatted log line %q", line)
		if strings.Contains(line, "presence flipped to busy") {
			flipped = true
		}
	}
	assert.True(t, flipped, "missing presence log in %v", lines)
}

// slowDialer establishes every session after delay.
type slowDialer struct {
	delay time.Duration
	dials atomic.Int32
}

func (d *slowDialer) Dial(_ context.Context, _ presence.Options, h presence.Handlers) (presence.Conn, error) {
	d.dials.Add(1)
	time.AfterFunc(d.delay, h.SessionStarted)
	return &slowConn{h: h}, nil
}

type slowConn struct {
	h      presence.Handlers
	closed atomic.Bool
}

func (c *slowConn) SendPresence(context.Context, presence.Presence) error { return nil }

func (c *slowConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		go c.h.Disconnected(presence.ErrClosed)
	}
	return nil
}

type staticTokens struct{}

func (staticTokens) Token(context.Context, string, bool) (string, error) { return "tok", nil }

func TestConcurrentStartsKeepSharedSession(t *testing.T) {
	h := newHarness(t, "a")
	dialer := &slowDialer{delay: 100 * time.Millisecond}
	registry := stream.NewRegistry(stream.Config{}, dialer, staticTokens{}, nil, nil)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	h.engine.streams = StreamsFrom(registry)

	ctx := context.Background()
	errs := make(chan error, 2)
	go func() { errs <- h.engine.Start(ctx, "a", fastSettings()) }()
	time.Sleep(20 * time.Millisecond)
	go func() { errs <- h.engine.Start(ctx, "a", fastSettings()) }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	// Give a stray release the chance to tear the session down.
	time.Sleep(50 * time.Millisecond)

	sess, ok := registry.Get("a")
	require.True(t, ok, "session was torn down")
	assert.Equal(t, []string{stream.PurposeAutomation}, sess.Purposes())
	assert.Equal(t, int32(1), dialer.dials.Load())

	snap, ok := h.engine.Status("a")
	require.True(t, ok)
	assert.Equal(t, StatusActive, snap.Status)

	require.NoError(t, h.engine.Stop(ctx, "a"))
	assert.Eventually(t, func() bool {
		_, live := registry.Get("a")
		return !live
	}, time.Second, 5*time.Millisecond)
}

func TestStopWaitsForInFlightStart(t *testing.T) {
	h := newHarness(t, "a")
	dialer := &slowDialer{delay: 50 * time.Millisecond}
	registry := stream.NewRegistry(stream.Config{}, dialer, staticTokens{}, nil, nil)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	h.engine.streams = StreamsFrom(registry)

	ctx := context.Background()
	startErr := make(chan error, 1)
	go func() { startErr <- h.engine.Start(ctx, "a", fastSettings()) }()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, h.engine.Stop(ctx, "a"))
	require.NoError(t, <-startErr)

	_, running := h.engine.Status("a")
	assert.False(t, running)
	assert.Eventually(t, func() bool {
		_, live := registry.Get("a")
		return !live
	}, time.Second, 5*time.Millisecond)
}
