package taxi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/domain/stream"
)

const jid = "a@prod.ol.epicgames.com/V2:Fortnite:WIN::ABC"

type fakeSession struct {
	bus *eventbus.Bus

	mu       sync.Mutex
	removed  []string
	statuses []string
}

func (s *fakeSession) Bus() *eventbus.Bus { return s.bus }
func (s *fakeSession) JID() string        { return jid }

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

func (s *fakeSession) sentStatuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

func (s *fakeSession) removedPurposes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

type fakeStreams struct {
	sess     *fakeSession
	err      error
	acquired atomic.Int32
}

func (f *fakeStreams) Acquire(_ context.Context, accountID, purpose string) (Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if accountID != "a" || purpose != stream.PurposeTaxi {
		return nil, errors.New("unexpected acquire " + accountID + ":" + purpose)
	}
	f.acquired.Add(1)
	return f.sess, nil
}

type fakeMirror struct {
	mu        sync.Mutex
	party     *epic.Party
	refreshes int
}

func (m *fakeMirror) Party(string) *epic.Party {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.party
}

func (m *fakeMirror) RefreshParty(context.Context, string) (*epic.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return m.party, nil
}

func (m *fakeMirror) set(party *epic.Party) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.party = party
}

// fakeParties records calls and keeps the mirror in step with joins and
// leaves.
type fakeParties struct {
	mirror  *fakeMirror
	inviter []epic.InviterParty

	mu      sync.Mutex
	calls   []string
	joins   []epic.JoinRequest
	patches []map[string]string
	revs    []int
}

func (p *fakeParties) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakeParties) Leave(_ context.Context, accountID, partyID string) error {
	p.record("leave " + partyID)
	p.mirror.set(nil)
	return nil
}

func (p *fakeParties) PatchSelf(_ context.Context, _ string, partyID string, revision int, update map[string]string, _ []string) error {
	p.record("patch " + partyID)
	p.mu.Lock()
	p.patches = append(p.patches, update)
	p.revs = append(p.revs, revision)
	p.mu.Unlock()
	return nil
}

func (p *fakeParties) InviterParties(_ context.Context, _, senderID string) ([]epic.InviterParty, error) {
	p.record("inviter " + senderID)
	return p.inviter, nil
}

func (p *fakeParties) AcceptInvite(_ context.Context, partyID, senderID string, req epic.JoinRequest) error {
	p.record("join " + partyID)
	p.mu.Lock()
	p.joins = append(p.joins, req)
	p.mu.Unlock()
	p.mirror.set(&epic.Party{ID: partyID, Members: []epic.PartyMember{
		{AccountID: senderID, Role: epic.RoleCaptain},
		{AccountID: req.AccountID, Role: epic.RoleMember, Revision: 1},
	}})
	return nil
}

func (p *fakeParties) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeFriends struct {
	mu       sync.Mutex
	added    []string
	accepted int
}

func (f *fakeFriends) Add(_ context.Context, _, friendID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, friendID)
	return nil
}

func (f *fakeFriends) AcceptIncoming(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted++
	return []string{"x"}, nil
}

func (f *fakeFriends) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...), f.accepted
}

type fakeAccounts map[string]account.Account

func (f fakeAccounts) Get(id string) (account.Account, bool) {
	acc, ok := f[id]
	return acc, ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.TaxiStatusEvent
}

func (p *recordingPublisher) Publish(topic string, payload any) {
	if ev, ok := payload.(eventbus.TaxiStatusEvent); ok && topic == eventbus.EventTaxiStatus {
		p.mu.Lock()
		p.events = append(p.events, ev)
		p.mu.Unlock()
	}
}

func (p *recordingPublisher) last() (eventbus.TaxiStatusEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return eventbus.TaxiStatusEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

type harness struct {
	manager *Manager
	sess    *fakeSession
	streams *fakeStreams
	mirror  *fakeMirror
	parties *fakeParties
	friends *fakeFriends
	events  *recordingPublisher
}

func newHarness(t *testing.T, partyTimeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		sess:    &fakeSession{bus: eventbus.NewSessionBus()},
		mirror:  &fakeMirror{},
		friends: &fakeFriends{},
		events:  &recordingPublisher{},
	}
	h.streams = &fakeStreams{sess: h.sess}
	h.parties = &fakeParties{mirror: h.mirror, inviter: []epic.InviterParty{{ID: "p1"}}}

	m, err := NewManager(Options{
		Accounts:     fakeAccounts{"a": {AccountID: "a", DisplayName: "Driver"}},
		Streams:      h.streams,
		Parties:      h.parties,
		Friends:      h.friends,
		Mirror:       h.mirror,
		Events:       h.events,
		PartyTimeout: partyTimeout,
	})
	require.NoError(t, err)
	h.manager = m
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return h
}

func (h *harness) start(t *testing.T, settings Settings) {
	t.Helper()
	require.NoError(t, h.manager.Start(context.Background(), "a", settings))
	require.Eventually(t, func() bool {
		return len(h.sess.sentStatuses()) > 0
	}, time.Second, 5*time.Millisecond)
}

func (h *harness) lastStatus() string {
	statuses := h.sess.sentStatuses()
	if len(statuses) == 0 {
		return ""
	}
	return statuses[len(statuses)-1]
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	_, err := NewManager(Options{})
	require.Error(t, err)
}

func TestStartAnnouncesAvailability(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{AutoAcceptFriendRequests: true})

	assert.Equal(t, []string{"Taxi available/online"}, h.sess.sentStatuses())
	assert.Equal(t, int32(1), h.streams.acquired.Load())
	assert.Eventually(t, func() bool {
		_, accepted := h.friends.snapshot()
		return accepted == 1
	}, time.Second, 5*time.Millisecond)

	snap, ok := h.manager.Status("a")
	require.True(t, ok)
	assert.True(t, snap.Available)
	assert.Equal(t, 145, snap.Settings.Level)
	ev, ok := h.events.last()
	require.True(t, ok)
	assert.Equal(t, eventbus.TaxiStatusEvent{AccountID: "a", Active: true, Available: true}, ev)
}

func TestStartUnknownAccount(t *testing.T) {
	h := newHarness(t, time.Minute)
	err := h.manager.Start(context.Background(), "ghost", Settings{})
	require.ErrorIs(t, err, account.ErrNotFound)
	assert.Equal(t, int32(0), h.streams.acquired.Load())
}

func TestStartRejectsInvalidLevel(t *testing.T) {
	h := newHarness(t, time.Minute)
	err := h.manager.Start(context.Background(), "a", Settings{Level: maxLevel + 1})
	require.Error(t, err)
	_, running := h.manager.Status("a")
	assert.False(t, running)
}

func TestStartFailsWhenStreamDoes(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.streams.err = stream.ErrConnectTimeout
	err := h.manager.Start(context.Background(), "a", Settings{})
	require.ErrorIs(t, err, stream.ErrConnectTimeout)
	assert.Empty(t, h.manager.List())
}

func TestRestartUpdatesSettingsOnSameStream(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{})

	require.NoError(t, h.manager.Start(context.Background(), "a", Settings{AvailableStatus: "Carry me"}))
	assert.Eventually(t, func() bool {
		return h.lastStatus() == "Carry me/online"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), h.streams.acquired.Load())
}

func TestPingJoinsInviterPartyAfterLeavingSoloParty(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.mirror.set(&epic.Party{ID: "solo", Members: []epic.PartyMember{{AccountID: "a"}}})
	h.start(t, Settings{})

	h.sess.bus.Publish(eventbus.EventPartyPing, eventbus.PartyPing{PingerID: "rider"})

	require.Eventually(t, func() bool {
		return h.lastStatus() == "Taxi busy/away"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"leave solo", "inviter rider", "join p1"}, h.parties.recorded())

	h.parties.mu.Lock()
	join := h.parties.joins[0]
	h.parties.mu.Unlock()
	assert.Equal(t, "a", join.AccountID)
	assert.Equal(t, "Driver", join.DisplayName)
	assert.Equal(t, jid, join.ConnectionID)
	assert.Equal(t, "145.00000", join.Meta[MetaCommanderRating])

	snap, _ := h.manager.Status("a")
	assert.False(t, snap.Available)
	assert.Equal(t, "p1", snap.PartyID)
}

func TestPartyTimeoutLeavesAndFreesTaxi(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond)
	h.start(t, Settings{})

	h.sess.bus.Publish(eventbus.EventPartyPing, eventbus.PartyPing{PingerID: "rider"})

	require.Eventually(t, func() bool {
		calls := h.parties.recorded()
		return len(calls) > 0 && calls[len(calls)-1] == "leave p1"
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return h.lastStatus() == "Taxi available/online"
	}, time.Second, 5*time.Millisecond)
}

func TestSelfJoinAdvertisesPowerLevel(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{Level: 130, FORT: 96})

	h.sess.bus.Publish(eventbus.EventMemberJoined, eventbus.MemberEvent{PartyID: "p9", AccountID: "a", Revision: 7})

	require.Eventually(t, func() bool {
		h.parties.mu.Lock()
		defer h.parties.mu.Unlock()
		return len(h.parties.patches) == 1
	}, time.Second, 5*time.Millisecond)

	h.parties.mu.Lock()
	patch, rev := h.parties.patches[0], h.parties.revs[0]
	h.parties.mu.Unlock()
	assert.Equal(t, 7, rev)
	assert.Equal(t, "130.00000", patch[MetaBackpackRating])
	assert.Contains(t, patch[MetaFORTStats], `"fortitude":96`)
	assert.Contains(t, patch[MetaFORTStats], `"teamTech_Phoenix":96`)
}

func TestOtherMemberJoiningMarksTaxiBusy(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{})

	h.mirror.set(&epic.Party{ID: "p1", Members: []epic.PartyMember{{AccountID: "a"}, {AccountID: "rider"}}})
	h.sess.bus.Publish(eventbus.EventMemberJoined, eventbus.MemberEvent{PartyID: "p1", AccountID: "rider"})
	require.Eventually(t, func() bool {
		return h.lastStatus() == "Taxi busy/away"
	}, time.Second, 5*time.Millisecond)

	h.mirror.set(&epic.Party{ID: "p1", Members: []epic.PartyMember{{AccountID: "a"}}})
	h.sess.bus.Publish(eventbus.EventMemberLeft, eventbus.MemberEvent{PartyID: "p1", AccountID: "rider"})
	assert.Eventually(t, func() bool {
		return h.lastStatus() == "Taxi available/online"
	}, time.Second, 5*time.Millisecond)
}

func TestPromotionToCaptainLeaves(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{})

	h.sess.bus.Publish(eventbus.EventMemberNewCaptain, eventbus.MemberEvent{PartyID: "p1", AccountID: "someone"})
	h.sess.bus.Publish(eventbus.EventMemberNewCaptain, eventbus.MemberEvent{PartyID: "p1", AccountID: "a"})

	assert.Eventually(t, func() bool {
		calls := h.parties.recorded()
		return len(calls) == 1 && calls[0] == "leave p1"
	}, time.Second, 5*time.Millisecond)
}

func TestLobbyStateLeavesParty(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{})

	h.sess.bus.Publish(eventbus.EventMemberStateUpdated, eventbus.MemberStateUpdated{
		PartyID:   "p1",
		AccountID: "rider",
		MemberStateUpdated: map[string]string{
			metaPackedState: `{"PackedState":{"location":"Lobby","bIsPartyLFG":True}}`,
		},
	})

	assert.Eventually(t, func() bool {
		calls := h.parties.recorded()
		return len(calls) == 1 && calls[0] == "leave p1"
	}, time.Second, 5*time.Millisecond)
}

func TestFriendRequestsFollowSetting(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{})

	h.sess.bus.Publish(eventbus.EventFriendshipRequest, eventbus.FriendshipRequest{From: "stranger", To: "a", Status: eventbus.FriendshipPending})
	time.Sleep(30 * time.Millisecond)
	added, _ := h.friends.snapshot()
	assert.Empty(t, added)

	require.NoError(t, h.manager.Start(context.Background(), "a", Settings{AutoAcceptFriendRequests: true}))
	h.sess.bus.Publish(eventbus.EventFriendshipRequest, eventbus.FriendshipRequest{From: "stranger", To: "a", Status: eventbus.FriendshipPending})
	h.sess.bus.Publish(eventbus.EventFriendshipRequest, eventbus.FriendshipRequest{From: "stranger", To: "a", Status: eventbus.FriendshipAccepted})

	assert.Eventually(t, func() bool {
		added, accepted := h.friends.snapshot()
		return len(added) == 1 && added[0] == "stranger" && accepted == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopReleasesPurpose(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{})

	require.NoError(t, h.manager.Stop(context.Background(), "a"))
	assert.Equal(t, []string{stream.PurposeTaxi}, h.sess.removedPurposes())
	assert.Equal(t, "/online", h.lastStatus())
	assert.ErrorIs(t, h.manager.Stop(context.Background(), "a"), ErrNotRunning)

	ev, ok := h.events.last()
	require.True(t, ok)
	assert.False(t, ev.Active)
}

func TestTerminalDisconnectStopsTaxi(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.start(t, Settings{})

	h.sess.bus.Publish(eventbus.EventDisconnected, eventbus.SessionEvent{AccountID: "a", Attempts: 3})
	time.Sleep(20 * time.Millisecond)
	_, running := h.manager.Status("a")
	require.True(t, running)

	h.sess.bus.Publish(eventbus.EventDisconnected, eventbus.SessionEvent{AccountID: "a", Terminal: true, Attempts: 50})
	assert.Eventually(t, func() bool {
		_, running := h.manager.Status("a")
		return !running
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.sess.removedPurposes())
}

func TestWatchStopsRemovedAccounts(t *testing.T) {
	h := newHarness(t, time.Minute)
	bus := eventbus.NewAppBus()
	t.Cleanup(bus.Close)
	h.manager.Watch(bus)
	h.start(t, Settings{})

	bus.Publish(eventbus.EventAccountRemoved, eventbus.AccountEvent{AccountID: "a"})
	assert.Eventually(t, func() bool {
		return len(h.manager.List()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemberMetaOmitsFORTWhenUnset(t *testing.T) {
	meta, err := DefaultSettings().memberMeta()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		MetaCommanderRating: "145.00000",
		MetaBackpackRating:  "145.00000",
	}, meta)
}
