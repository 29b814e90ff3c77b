package taxi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"partybot-server-go/internal/domain/account"
	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/domain/stream"
	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/platform/observability"
)

const metaPackedState = "Default:PackedState_j"

// Taxi actions, as recorded in taxi_action_total.
const (
	ActionAcceptInvite = "accept_invite"
	ActionAdvertise    = "advertise"
	ActionLeave        = "leave"
	ActionAcceptFriend = "accept_friend"
)

// cab is the taxi of one account. Stream handlers only enqueue; every
// reaction runs on the task loop.
type cab struct {
	m      *Manager
	acc    account.Account
	logger logging.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	tasks    chan func()
	stopOnce sync.Once

	mu          sync.Mutex
	settings    Settings
	sess        Session
	available   bool
	statusSent  bool
	partyTimer  *time.Timer
	unsubscribe []func()
}

func newCab(m *Manager, acc account.Account, settings Settings, sess Session) *cab {
	ctx, cancel := context.WithCancel(context.Background())
	c := &cab{
		m:        m,
		acc:      acc,
		logger:   logging.Tagged(m.logger, "taxi "+acc.AccountID),
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(chan func(), 64),
		settings: settings,
		sess:     sess,
	}
	c.subscribe(sess.Bus())
	go c.loop()
	return c
}

func (c *cab) loop() {
	for {
		select {
		case fn := <-c.tasks:
			fn()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *cab) enqueue(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.ctx.Done():
	}
}

func (c *cab) subscribe(bus *eventbus.Bus) {
	self := c.acc.AccountID
	syncAvailability := func(eventbus.MemberEvent) { c.enqueue(c.syncAvailability) }

	unsubscribe := []func(){
		eventbus.On(bus, eventbus.EventPartyPing, func(ev eventbus.PartyPing) {
			c.enqueue(func() { c.onPing(ev.PingerID) })
		}),
		eventbus.On(bus, eventbus.EventFriendshipRequest, func(ev eventbus.FriendshipRequest) {
			if ev.Status == eventbus.FriendshipPending && ev.From != self {
				c.enqueue(func() { c.onFriendRequest(ev.From) })
			}
		}),
		eventbus.On(bus, eventbus.EventMemberNewCaptain, func(ev eventbus.MemberEvent) {
			if ev.AccountID == self {
				c.enqueue(func() { c.onPromoted(ev.PartyID) })
			}
		}),
		eventbus.On(bus, eventbus.EventMemberJoined, func(ev eventbus.MemberEvent) {
			if ev.AccountID == self {
				c.enqueue(func() { c.advertise(ev.PartyID, int(ev.Revision)) })
				return
			}
			c.enqueue(c.syncAvailability)
		}),
		eventbus.On(bus, eventbus.EventMemberLeft, syncAvailability),
		eventbus.On(bus, eventbus.EventMemberKicked, syncAvailability),
		eventbus.On(bus, eventbus.EventMemberStateUpdated, func(ev eventbus.MemberStateUpdated) {
			c.enqueue(func() { c.onMemberState(ev) })
		}),
		eventbus.On(bus, eventbus.EventPartyUpdated, func(eventbus.PartyUpdated) {
			c.enqueue(c.syncAvailability)
		}),
		eventbus.On(bus, eventbus.EventDisconnected, func(ev eventbus.SessionEvent) {
			if ev.Terminal {
				c.enqueue(c.onGone)
			}
		}),
	}

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

// stop cancels the party timer, clears the status and releases the taxi
// purpose. It runs once.
func (c *cab) stop() {
	c.stopOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		if c.partyTimer != nil {
			c.partyTimer.Stop()
			c.partyTimer = nil
		}
		sess := c.sess
		unsubscribe := c.unsubscribe
		c.sess = nil
		c.unsubscribe = nil
		c.mu.Unlock()

		for _, fn := range unsubscribe {
			fn()
		}
		if sess != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := sess.ResetStatus(ctx); err != nil && !errors.Is(err, stream.ErrNotEstablished) {
				c.logger.Warn("resetting status failed: %v", err)
			}
			cancel()
			sess.RemovePurpose(stream.PurposeTaxi)
		}
		c.m.publish(eventbus.EventTaxiStatus, eventbus.TaxiStatusEvent{AccountID: c.acc.AccountID})
	})
}

func (c *cab) onStarted() {
	c.setAvailable(true)
	if _, err := c.m.mirror.RefreshParty(c.ctx, c.acc.AccountID); err != nil {
		c.logger.Warn("initial party refresh failed: %v", err)
	}
	c.acceptPendingFriends()
}

// onGone takes the cab off duty after the stream gave up.
func (c *cab) onGone() {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
	c.m.forget(c)
	c.stop()
	c.logger.Warn("stream gave up, taxi stopped")
}

// onPing joins the inviter's party, leaving a solo party first.
func (c *cab) onPing(pingerID string) {
	self := c.acc.AccountID
	c.logger.Debug("accepting party invite from %s", pingerID)

	if current := c.m.mirror.Party(self); current != nil && len(current.Members) == 1 {
		c.leave(current.ID)
	}

	err := c.run(ActionAcceptInvite, func(ctx context.Context) error {
		parties, err := c.m.parties.InviterParties(ctx, self, pingerID)
		if err != nil {
			return err
		}
		if len(parties) == 0 {
			return errors.New("no party behind ping from " + pingerID)
		}
		meta, err := c.currentSettings().memberMeta()
		if err != nil {
			return err
		}
		return c.m.parties.AcceptInvite(ctx, parties[0].ID, pingerID, epic.JoinRequest{
			AccountID:    self,
			DisplayName:  c.acc.DisplayName,
			ConnectionID: c.jid(),
			Meta:         meta,
		})
	})
	if err != nil {
		return
	}

	if _, err := c.m.mirror.RefreshParty(c.ctx, self); err != nil {
		c.logger.Warn("party refresh after join failed: %v", err)
	}
	c.setAvailable(false)
	c.armPartyTimer()
}

// armPartyTimer leaves the current party once the timeout passes.
func (c *cab) armPartyTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return
	}
	if c.partyTimer != nil {
		c.partyTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.m.partyTimeout, func() {
		c.enqueue(func() {
			c.mu.Lock()
			current := c.partyTimer == timer
			if current {
				c.partyTimer = nil
			}
			c.mu.Unlock()
			if current {
				c.onPartyTimeout()
			}
		})
	})
	c.partyTimer = timer
}

func (c *cab) onPartyTimeout() {
	party := c.m.mirror.Party(c.acc.AccountID)
	if party == nil {
		return
	}
	c.logger.Info("party %s timed out, leaving", party.ID)
	if c.leave(party.ID) == nil {
		c.setAvailable(true)
	}
}

func (c *cab) cancelPartyTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.partyTimer != nil {
		c.partyTimer.Stop()
		c.partyTimer = nil
	}
}

// advertise writes the configured power level into the own member meta.
func (c *cab) advertise(partyID string, revision int) {
	_ = c.run(ActionAdvertise, func(ctx context.Context) error {
		meta, err := c.currentSettings().memberMeta()
		if err != nil {
			return err
		}
		return c.m.parties.PatchSelf(ctx, c.acc.AccountID, partyID, revision, meta, nil)
	})
}

// onMemberState leaves once a member reports being back in the lobby.
func (c *cab) onMemberState(ev eventbus.MemberStateUpdated) {
	if raw := ev.MemberStateUpdated[metaPackedState]; raw != "" {
		location := gjson.Get(strings.ReplaceAll(raw, "True", "true"), "PackedState.location").String()
		if location == "Lobby" {
			c.leave(ev.PartyID)
			return
		}
	}
	c.syncAvailability()
}

func (c *cab) onPromoted(partyID string) {
	c.logger.Debug("made captain of %s, leaving", partyID)
	c.leave(partyID)
}

func (c *cab) onFriendRequest(from string) {
	if !c.currentSettings().AutoAcceptFriendRequests {
		return
	}
	_ = c.run(ActionAcceptFriend, func(ctx context.Context) error {
		return c.m.friends.Add(ctx, c.acc.AccountID, from)
	})
}

func (c *cab) acceptPendingFriends() {
	if !c.currentSettings().AutoAcceptFriendRequests {
		return
	}
	_ = c.run(ActionAcceptFriend, func(ctx context.Context) error {
		accepted, err := c.m.friends.AcceptIncoming(ctx, c.acc.AccountID)
		if len(accepted) > 0 {
			c.logger.Info("accepted %d pending friend request(s)", len(accepted))
		}
		return err
	})
}

func (c *cab) leave(partyID string) error {
	return c.run(ActionLeave, func(ctx context.Context) error {
		return c.m.parties.Leave(ctx, c.acc.AccountID, partyID)
	})
}

// syncAvailability is busy while the mirrored party has other members.
func (c *cab) syncAvailability() {
	party := c.m.mirror.Party(c.acc.AccountID)
	if party != nil && len(party.Members) > 1 {
		c.setAvailable(false)
		return
	}
	c.setAvailable(true)
	c.cancelPartyTimer()
}

// setAvailable broadcasts the matching status when availability changes.
// A failed write leaves the state as is so the next sync retries.
func (c *cab) setAvailable(available bool) {
	c.mu.Lock()
	if c.statusSent && c.available == available {
		c.mu.Unlock()
		return
	}
	settings, sess := c.settings, c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}

	text, mode := settings.AvailableStatus, "online"
	if !available {
		text, mode = settings.BusyStatus, "away"
	}
	if err := sess.SetStatus(c.ctx, text, mode); err != nil {
		c.logger.Warn("setting taxi status failed: %v", err)
		return
	}
	c.logger.Debug("taxi availability set to %v", available)

	c.mu.Lock()
	c.available = available
	c.statusSent = true
	c.mu.Unlock()
	c.m.publish(eventbus.EventTaxiStatus, eventbus.TaxiStatusEvent{AccountID: c.acc.AccountID, Active: true, Available: available})
}

func (c *cab) updateSettings(settings Settings) {
	c.mu.Lock()
	before := c.settings
	c.settings = settings
	if before.AvailableStatus != settings.AvailableStatus || before.BusyStatus != settings.BusyStatus {
		c.statusSent = false
	}
	available := c.available
	c.mu.Unlock()

	c.setAvailable(available)
	if settings.AutoAcceptFriendRequests && !before.AutoAcceptFriendRequests {
		c.acceptPendingFriends()
	}
	if before.Level != settings.Level || before.FORT != settings.FORT {
		party := c.m.mirror.Party(c.acc.AccountID)
		if party == nil {
			return
		}
		if member := party.Member(c.acc.AccountID); member != nil {
			c.advertise(party.ID, member.Revision)
		}
	}
}

// run executes one upstream action with tracing and the action counter.
func (c *cab) run(action string, fn func(ctx context.Context) error) error {
	ctx, end := observability.StartSpan(c.ctx, "taxi", action)
	err := fn(ctx)
	end(err)
	observability.RecordMetric(c.ctx, "taxi_action_total", 1, map[string]string{"action": action, "outcome": observability.Outcome(err)})
	if err != nil {
		c.logger.Warn("taxi %s failed: %v", action, err)
	}
	return err
}

func (c *cab) currentSettings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *cab) jid() string {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ""
	}
	return sess.JID()
}

func (c *cab) snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		AccountID:   c.acc.AccountID,
		DisplayName: c.acc.DisplayName,
		Available:   c.available,
		Settings:    c.settings,
	}
	c.mu.Unlock()
	if party := c.m.mirror.Party(c.acc.AccountID); party != nil {
		s.PartyID = party.ID
	}
	return s
}
