package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/platform/observability"
	"partybot-server-go/internal/util/work"
)

const (
	ActionKick     = "kick"
	ActionClaim    = "claim"
	ActionTransfer = "transfer"
	ActionInvite   = "invite"
)

// Kicks run ahead of everything so members leave before the next match fills.
const (
	priorityKick   = 10
	priorityInvite = 5
	priorityReward = 1
)

// sideEffect is one post-mission action queued on the engine's worker pool.
type sideEffect struct {
	ctx       context.Context
	accountID string
	action    string
	run       func(ctx context.Context) error

	// done is closed once the action settles, successfully or not.
	done chan struct{}
}

func (e *Engine) runSideEffect(_ context.Context, se sideEffect) error {
	ctx, end := observability.StartSpan(se.ctx, "automation", se.action)
	err := se.run(ctx)
	end(err)
	return err
}

func (e *Engine) sideEffectDone(item *work.Item[sideEffect], err error) {
	se := item.Data
	if se.done != nil {
		defer close(se.done)
	}

	ev := eventbus.AutomationActionEvent{AccountID: se.accountID, Action: se.action, Success: err == nil}
	if err != nil {
		ev.Detail = err.Error()
		e.logger.Error("auto-%s for %s failed after %d attempts: %v", se.action, se.accountID, item.Retries, err)
	} else {
		e.logger.Info("auto-%s for %s done", se.action, se.accountID)
	}
	observability.RecordMetric(se.ctx, "automation_action_total", 1, map[string]string{"action": se.action, "outcome": observability.Outcome(err)})
	e.publish(eventbus.EventAutomationAction, ev)
}

// submit queues se. When the pool is closed the action is reported as failed
// and done is closed so waiters never hang.
func (e *Engine) submit(se sideEffect, priority, maxRetries int) {
	if err := e.queue.Submit(se, priority, maxRetries); err != nil {
		e.sideEffectDone(&work.Item[sideEffect]{Data: se}, err)
	}
}

// postMission runs the configured actions once for a finished match.
func (m *machine) postMission() {
	settings := m.currentSettings()
	self := m.acc.AccountID
	// Side effects outlive stop.
	ctx := context.WithoutCancel(m.ctx)

	m.logger.Info("mission ended, running post-mission actions")

	party, err := m.e.parties.Get(ctx, self)
	if err != nil {
		m.logger.Warn("party snapshot failed: %v", err)
		party = nil
	}

	m.mu.Lock()
	m.lastKick = time.Now()
	m.mu.Unlock()

	inviteEligible := party != nil && settings.AutoKick && settings.AutoInvite &&
		party.Captain() == self && len(party.Members) > 1

	// Subscribe before the kick so the rejoin cannot be missed.
	var rejoined <-chan struct{}
	var unsubscribe func()
	if inviteEligible {
		if sess := m.currentSession(); sess != nil {
			rejoined, unsubscribe = watchRejoin(sess.Bus(), self)
		} else {
			inviteEligible = false
		}
	}

	kicked := make(chan struct{})
	if settings.AutoKick && party != nil {
		m.e.submit(sideEffect{
			ctx:       ctx,
			accountID: self,
			action:    ActionKick,
			run:       func(ctx context.Context) error { return m.kick(ctx, party) },
			done:      kicked,
		}, priorityKick, 0)
	} else {
		close(kicked)
	}

	if settings.AutoClaim {
		delay := settings.claimDelay()
		m.e.submit(sideEffect{
			ctx:       ctx,
			accountID: self,
			action:    ActionClaim,
			run: func(ctx context.Context) error {
				_, err := m.e.rewards.Claim(ctx, self, delay)
				return err
			},
		}, priorityReward, 1)
	}

	if settings.AutoTransfer {
		m.e.wg.Add(1)
		go func() {
			defer m.e.wg.Done()
			<-kicked
			m.e.submit(sideEffect{
				ctx:       ctx,
				accountID: self,
				action:    ActionTransfer,
				run: func(ctx context.Context) error {
					_, err := m.e.rewards.TransferMaterials(ctx, self, 0)
					return err
				},
			}, priorityReward, 1)
		}()
	}

	if inviteEligible {
		previous := make([]string, 0, len(party.Members))
		for _, member := range party.Members {
			if member.AccountID != self {
				previous = append(previous, member.AccountID)
			}
		}
		m.e.wg.Add(1)
		go func() {
			defer m.e.wg.Done()
			defer unsubscribe()
			<-kicked
			m.invite(ctx, rejoined, previous)
		}()
	}
}

// kick empties the party of members that do not auto-kick themselves. A
// locally held captain kicks them and we leave; otherwise every held
// non-auto-kick member leaves alongside us.
func (m *machine) kick(ctx context.Context, party *epic.Party) error {
	self := m.acc.AccountID
	leader := party.Captain()

	var stay []string
	for _, member := range party.Members {
		if !m.e.autoKickEnabled(member.AccountID) {
			stay = append(stay, member.AccountID)
		}
	}

	if leader != "" && m.e.accounts.Has(leader) {
		var g errgroup.Group
		for _, id := range stay {
			if id == self || id == leader {
				continue
			}
			g.Go(func() error {
				if err := m.e.parties.Kick(ctx, leader, party.ID, id); err != nil {
					m.logger.Warn("kicking %s failed: %v", id, err)
				}
				return nil
			})
		}
		_ = g.Wait()
		return m.e.parties.Leave(ctx, self, party.ID)
	}

	leavers := []string{self}
	for _, id := range stay {
		if id != self && m.e.accounts.Has(id) {
			leavers = append(leavers, id)
		}
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, id := range leavers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.e.parties.Leave(ctx, id, party.ID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// invite waits for the account to land in its new party, lets the party
// settle and re-invites previous members that are friends.
func (m *machine) invite(ctx context.Context, rejoined <-chan struct{}, previous []string) {
	self := m.acc.AccountID

	timer := time.NewTimer(m.e.timings.RejoinTimeout)
	defer timer.Stop()
	select {
	case <-rejoined:
	case <-timer.C:
		m.logger.Warn("no rejoin within %s, skipping auto-invite", m.e.timings.RejoinTimeout)
		return
	case <-m.ctx.Done():
		return
	}

	settle := time.NewTimer(m.e.timings.InviteSettleDelay)
	defer settle.Stop()
	select {
	case <-settle.C:
	case <-m.ctx.Done():
		return
	}

	var (
		party   *epic.Party
		friends []epic.Friend
	)
	var g errgroup.Group
	g.Go(func() error {
		p, err := m.e.parties.Get(ctx, self)
		if err != nil {
			m.logger.Warn("auto-invite party lookup failed: %v", err)
		}
		party = p
		return nil
	})
	g.Go(func() error {
		f, err := m.e.friends.List(ctx, self)
		if err != nil {
			m.logger.Warn("auto-invite friends lookup failed: %v", err)
		}
		friends = f
		return nil
	})
	_ = g.Wait()
	if party == nil || len(friends) == 0 {
		return
	}

	wanted := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		wanted[id] = struct{}{}
	}
	for _, friend := range friends {
		if _, ok := wanted[friend.AccountID]; !ok {
			continue
		}
		friendID := friend.AccountID
		m.e.submit(sideEffect{
			ctx:       ctx,
			accountID: self,
			action:    ActionInvite,
			run: func(ctx context.Context) error {
				return m.e.parties.Invite(ctx, self, party.ID, friendID)
			},
		}, priorityInvite, 0)
	}
}

// watchRejoin signals once accountID joins a party on bus.
func watchRejoin(bus *eventbus.Bus, accountID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	unsubscribe := eventbus.On(bus, eventbus.EventMemberJoined, func(ev eventbus.MemberEvent) {
		if ev.AccountID != accountID {
			return
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	return ch, unsubscribe
}

// syncPresence shows the account as available when alone in its party and
// busy otherwise. Unchanged modes are not re-sent.
func (m *machine) syncPresence() {
	settings := m.currentSettings()
	sess := m.currentSession()
	if sess == nil {
		return
	}

	m.mu.Lock()
	current := m.presence
	m.mu.Unlock()

	if !settings.ManagePresence {
		if current == "" {
			return
		}
		if err := sess.ResetStatus(m.ctx); err != nil {
			m.logger.Warn("resetting presence failed: %v", err)
			return
		}
		m.mu.Lock()
		m.presence = ""
		m.mu.Unlock()
		return
	}

	if m.e.mirror == nil {
		return
	}
	party := m.e.mirror.Party(m.acc.AccountID)
	if party == nil {
		return
	}

	desired, text, show := presenceBusy, m.e.timings.PresenceBusy, "away"
	if len(party.Members) <= 1 {
		desired, text, show = presenceAvailable, m.e.timings.PresenceAvailable, "online"
	}
	if desired == current {
		return
	}
	if err := sess.SetStatus(m.ctx, text, show); err != nil {
		m.logger.Warn("setting presence failed: %v", err)
		return
	}
	m.mu.Lock()
	m.presence = desired
	m.mu.Unlock()
	m.logger.Debug("presence flipped to %s", desired)
}
