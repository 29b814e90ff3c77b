package mirror

import (
	"context"

	"partybot-server-go/internal/domain/epic"
	"partybot-server-go/internal/domain/eventbus"
)

// Apply patches the mirror with one decoded stream notification received
// by owner. topic is the upstream notification type. Unknown payloads are
// ignored.
func (m *Mirror) Apply(ctx context.Context, owner, topic string, payload any) {
	switch ev := payload.(type) {
	case eventbus.MemberStateUpdated:
		m.applyMemberState(ev)
	case eventbus.PartyUpdated:
		m.applyPartyUpdated(ev)
	case eventbus.MemberEvent:
		switch topic {
		case eventbus.EventMemberJoined:
			m.applyJoined(ctx, ev)
		case eventbus.EventMemberLeft, eventbus.EventMemberKicked, eventbus.EventMemberExpired:
			m.applyLeft(ev)
		case eventbus.EventMemberNewCaptain:
			m.applyNewCaptain(ev)
		}
	case eventbus.FriendshipRequest:
		m.applyFriendshipRequest(owner, ev)
	case eventbus.FriendshipRemove:
		m.applyFriendshipRemove(owner, ev)
	}
}

func (m *Mirror) applyMemberState(ev eventbus.MemberStateUpdated) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, party := range m.matching(ev.PartyID) {
		member := party.Member(ev.AccountID)
		if member == nil {
			continue
		}
		party.Revision = int(ev.Revision)
		party.UpdatedAt = ev.UpdatedAt
		member.UpdatedAt = ev.UpdatedAt
		member.Meta = patchMeta(member.Meta, ev.MemberStateRemoved, ev.MemberStateUpdated, ev.MemberStateOverridden)
	}
}

func (m *Mirror) applyPartyUpdated(ev eventbus.PartyUpdated) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, party := range m.matching(ev.PartyID) {
		party.Revision = int(ev.Revision)
		party.UpdatedAt = ev.UpdatedAt

		if party.Config == nil {
			party.Config = make(map[string]any)
		}
		setConfig(party.Config, "type", ev.PartyType)
		setConfig(party.Config, "sub_type", ev.PartySubType)
		setConfig(party.Config, "joinability", ev.PartyPrivacyType)
		setConfigInt(party.Config, "max_size", ev.MaxNumberOfMembers)
		setConfigInt(party.Config, "invite_ttl", ev.InviteTTLSeconds)
		setConfigInt(party.Config, "intention_ttl", ev.IntentionTTLSeconds)

		if ev.CaptainID != "" {
			assignCaptain(party, ev.CaptainID)
		}
		party.Meta = patchMeta(party.Meta, ev.PartyStateRemoved, ev.PartyStateUpdated, ev.PartyStateOverridden)
	}
}

func (m *Mirror) applyJoined(ctx context.Context, ev eventbus.MemberEvent) {
	m.mu.Lock()
	for _, party := range m.matching(ev.PartyID) {
		member := epic.PartyMember{
			AccountID: ev.AccountID,
			Meta:      cloneMeta(ev.MemberStateUpdated),
			JoinedAt:  ev.JoinedAt,
			UpdatedAt: ev.UpdatedAt,
			Role:      epic.RoleMember,
		}
		if ev.Connection != nil {
			member.Connections = []epic.PartyConnection{{
				ID:              ev.Connection.ID,
				ConnectedAt:     ev.Connection.ConnectedAt,
				UpdatedAt:       ev.Connection.UpdatedAt,
				YieldLeadership: ev.Connection.YieldLeadership,
				Meta:            cloneMeta(ev.Connection.Meta),
			}}
		}
		if existing := party.Member(ev.AccountID); existing != nil {
			member.Role = existing.Role
			*existing = member
		} else {
			party.Members = append(party.Members, member)
		}
		party.Revision = int(ev.Revision)
	}
	m.mu.Unlock()

	// A held account that joined a party gets a fresh snapshot of it.
	if m.holder == nil || !m.holder.Has(ev.AccountID) {
		return
	}
	if _, err := m.RefreshParty(ctx, ev.AccountID); err != nil {
		m.logger.Warn("refreshing party of %s after join failed: %v", ev.AccountID, err)
		m.SetParty(ev.AccountID, nil)
	}
}

func (m *Mirror) applyLeft(ev eventbus.MemberEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The leaving account's own mirror no longer describes a party it is in.
	if party, ok := m.partyByAcc[ev.AccountID]; ok && party.ID == ev.PartyID {
		delete(m.partyByAcc, ev.AccountID)
	}
	for _, party := range m.matching(ev.PartyID) {
		kept := party.Members[:0]
		for _, member := range party.Members {
			if member.AccountID != ev.AccountID {
				kept = append(kept, member)
			}
		}
		party.Members = kept
		if ev.Revision != 0 {
			party.Revision = int(ev.Revision)
		}
	}
}

func (m *Mirror) applyNewCaptain(ev eventbus.MemberEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, party := range m.matching(ev.PartyID) {
		assignCaptain(party, ev.AccountID)
		if ev.Revision != 0 {
			party.Revision = int(ev.Revision)
		}
	}
}

func (m *Mirror) applyFriendshipRequest(owner string, ev eventbus.FriendshipRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.friendsByAcc[owner]
	if !ok {
		f = newFriends()
		m.friendsByAcc[owner] = f
	}

	switch ev.Status {
	case eventbus.FriendshipPending:
		if ev.From == owner {
			f.Outgoing[ev.To] = epic.FriendRequest{AccountID: ev.To, Created: ev.Timestamp}
		} else {
			f.Incoming[ev.From] = epic.FriendRequest{AccountID: ev.From, Created: ev.Timestamp}
		}
	case eventbus.FriendshipAccepted:
		friendID := ev.From
		if ev.From == owner {
			friendID = ev.To
		}
		delete(f.Incoming, friendID)
		delete(f.Outgoing, friendID)
		f.Friends[friendID] = epic.Friend{AccountID: friendID, Created: ev.Timestamp}
	}
}

func (m *Mirror) applyFriendshipRemove(owner string, ev eventbus.FriendshipRemove) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.friendsByAcc[owner]
	if !ok {
		return
	}
	other := ev.From
	if ev.From == owner {
		other = ev.To
	}
	delete(f.Friends, other)
	delete(f.Incoming, other)
	delete(f.Outgoing, other)
}

// assignCaptain leaves exactly one CAPTAIN when captainID is a member.
func assignCaptain(party *epic.Party, captainID string) {
	for i := range party.Members {
		if party.Members[i].AccountID == captainID {
			party.Members[i].Role = epic.RoleCaptain
		} else {
			party.Members[i].Role = epic.RoleMember
		}
	}
}

// patchMeta deletes removed keys, then merges updated and overridden.
func patchMeta(meta map[string]string, removed []string, updated, overridden map[string]string) map[string]string {
	if meta == nil {
		meta = make(map[string]string, len(updated)+len(overridden))
	}
	for _, k := range removed {
		delete(meta, k)
	}
	for k, v := range updated {
		meta[k] = v
	}
	for k, v := range overridden {
		meta[k] = v
	}
	return meta
}

func cloneMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func setConfig(cfg map[string]any, key, value string) {
	if value != "" {
		cfg[key] = value
	}
}

func setConfigInt(cfg map[string]any, key string, value int) {
	if value != 0 {
		cfg[key] = value
	}
}
