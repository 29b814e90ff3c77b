package mirror

import "partybot-server-go/internal/domain/epic"

// Friends is the four-way friends state of one account, each collection
// keyed by the other account's id.
type Friends struct {
	Friends   map[string]epic.Friend         `json:"friends"`
	Incoming  map[string]epic.FriendRequest  `json:"incoming"`
	Outgoing  map[string]epic.FriendRequest  `json:"outgoing"`
	Blocklist map[string]epic.BlockedAccount `json:"blocklist"`
}

func newFriends() *Friends {
	return &Friends{
		Friends:   make(map[string]epic.Friend),
		Incoming:  make(map[string]epic.FriendRequest),
		Outgoing:  make(map[string]epic.FriendRequest),
		Blocklist: make(map[string]epic.BlockedAccount),
	}
}

func friendsFromSummary(s *epic.FriendsSummary) *Friends {
	f := newFriends()
	if s == nil {
		return f
	}
	for _, v := range s.Friends {
		f.Friends[v.AccountID] = v
	}
	for _, v := range s.Incoming {
		f.Incoming[v.AccountID] = v
	}
	for _, v := range s.Outgoing {
		f.Outgoing[v.AccountID] = v
	}
	for _, v := range s.Blocklist {
		f.Blocklist[v.AccountID] = v
	}
	return f
}

// Clone deep-copies the collections. Entries are plain values.
func (f *Friends) Clone() *Friends {
	if f == nil {
		return nil
	}
	out := newFriends()
	for k, v := range f.Friends {
		out.Friends[k] = v
	}
	for k, v := range f.Incoming {
		out.Incoming[k] = v
	}
	for k, v := range f.Outgoing {
		out.Outgoing[k] = v
	}
	for k, v := range f.Blocklist {
		out.Blocklist[k] = v
	}
	return out
}

// FriendIDs returns the confirmed friend ids.
func (f *Friends) FriendIDs() []string {
	ids := make([]string, 0, len(f.Friends))
	for id := range f.Friends {
		ids = append(ids, id)
	}
	return ids
}
