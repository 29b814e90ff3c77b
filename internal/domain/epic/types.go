package epic

// Party member roles.
const (
	RoleCaptain = "CAPTAIN"
	RoleMember  = "MEMBER"
)

// Party meta keys read by the automation.
const (
	MetaPartyState     = "Default:PartyState_s"
	PartyStatePostGame = "PostMatchmaking"
	MetaMemberName     = "urn:epic:member:dn_s"
)

type Party struct {
	ID        string            `json:"id"`
	CreatedAt string            `json:"created_at,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
	Config    map[string]any    `json:"config"`
	Members   []PartyMember     `json:"members"`
	Meta      map[string]string `json:"meta"`
	Revision  int               `json:"revision"`
}

type PartyMember struct {
	AccountID   string            `json:"account_id"`
	Meta        map[string]string `json:"meta"`
	Connections []PartyConnection `json:"connections,omitempty"`
	Revision    int               `json:"revision"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
	JoinedAt    string            `json:"joined_at,omitempty"`
	Role        string            `json:"role"`
}

type PartyConnection struct {
	ID              string            `json:"id"`
	ConnectedAt     string            `json:"connected_at,omitempty"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
	YieldLeadership bool              `json:"yield_leadership"`
	Meta            map[string]string `json:"meta,omitempty"`
}

// Captain returns the captain's account id, or "" when there is none.
func (p *Party) Captain() string {
	for _, m := range p.Members {
		if m.Role == RoleCaptain {
			return m.AccountID
		}
	}
	return ""
}

// Member returns a pointer into Members for accountID.
func (p *Party) Member(accountID string) *PartyMember {
	for i := range p.Members {
		if p.Members[i].AccountID == accountID {
			return &p.Members[i]
		}
	}
	return nil
}

// Clone deep-copies the party.
func (p *Party) Clone() *Party {
	if p == nil {
		return nil
	}
	out := *p
	out.Config = cloneAnyMap(p.Config)
	out.Meta = cloneStringMap(p.Meta)
	out.Members = make([]PartyMember, len(p.Members))
	for i, m := range p.Members {
		out.Members[i] = m.Clone()
	}
	return &out
}

func (m PartyMember) Clone() PartyMember {
	m.Meta = cloneStringMap(m.Meta)
	if m.Connections != nil {
		conns := make([]PartyConnection, len(m.Connections))
		for i, c := range m.Connections {
			c.Meta = cloneStringMap(c.Meta)
			conns[i] = c
		}
		m.Connections = conns
	}
	return m
}

type PartyPing struct {
	SentBy    string            `json:"sent_by"`
	SentTo    string            `json:"sent_to"`
	SentAt    string            `json:"sent_at,omitempty"`
	ExpiresAt string            `json:"expires_at,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// UserParties is the party service's view of one user.
type UserParties struct {
	Current []Party     `json:"current"`
	Pings   []PartyPing `json:"pings"`
}

// InviterParty is a party reachable through a ping.
type InviterParty struct {
	ID       string            `json:"id"`
	Members  []PartyMember     `json:"members"`
	Meta     map[string]string `json:"meta"`
	Revision int               `json:"revision"`
}

// Friend is a confirmed friend entry.
type Friend struct {
	AccountID string `json:"accountId"`
	Alias     string `json:"alias,omitempty"`
	Note      string `json:"note,omitempty"`
	Mutual    int    `json:"mutual"`
	Favorite  bool   `json:"favorite"`
	Created   string `json:"created,omitempty"`
}

// FriendRequest is a pending incoming or outgoing request.
type FriendRequest struct {
	AccountID string `json:"accountId"`
	Mutual    int    `json:"mutual"`
	Favorite  bool   `json:"favorite"`
	Created   string `json:"created,omitempty"`
}

type BlockedAccount struct {
	AccountID string `json:"accountId"`
	Created   string `json:"created,omitempty"`
}

type FriendsSummary struct {
	Friends   []Friend         `json:"friends"`
	Incoming  []FriendRequest  `json:"incoming"`
	Outgoing  []FriendRequest  `json:"outgoing"`
	Blocklist []BlockedAccount `json:"blocklist"`
}

// MatchSession is one entry of the matchmaking "find player" response.
type MatchSession struct {
	SessionID     string   `json:"sessionId,omitempty"`
	Started       bool     `json:"started"`
	PublicPlayers []string `json:"publicPlayers,omitempty"`
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = cloneAnyMap(nested)
		}
		out[k] = v
	}
	return out
}
