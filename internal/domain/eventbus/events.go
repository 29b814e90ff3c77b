package eventbus

// Connection lifecycle topics published on a session bus.
const (
	EventSessionStarted = "connection:session_started"
	EventReconnected    = "connection:reconnected"
	EventDisconnected   = "connection:disconnected"
	EventStreamError    = "connection:stream_error"
)

// Upstream notification types. The session bus uses them verbatim as topics.
const (
	partyPrefix = "com.epicgames.social.party.notification.v0."

	EventMemberConnected    = partyPrefix + "MEMBER_CONNECTED"
	EventMemberDisconnected = partyPrefix + "MEMBER_DISCONNECTED"
	EventMemberExpired      = partyPrefix + "MEMBER_EXPIRED"
	EventMemberJoined       = partyPrefix + "MEMBER_JOINED"
	EventMemberKicked       = partyPrefix + "MEMBER_KICKED"
	EventMemberLeft         = partyPrefix + "MEMBER_LEFT"
	EventMemberStateUpdated = partyPrefix + "MEMBER_STATE_UPDATED"
	EventMemberNewCaptain   = partyPrefix + "MEMBER_NEW_CAPTAIN"
	EventPartyUpdated       = partyPrefix + "PARTY_UPDATED"
	EventPartyPing          = partyPrefix + "PING"

	EventFriendshipRequest = "FRIENDSHIP_REQUEST"
	EventFriendshipRemove  = "FRIENDSHIP_REMOVE"
)

// Process-wide topics published on the application bus.
const (
	EventAccountAdded       = "account:added"
	EventAccountRemoved     = "account:removed"
	EventAccountNeedsAction = "account:needs_action"
	EventNotification       = "app:notification"
	EventAutomationStatus   = "automation:status"
	EventAutomationAction   = "automation:action"
	EventTaxiStatus         = "taxi:status"
)

var sessionTopics = []string{
	EventSessionStarted, EventReconnected, EventDisconnected, EventStreamError,
	EventMemberConnected, EventMemberDisconnected, EventMemberExpired,
	EventMemberJoined, EventMemberKicked, EventMemberLeft,
	EventMemberStateUpdated, EventMemberNewCaptain, EventPartyUpdated,
	EventPartyPing, EventFriendshipRequest, EventFriendshipRemove,
}

var appTopics = []string{
	EventAccountAdded, EventAccountRemoved, EventAccountNeedsAction,
	EventNotification, EventAutomationStatus, EventAutomationAction,
	EventTaxiStatus,
}

// AppTopics lists the application bus topics.
func AppTopics() []string {
	return append([]string(nil), appTopics...)
}

// KnownNotification reports whether t is an upstream type the stream decodes.
func KnownNotification(t string) bool {
	switch t {
	case EventMemberConnected, EventMemberDisconnected, EventMemberExpired,
		EventMemberJoined, EventMemberKicked, EventMemberLeft,
		EventMemberStateUpdated, EventMemberNewCaptain, EventPartyUpdated,
		EventPartyPing, EventFriendshipRequest, EventFriendshipRemove:
		return true
	}
	return false
}

// MemberConnection describes the client a party member is connected from.
type MemberConnection struct {
	ID              string            `json:"id"`
	ConnectedAt     string            `json:"connected_at"`
	UpdatedAt       string            `json:"updated_at"`
	YieldLeadership bool              `json:"yield_leadership"`
	Meta            map[string]string `json:"meta,omitempty"`
}

// MemberEvent covers joined, left, kicked, expired, connected, disconnected
// and new-captain notifications.
type MemberEvent struct {
	Type               string            `json:"type"`
	Sent               string            `json:"sent"`
	PartyID            string            `json:"party_id"`
	AccountID          string            `json:"account_id"`
	AccountDN          string            `json:"account_dn"`
	Revision           int64             `json:"revision"`
	JoinedAt           string            `json:"joined_at"`
	UpdatedAt          string            `json:"updated_at"`
	MemberStateUpdated map[string]string `json:"member_state_updated,omitempty"`
	Connection         *MemberConnection `json:"connection,omitempty"`
}

type MemberStateUpdated struct {
	Type                  string            `json:"type"`
	Sent                  string            `json:"sent"`
	PartyID               string            `json:"party_id"`
	AccountID             string            `json:"account_id"`
	AccountDN             string            `json:"account_dn"`
	Revision              int64             `json:"revision"`
	UpdatedAt             string            `json:"updated_at"`
	MemberStateRemoved    []string          `json:"member_state_removed,omitempty"`
	MemberStateUpdated    map[string]string `json:"member_state_updated,omitempty"`
	MemberStateOverridden map[string]string `json:"member_state_overridden,omitempty"`
}

type PartyUpdated struct {
	Type                 string            `json:"type"`
	Sent                 string            `json:"sent"`
	PartyID              string            `json:"party_id"`
	CaptainID            string            `json:"captain_id"`
	Revision             int64             `json:"revision"`
	UpdatedAt            string            `json:"updated_at"`
	PartyPrivacyType     string            `json:"party_privacy_type,omitempty"`
	PartyType            string            `json:"party_type,omitempty"`
	PartySubType         string            `json:"party_sub_type,omitempty"`
	MaxNumberOfMembers   int               `json:"max_number_of_members,omitempty"`
	InviteTTLSeconds     int               `json:"invite_ttl_seconds,omitempty"`
	IntentionTTLSeconds  int               `json:"intention_ttl_seconds,omitempty"`
	PartyStateRemoved    []string          `json:"party_state_removed,omitempty"`
	PartyStateUpdated    map[string]string `json:"party_state_updated,omitempty"`
	PartyStateOverridden map[string]string `json:"party_state_overridden,omitempty"`
}

type PartyPing struct {
	Type     string `json:"type"`
	Sent     string `json:"sent"`
	PingerID string `json:"pinger_id"`
	PingerDN string `json:"pinger_dn"`
	Expires  string `json:"expires"`
}

// Friendship request statuses.
const (
	FriendshipPending  = "PENDING"
	FriendshipAccepted = "ACCEPTED"
)

type FriendshipRequest struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type FriendshipRemove struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// SessionEvent accompanies the connection lifecycle topics.
type SessionEvent struct {
	AccountID string

	// Terminal is set on the final disconnect, after which the session is gone.
	Terminal bool
	Attempts int
	Err      error
}

// AccountEvent accompanies account registry topics.
type AccountEvent struct {
	AccountID   string
	DisplayName string
}

// Notification is a user-visible message, deduplicated per account and code.
type Notification struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// AutomationStatusEvent reports a change of an account's automation status.
type AutomationStatusEvent struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

// AutomationActionEvent records the outcome of one post-mission action.
type AutomationActionEvent struct {
	AccountID string `json:"account_id"`
	Action    string `json:"action"`
	Success   bool   `json:"success"`
	Detail    string `json:"detail,omitempty"`
}

// TaxiStatusEvent reports a taxi account starting, stopping or flipping
// between available and busy.
type TaxiStatusEvent struct {
	AccountID string `json:"account_id"`
	Active    bool   `json:"active"`
	Available bool   `json:"available"`
}
