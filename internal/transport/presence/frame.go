// Package presence is the websocket client for the push stream. Frames are
// JSON envelopes; one goroutine reads them in transport order and hands
// them to the session's Handlers.
package presence

// Frame kinds.
const (
	KindOpen     = "open"
	KindSession  = "session"
	KindMessage  = "message"
	KindPresence = "presence"
	KindError    = "error"
	KindClose    = "close"
)

// Frame is the envelope for every message on the wire.
type Frame struct {
	ID   string `json:"id,omitempty"`
	Kind string `json:"kind"`

	// open
	AccountID string `json:"account_id,omitempty"`
	Token     string `json:"token,omitempty"`
	Resource  string `json:"resource,omitempty"`

	// message
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Type string `json:"type,omitempty"`
	Body string `json:"body,omitempty"`

	// presence
	Status string `json:"status,omitempty"`
	Show   string `json:"show,omitempty"`

	// error
	Condition string `json:"condition,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Message is an inbound chat/notification stanza.
type Message struct {
	ID   string
	From string
	To   string
	Type string
	Body string
}

// Presence is an outbound status update. Status is an opaque JSON document;
// an empty Show means "online".
type Presence struct {
	Status string
	Show   string
}
