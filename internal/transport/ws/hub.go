package ws

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/platform/logging"
)

// Frame is one event pushed to feed clients.
type Frame struct {
	Type      string    `json:"type"`
	AccountID string    `json:"accountId,omitempty"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

// Hub tracks the feed sessions and fans application events out to them.
type Hub struct {
	logger   logging.Logger
	sessions sync.Map // map[string]*Session

	mu     sync.Mutex
	unsubs []func()
}

// NewHub builds a fresh session hub.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{logger: logger}
}

// Register adds a new session to the hub.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
}

// Unregister removes the session from the hub.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// CloseAll terminates all active sessions.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
}

// Count returns the number of connected feed clients.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Broadcast encodes f once and offers it to every interested session.
func (h *Hub) Broadcast(f Frame) {
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}
	data, err := sonic.Marshal(f)
	if err != nil {
		h.logger.Warn("encoding %s frame failed: %v", f.Type, err)
		return
	}
	h.sessions.Range(func(_, value any) bool {
		if session, ok := value.(*Session); ok && session.Wants(f.AccountID) {
			if !session.Offer(data) {
				h.logger.Debug("feed %s is behind, dropped %s", session.ID(), f.Type)
			}
		}
		return true
	})
}

// Attach forwards every application bus topic to the feed.
func (h *Hub) Attach(bus *eventbus.Bus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range eventbus.AppTopics() {
		topic := topic
		h.unsubs = append(h.unsubs, bus.Subscribe(topic, func(payload any) {
			h.Broadcast(Frame{Type: topic, AccountID: accountOf(payload), Data: payload})
		}))
	}
}

// Detach stops forwarding.
func (h *Hub) Detach() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	h.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

func accountOf(payload any) string {
	switch ev := payload.(type) {
	case eventbus.AccountEvent:
		return ev.AccountID
	case eventbus.Notification:
		return ev.AccountID
	case eventbus.AutomationStatusEvent:
		return ev.AccountID
	case eventbus.AutomationActionEvent:
		return ev.AccountID
	case eventbus.TaxiStatusEvent:
		return ev.AccountID
	case eventbus.SessionEvent:
		return ev.AccountID
	}
	return ""
}
