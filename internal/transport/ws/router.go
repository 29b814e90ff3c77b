// Package ws serves the live event feed: a websocket that pushes account,
// automation and notification events to control clients.
package ws

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/platform/observability"
)

// Router upgrades HTTP connections to feed sessions.
type Router struct {
	hub    *Hub
	logger logging.Logger
	known  func(accountID string) bool

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration

	// base is the parent context of every session; sessions end with it.
	base context.Context
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	// Origins lists the allowed browser origins; empty or "*" allows any.
	Origins []string
	// Known rejects feeds filtered on an unregistered account when set.
	Known func(accountID string) bool
	// Context bounds the lifetime of every session.
	Context context.Context
}

// NewRouter constructs a websocket router.
func NewRouter(hub *Hub, logger logging.Logger, opts RouterOptions) *Router {
	if logger == nil {
		logger = logging.Nop()
	}
	upgrader := &websocket.Upgrader{
		CheckOrigin: checkOrigin(opts.Origins),
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := opts.Context
	if base == nil {
		base = context.Background()
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		known:            opts.Known,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
		base:             base,
	}
}

func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// Handle upgrades the request and runs a feed session. The optional
// "account" query parameter narrows the feed to one account.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	account := req.URL.Query().Get("account")
	if account != "" && r.known != nil && !r.known(account) {
		http.Error(w, "unknown account "+account, http.StatusNotFound)
		return
	}

	handshakeCtx, cancel := context.WithTimeoutCause(req.Context(), r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.websocket", "upgrade")
	socket, err := r.upgrader.Upgrade(w, req, nil)
	spanEnd(err)
	observability.RecordMetric(spanCtx, "feed_upgrade_total", 1, map[string]string{
		"outcome": observability.Outcome(err),
	})
	if err != nil {
		r.logger.Error("feed handshake failed: %v", err)
		return
	}

	conn := NewConnection(uuid.NewString(), socket)
	session := NewSession(r.base, conn, account, r.logger)
	r.hub.Register(session)
	r.logger.Info("feed %s connected (account=%q)", session.ID(), account)

	go session.Run(func(runErr error) {
		r.hub.Unregister(session.ID())
		if runErr != nil {
			r.logger.Warn("feed %s ended: %v", session.ID(), runErr)
		} else {
			r.logger.Info("feed %s closed", session.ID())
		}
		observability.RecordMetric(session.Context(), "feed_closed_total", 1, map[string]string{
			"outcome": observability.Outcome(runErr),
		})
	})
}
