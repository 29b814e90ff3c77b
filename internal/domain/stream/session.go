package stream

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"partybot-server-go/internal/domain/eventbus"
	"partybot-server-go/internal/platform/logging"
	"partybot-server-go/internal/platform/observability"
	"partybot-server-go/internal/transport/presence"
)

// Session is one account's stream connection. Its bus carries the
// connection lifecycle topics and every decoded notification.
type Session struct {
	registry  *Registry
	accountID string
	bus       *eventbus.Bus
	logger    logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	conn         presence.Conn
	jid          string
	established  bool
	activeGen    uint64
	gen          uint64
	purposes     map[string]struct{}
	attempts     int
	intentional  bool
	reconnecting bool
	timer        *time.Timer
	closed       bool
}

func newSession(r *Registry, accountID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		registry:  r,
		accountID: accountID,
		bus:       eventbus.NewSessionBus(),
		logger:    r.logger,
		ctx:       ctx,
		cancel:    cancel,
		purposes:  make(map[string]struct{}),
	}
}

func (s *Session) AccountID() string { return s.accountID }

// Bus is the session's event bus. It is closed on teardown.
func (s *Session) Bus() *eventbus.Bus { return s.bus }

// JID is the full address of the active connection, empty before the
// session is established.
func (s *Session) JID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jid
}

func (s *Session) Established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.established
}

// Attempts is the number of failed reconnects since the last success.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Session) Purposes() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.purposes))
	for p := range s.purposes {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *Session) addPurpose(purpose string) {
	s.mu.Lock()
	s.purposes[purpose] = struct{}{}
	s.mu.Unlock()
}

// RemovePurpose releases purpose. The last release tears the session down.
func (s *Session) RemovePurpose(purpose string) {
	release, err := s.registry.locks.Get(s.accountID).Lock(context.Background())
	if err != nil {
		return
	}
	defer release()

	s.mu.Lock()
	if _, ok := s.purposes[purpose]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.purposes, purpose)
	empty := len(s.purposes) == 0
	s.mu.Unlock()

	if empty {
		s.teardown(nil)
	}
}

type statusDocument struct {
	Status      string `json:"Status"`
	BIsPlaying  bool   `json:"bIsPlaying"`
	BIsJoinable bool   `json:"bIsJoinable"`
}

// SetStatus broadcasts a custom status. mode "online" sends no show value.
func (s *Session) SetStatus(ctx context.Context, text, mode string) error {
	s.mu.Lock()
	conn, established := s.conn, s.established
	s.mu.Unlock()
	if !established || conn == nil {
		return ErrNotEstablished
	}

	status, err := sonic.MarshalString(statusDocument{Status: text})
	if err != nil {
		return err
	}
	show := mode
	if mode == "online" {
		show = ""
	}
	return conn.SendPresence(ctx, presence.Presence{Status: status, Show: show})
}

// ResetStatus clears the custom status.
func (s *Session) ResetStatus(ctx context.Context) error {
	return s.SetStatus(ctx, "", "online")
}

func (s *Session) connect(ctx context.Context, force bool) error {
	ctx, end := observability.StartSpan(ctx, "stream", "connect")
	err := s.dial(ctx, force)
	end(err)
	observability.RecordMetric(ctx, "stream_connect_total", 1, map[string]string{
		"outcome": observability.Outcome(err),
		"forced":  strconv.FormatBool(force),
	})
	return err
}

// dial connects and waits for the session to start. Only a connection that
// started becomes the active one; anything else is closed.
func (s *Session) dial(ctx context.Context, force bool) error {
	r := s.registry
	token, err := r.tokens.Token(ctx, s.accountID, force)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	started := make(chan struct{}, 1)
	failed := make(chan error, 1)
	handlers := presence.Handlers{
		SessionStarted: func() {
			select {
			case started <- struct{}{}:
			default:
			}
		},
		Message: s.dispatch,
		StreamError: func(err error) {
			s.logger.Warn("stream error for %s: %v", s.accountID, err)
			s.bus.Publish(eventbus.EventStreamError, eventbus.SessionEvent{AccountID: s.accountID, Err: err})
			select {
			case failed <- err:
			default:
			}
		},
		Disconnected: func(err error) {
			select {
			case failed <- err:
			default:
			}
			s.onDisconnected(gen, err)
		},
	}

	cctx, cancel := context.WithTimeoutCause(ctx, r.cfg.ConnectTimeout, ErrConnectTimeout)
	defer cancel()

	resource := newResource()
	conn, err := r.dialer.Dial(cctx, presence.Options{
		Endpoint:         r.cfg.Endpoint,
		AccountID:        s.accountID,
		Token:            token,
		Resource:         resource,
		KeepAlive:        r.cfg.KeepAlive,
		HandshakeTimeout: r.cfg.ConnectTimeout,
	}, handlers)
	if err != nil {
		if errors.Is(context.Cause(cctx), ErrConnectTimeout) {
			return ErrConnectTimeout
		}
		return err
	}

	select {
	case <-started:
	case err := <-failed:
		_ = conn.Close()
		if err == nil {
			err = presence.ErrClosed
		}
		return err
	case <-cctx.Done():
		_ = conn.Close()
		if errors.Is(context.Cause(cctx), ErrConnectTimeout) {
			return ErrConnectTimeout
		}
		return cctx.Err()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.jid = s.accountID + "@" + jidDomain + "/" + resource
	s.established = true
	s.activeGen = gen
	s.attempts = 0
	s.intentional = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.bus.Publish(eventbus.EventSessionStarted, eventbus.SessionEvent{AccountID: s.accountID})
	return nil
}

// onDisconnected reacts to the end of the active connection. Connections
// that never became active are ignored.
func (s *Session) onDisconnected(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.activeGen || s.closed {
		s.mu.Unlock()
		return
	}
	s.activeGen = 0
	s.conn = nil
	s.jid = ""
	s.established = false
	intentional := s.intentional
	s.mu.Unlock()

	s.logger.Warn("stream for %s disconnected: %v", s.accountID, err)
	s.bus.Publish(eventbus.EventDisconnected, eventbus.SessionEvent{AccountID: s.accountID, Err: err})
	if !intentional {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms the reconnect timer unless one is pending or running.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil || s.reconnecting || s.intentional || s.closed {
		return
	}
	delay := s.registry.backoff(s.attempts)
	s.logger.Info("reconnecting stream for %s in %s (attempt %d)", s.accountID, delay, s.attempts+1)
	s.timer = time.AfterFunc(delay, s.tryReconnect)
}

func (s *Session) tryReconnect() {
	r := s.registry
	release, err := r.locks.Get(s.accountID).Lock(s.ctx)
	if err != nil {
		return
	}
	defer release()

	s.mu.Lock()
	s.timer = nil
	if s.closed || s.intentional {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	force := s.attempts > 0
	s.mu.Unlock()

	err = s.connect(s.ctx, force)

	s.mu.Lock()
	s.reconnecting = false
	if err == nil {
		s.mu.Unlock()
		s.logger.Info("stream for %s reconnected", s.accountID)
		s.bus.Publish(eventbus.EventReconnected, eventbus.SessionEvent{AccountID: s.accountID})
		if r.mirror != nil {
			if err := r.mirror.Refresh(s.ctx, s.accountID); err != nil {
				s.logger.Warn("mirror refresh after reconnect for %s failed: %v", s.accountID, err)
			}
		}
		return
	}
	s.attempts++
	attempts := s.attempts
	s.mu.Unlock()

	s.logger.Warn("reconnect %d for %s failed: %v", attempts, s.accountID, err)
	if attempts >= r.cfg.MaxReconnectAttempts {
		s.logger.Error("giving up on stream for %s after %d attempts", s.accountID, attempts)
		s.teardown(err)
		return
	}
	s.scheduleReconnect()
}

// teardown ends the session for good. Callers hold the account lock.
func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.intentional = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.jid = ""
	s.established = false
	s.purposes = make(map[string]struct{})
	attempts := s.attempts
	s.mu.Unlock()

	s.cancel()
	s.bus.Publish(eventbus.EventDisconnected, eventbus.SessionEvent{
		AccountID: s.accountID,
		Terminal:  true,
		Attempts:  attempts,
		Err:       cause,
	})
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("closing stream for %s: %v", s.accountID, err)
		}
	}
	s.registry.forget(s)
	s.bus.Close()
	s.logger.Info("stream session for %s closed", s.accountID)
}

// discard drops a session that never registered.
func (s *Session) discard() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.bus.Close()
}
