package ws

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"partybot-server-go/internal/platform/logging"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	readLimit    = 512
	outboxFrames = 64
)

// Session is one feed subscriber. Frames for other accounts are filtered out
// when the client asked for a single account.
type Session struct {
	id      string
	account string
	conn    *Connection
	logger  logging.Logger

	out     chan []byte
	dropped atomic.Int64

	ctx    context.Context
	cancel context.CancelCauseFunc

	closed atomic.Bool
}

// NewSession constructs a feed session. An empty account receives every frame.
func NewSession(parent context.Context, conn *Connection, account string, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:      conn.ID(),
		account: account,
		conn:    conn,
		logger:  logger,
		out:     make(chan []byte, outboxFrames),
		ctx:     sessionCtx,
		cancel:  cancel,
	}
}

// Context returns the session context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// ID exposes the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Wants reports whether frames about accountID go to this session.
func (s *Session) Wants(accountID string) bool {
	return s.account == "" || accountID == "" || s.account == accountID
}

// Offer queues a frame without blocking. A slow client loses frames rather
// than stalling the publisher.
func (s *Session) Offer(frame []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.out <- frame:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns how many frames were discarded for this session.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Run pumps frames until the client goes away or Close is called, then
// invokes onDone with the cause. A normal client close reports nil.
func (s *Session) Run(onDone func(error)) {
	go func() {
		<-s.ctx.Done()
		s.Close(context.Cause(s.ctx))
	}()
	go s.writeLoop()
	err := s.readLoop()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || s.closed.Load() {
		err = nil
	}
	s.Close(err)
	if onDone != nil {
		onDone(err)
	}
}

// readLoop only services control frames; clients have nothing to say.
func (s *Session) readLoop() error {
	socket := s.conn.socket
	socket.SetReadLimit(readLimit)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.out:
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.fail(err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

func (s *Session) fail(err error) {
	if !errors.Is(err, ErrConnectionClosed) {
		s.logger.Warn("feed %s write failed: %v", s.id, err)
	}
	s.Close(err)
}

// Close terminates the session once; later calls are no-ops.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel(reason)
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("feed %s connection close failed: %v", s.id, err)
	}
}
