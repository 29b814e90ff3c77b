package presence

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"partybot-server-go/internal/platform/logging"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
)

// Handlers receive connection events. All of them run on the read
// goroutine; nil handlers are skipped.
type Handlers struct {
	SessionStarted func()
	Message        func(Message)
	StreamError    func(error)

	// Disconnected runs exactly once when the read loop ends.
	Disconnected func(error)
}

// Options configures one dial.
type Options struct {
	Endpoint         string
	AccountID        string
	Token            string
	Resource         string
	KeepAlive        time.Duration
	HandshakeTimeout time.Duration
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, opts Options, h Handlers) (Conn, error)
}

// Conn is an open stream connection.
type Conn interface {
	SendPresence(ctx context.Context, p Presence) error
	Close() error
}

// WebsocketDialer dials the stream over gorilla/websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	logger logging.Logger
}

func NewDialer(logger logging.Logger) *WebsocketDialer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger: logger,
	}
}

// Dial performs the websocket handshake, sends the open frame and starts
// the read loop. It returns before the session is established; the caller
// waits for Handlers.SessionStarted.
func (d *WebsocketDialer) Dial(ctx context.Context, opts Options, h Handlers) (Conn, error) {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	hsCtx, cancel := context.WithTimeoutCause(ctx, timeout, ErrHandshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.Token)
	socket, _, err := d.dialer.DialContext(hsCtx, opts.Endpoint, header)
	if err != nil {
		if errors.Is(context.Cause(hsCtx), ErrHandshakeTimeout) {
			return nil, ErrHandshakeTimeout
		}
		return nil, err
	}

	c := &conn{
		socket:    socket,
		handlers:  h,
		logger:    d.logger,
		keepAlive: opts.KeepAlive,
		done:      make(chan struct{}),
	}
	if err := c.write(Frame{
		Kind:      KindOpen,
		AccountID: opts.AccountID,
		Token:     opts.Token,
		Resource:  opts.Resource,
	}); err != nil {
		_ = socket.Close()
		return nil, err
	}

	go c.readLoop()
	if c.keepAlive > 0 {
		go c.pingLoop()
	}
	return c, nil
}

type conn struct {
	socket    *websocket.Conn
	handlers  Handlers
	logger    logging.Logger
	keepAlive time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

func (c *conn) write(f Frame) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	data, err := sonic.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.socket.WriteMessage(websocket.TextMessage, data)
}

// SendPresence broadcasts a presence update.
func (c *conn) SendPresence(ctx context.Context, p Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(Frame{Kind: KindPresence, Status: p.Status, Show: p.Show})
}

// Close ends the connection. The read loop still reports Disconnected.
func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.socket.Close()
}

func (c *conn) readLoop() {
	var loopErr error
	defer func() {
		localClose := c.closed.Swap(true)
		close(c.done)
		_ = c.socket.Close()
		if localClose {
			loopErr = ErrClosed
		}
		if c.handlers.Disconnected != nil {
			c.handlers.Disconnected(loopErr)
		}
	}()

	if c.keepAlive > 0 {
		_ = c.socket.SetReadDeadline(time.Now().Add(2 * c.keepAlive))
		c.socket.SetPongHandler(func(string) error {
			return c.socket.SetReadDeadline(time.Now().Add(2 * c.keepAlive))
		})
	}

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			loopErr = err
			return
		}
		if c.keepAlive > 0 {
			_ = c.socket.SetReadDeadline(time.Now().Add(2 * c.keepAlive))
		}

		var f Frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping undecodable frame: %v", err)
			continue
		}

		switch f.Kind {
		case KindSession:
			if c.handlers.SessionStarted != nil {
				c.handlers.SessionStarted()
			}
		case KindMessage:
			if c.handlers.Message != nil {
				c.handlers.Message(Message{ID: f.ID, From: f.From, To: f.To, Type: f.Type, Body: f.Body})
			}
		case KindError:
			if c.handlers.StreamError != nil {
				c.handlers.StreamError(&StreamError{Condition: f.Condition, Text: f.Text})
			}
		case KindClose:
			loopErr = ErrServerClosed
			return
		default:
			c.logger.Debug("ignoring frame kind %q", f.Kind)
		}
	}
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("keepalive ping failed: %v", err)
				return
			}
		}
	}
}
