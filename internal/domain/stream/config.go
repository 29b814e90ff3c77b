package stream

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"partybot-server-go/internal/platform/config"
)

const (
	PurposeAutomation = "automation"
	PurposePresence   = "presence"
	PurposeParty      = "party"
	PurposeTaxi       = "taxi"
)

const (
	DefaultConnectTimeout       = 15 * time.Second
	DefaultKeepAlive            = 30 * time.Second
	DefaultMaxReconnectAttempts = 50
	DefaultAdminSender          = "xmpp-admin@prod.ol.epicgames.com"

	maxReconnectDelay = 30 * time.Second
	resourcePrefix    = "V2:Fortnite:WIN::"
	jidDomain         = "prod.ol.epicgames.com"
)

var (
	// ErrNotEstablished is returned by presence writes before the session is up.
	ErrNotEstablished = errors.New("stream session not established")
	// ErrConnectTimeout is returned when no session starts within the connect timeout.
	ErrConnectTimeout = errors.New("stream connect timed out")
	// ErrSessionClosed is returned when a session is torn down mid-connect.
	ErrSessionClosed = errors.New("stream session closed")
)

// Config tunes stream sessions; zero fields take the package defaults.
type Config struct {
	Endpoint             string
	AdminSender          string
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectAttempts int
}

// ConfigFrom maps the stream section of the application config.
func ConfigFrom(cfg config.StreamConfig) Config {
	return Config{
		Endpoint:             cfg.Endpoint,
		AdminSender:          cfg.AdminSender,
		ConnectTimeout:       cfg.ConnectTimeout,
		KeepAlive:            cfg.KeepAlive,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}
}

func (c Config) withDefaults() Config {
	if c.AdminSender == "" {
		c.AdminSender = DefaultAdminSender
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return c
}

// ReconnectDelay is min(1s * 2^attempts, 30s).
func ReconnectDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 5 {
		return maxReconnectDelay
	}
	return min(time.Second<<attempts, maxReconnectDelay)
}

// newResource returns a client resource with 32 random uppercase hex digits.
func newResource() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return resourcePrefix + strings.ToUpper(hex)
}
