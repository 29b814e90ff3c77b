package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Epic       EpicConfig       `yaml:"epic" mapstructure:"epic"`
	Stream     StreamConfig     `yaml:"stream" mapstructure:"stream"`
	Automation AutomationConfig `yaml:"automation" mapstructure:"automation"`
	Taxi       TaxiConfig       `yaml:"taxi" mapstructure:"taxi"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
}

type ServerConfig struct {
	IP          string   `yaml:"ip" mapstructure:"ip"`
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// StorageConfig points at the SQLite database holding accounts and
// automation settings.
type StorageConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

type AuthConfig struct {
	ClientID       string        `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret   string        `yaml:"client_secret" mapstructure:"client_secret"`
	NotifyCooldown time.Duration `yaml:"notify_cooldown" mapstructure:"notify_cooldown"`
	Store          StoreConfig   `yaml:"store" mapstructure:"store"`
}

type StoreConfig struct {
	Type   string          `yaml:"type" mapstructure:"type"`
	Redis  AuthRedisStore  `yaml:"redis,omitempty" mapstructure:"redis"`
	Memory AuthMemoryStore `yaml:"memory,omitempty" mapstructure:"memory"`
}

type AuthRedisStore struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type AuthMemoryStore struct {
	Cleanup time.Duration `yaml:"cleanup" mapstructure:"cleanup"`
}

// EpicConfig holds the upstream REST base URLs.
type EpicConfig struct {
	OAuthURL       string        `yaml:"oauth_url" mapstructure:"oauth_url"`
	AccountURL     string        `yaml:"account_url" mapstructure:"account_url"`
	PartyURL       string        `yaml:"party_url" mapstructure:"party_url"`
	FriendsURL     string        `yaml:"friends_url" mapstructure:"friends_url"`
	MatchmakingURL string        `yaml:"matchmaking_url" mapstructure:"matchmaking_url"`
	ProfileURL     string        `yaml:"profile_url" mapstructure:"profile_url"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type StreamConfig struct {
	Endpoint             string        `yaml:"endpoint" mapstructure:"endpoint"`
	AdminSender          string        `yaml:"admin_sender" mapstructure:"admin_sender"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	KeepAlive            time.Duration `yaml:"keepalive" mapstructure:"keepalive"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts"`
}

// AutomationConfig carries the engine-wide timings. Per-account settings
// such as the poll interval live with the account.
type AutomationConfig struct {
	RestoreOnBoot     bool          `yaml:"restore_on_boot" mapstructure:"restore_on_boot"`
	PostMatchDelay    time.Duration `yaml:"post_match_delay" mapstructure:"post_match_delay"`
	RejoinRearmDelay  time.Duration `yaml:"rejoin_rearm_delay" mapstructure:"rejoin_rearm_delay"`
	RejoinTimeout     time.Duration `yaml:"rejoin_timeout" mapstructure:"rejoin_timeout"`
	InviteSettleDelay time.Duration `yaml:"invite_settle_delay" mapstructure:"invite_settle_delay"`
	PresenceAvailable string        `yaml:"presence_available" mapstructure:"presence_available"`
	PresenceBusy      string        `yaml:"presence_busy" mapstructure:"presence_busy"`
}

// TaxiConfig carries the defaults of taxi accounts.
type TaxiConfig struct {
	PartyTimeout    time.Duration `yaml:"party_timeout" mapstructure:"party_timeout"`
	Level           int           `yaml:"level" mapstructure:"level"`
	AvailableStatus string        `yaml:"available_status" mapstructure:"available_status"`
	BusyStatus      string        `yaml:"busy_status" mapstructure:"busy_status"`
}

// EventsConfig sizes the application event pipeline and the journal.
type EventsConfig struct {
	Workers   int           `yaml:"workers" mapstructure:"workers"`
	QueueSize int           `yaml:"queue_size" mapstructure:"queue_size"`
	Journal   bool          `yaml:"journal" mapstructure:"journal"`
	Retention time.Duration `yaml:"retention" mapstructure:"retention"`
}
