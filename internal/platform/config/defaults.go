package config

import "time"

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:          "127.0.0.1",
			Port:        8420,
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "partybot.log",
		},
		Storage: StorageConfig{
			DSN: "data/partybot.db",
		},
		Auth: AuthConfig{
			// fortniteAndroidGameClient
			ClientID:       "3f69e56c7649492c8cc29f1af08a8a12",
			ClientSecret:   "b51ee9cb12234f50a69efa67ef53812e",
			NotifyCooldown: 10 * time.Second,
			Store: StoreConfig{
				Type: "memory",
				Memory: AuthMemoryStore{
					Cleanup: time.Minute,
				},
				Redis: AuthRedisStore{
					Addr:   "127.0.0.1:6379",
					Prefix: "partybot:token:",
				},
			},
		},
		Epic: EpicConfig{
			OAuthURL:       "https://account-public-service-prod.ol.epicgames.com/account/api/oauth",
			AccountURL:     "https://account-public-service-prod.ol.epicgames.com/account/api/public/account",
			PartyURL:       "https://party-service-prod.ol.epicgames.com/party/api/v1/Fortnite",
			FriendsURL:     "https://friends-public-service-prod.ol.epicgames.com/friends/api/v1",
			MatchmakingURL: "https://fngw-mcp-gc-livefn.ol.epicgames.com/fortnite/api/matchmaking/session",
			ProfileURL:     "https://fngw-mcp-gc-livefn.ol.epicgames.com/fortnite/api/game/v2",
			Timeout:        30 * time.Second,
		},
		Stream: StreamConfig{
			Endpoint:             "wss://xmpp-service-prod.ol.epicgames.com",
			AdminSender:          "xmpp-admin@prod.ol.epicgames.com",
			ConnectTimeout:       15 * time.Second,
			KeepAlive:            30 * time.Second,
			MaxReconnectAttempts: 50,
		},
		Automation: AutomationConfig{
			RestoreOnBoot:     true,
			PostMatchDelay:    60 * time.Second,
			RejoinRearmDelay:  20 * time.Second,
			RejoinTimeout:     20 * time.Second,
			InviteSettleDelay: 10 * time.Second,
			PresenceAvailable: "Available",
			PresenceBusy:      "Busy",
		},
		Taxi: TaxiConfig{
			PartyTimeout:    3 * time.Minute,
			Level:           145,
			AvailableStatus: "Taxi available",
			BusyStatus:      "Taxi busy",
		},
		Events: EventsConfig{
			Workers:   1,
			QueueSize: 256,
			Journal:   true,
			Retention: 7 * 24 * time.Hour,
		},
	}
}
