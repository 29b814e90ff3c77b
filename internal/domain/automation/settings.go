package automation

import (
	"context"
	"time"
)

const (
	DefaultMissionCheckInterval = 5.0
	DefaultClaimRewardsDelay    = 1.5
)

// Settings are the per-account automation switches. Intervals are seconds,
// matching what the API accepts.
type Settings struct {
	AutoKick             bool    `json:"autoKick"`
	AutoClaim            bool    `json:"autoClaim"`
	AutoTransfer         bool    `json:"autoTransferMaterials"`
	AutoInvite           bool    `json:"autoInvite"`
	ManagePresence       bool    `json:"managePresence"`
	MissionCheckInterval float64 `json:"missionCheckInterval"`
	ClaimRewardsDelay    float64 `json:"claimRewardsDelay"`
}

// DefaultSettings enables nothing but carries the default timings.
func DefaultSettings() Settings {
	return Settings{
		MissionCheckInterval: DefaultMissionCheckInterval,
		ClaimRewardsDelay:    DefaultClaimRewardsDelay,
	}
}

// Enabled reports whether any automated action is switched on.
func (s Settings) Enabled() bool {
	return s.AutoKick || s.AutoClaim || s.AutoTransfer || s.AutoInvite || s.ManagePresence
}

func (s Settings) normalized() Settings {
	if s.MissionCheckInterval <= 0 {
		s.MissionCheckInterval = DefaultMissionCheckInterval
	}
	if s.ClaimRewardsDelay < 0 {
		s.ClaimRewardsDelay = 0
	}
	return s
}

func (s Settings) pollInterval() time.Duration {
	return time.Duration(s.MissionCheckInterval * float64(time.Second))
}

func (s Settings) claimDelay() time.Duration {
	return time.Duration(s.ClaimRewardsDelay * float64(time.Second))
}

// SettingsRepository persists settings so automation survives restarts.
type SettingsRepository interface {
	Save(ctx context.Context, accountID string, settings Settings) error
	Delete(ctx context.Context, accountID string) error
	List(ctx context.Context) (map[string]Settings, error)
}
