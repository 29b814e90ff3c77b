package taxi

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"partybot-server-go/internal/platform/config"
	perrors "partybot-server-go/internal/platform/errors"
)

// Member meta written when the taxi joins a party.
const (
	MetaFORTStats       = "Default:FORTStats_j"
	MetaCommanderRating = "Default:CampaignCommanderLoadoutRating_d"
	MetaBackpackRating  = "Default:CampaignBackpackRating_d"
)

const maxLevel = 999

var fortStatKeys = []string{
	"fortitude", "offense", "resistance", "tech",
	"teamFortitude", "teamOffense", "teamResistance", "teamTech",
	"fortitude_Phoenix", "offense_Phoenix", "resistance_Phoenix", "tech_Phoenix",
	"teamFortitude_Phoenix", "teamOffense_Phoenix", "teamResistance_Phoenix", "teamTech_Phoenix",
}

// Settings configure one taxi account.
type Settings struct {
	// Level is the power level advertised to the party.
	Level int `json:"level"`

	// FORT is written to every FORTStats entry. Zero leaves the stats out.
	FORT int `json:"fort"`

	AvailableStatus          string `json:"availableStatus"`
	BusyStatus               string `json:"busyStatus"`
	AutoAcceptFriendRequests bool   `json:"autoAcceptFriendRequests"`
}

// DefaultSettings returns the built-in taxi defaults.
func DefaultSettings() Settings {
	return Settings{
		Level:           145,
		AvailableStatus: "Taxi available",
		BusyStatus:      "Taxi busy",
	}
}

// SettingsFrom overlays the configured defaults on DefaultSettings.
func SettingsFrom(cfg config.TaxiConfig) Settings {
	s := DefaultSettings()
	if cfg.Level > 0 {
		s.Level = cfg.Level
	}
	if cfg.AvailableStatus != "" {
		s.AvailableStatus = cfg.AvailableStatus
	}
	if cfg.BusyStatus != "" {
		s.BusyStatus = cfg.BusyStatus
	}
	return s
}

// merged fills the zero fields of s from defaults and validates the result.
func (s Settings) merged(defaults Settings) (Settings, error) {
	if s.Level == 0 {
		s.Level = defaults.Level
	}
	if strings.TrimSpace(s.AvailableStatus) == "" {
		s.AvailableStatus = defaults.AvailableStatus
	}
	if strings.TrimSpace(s.BusyStatus) == "" {
		s.BusyStatus = defaults.BusyStatus
	}
	if s.FORT == 0 {
		s.FORT = defaults.FORT
	}
	if s.Level < 1 || s.Level > maxLevel {
		return s, perrors.New(perrors.KindDomain, "taxi.settings", "level must be between 1 and "+strconv.Itoa(maxLevel))
	}
	if s.FORT < 0 {
		return s, perrors.New(perrors.KindDomain, "taxi.settings", "fort must not be negative")
	}
	return s, nil
}

type fortStats struct {
	FORTStats map[string]int `json:"FORTStats"`
}

// memberMeta is the member meta that advertises the configured power level.
func (s Settings) memberMeta() (map[string]string, error) {
	rating := strconv.Itoa(s.Level) + ".00000"
	meta := map[string]string{
		MetaCommanderRating: rating,
		MetaBackpackRating:  rating,
	}
	if s.FORT > 0 {
		stats := fortStats{FORTStats: make(map[string]int, len(fortStatKeys))}
		for _, key := range fortStatKeys {
			stats.FORTStats[key] = s.FORT
		}
		raw, err := sonic.ConfigStd.MarshalToString(stats)
		if err != nil {
			return nil, err
		}
		meta[MetaFORTStats] = raw
	}
	return meta, nil
}
