// Package rewards claims post-mission rewards and moves building materials
// out of storage.
package rewards

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"partybot-server-go/internal/domain/epic"
	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
)

// MaxMaterialTransfer caps how much of one material leaves storage per run.
const MaxMaterialTransfer = 5000

// Building material templates moved by TransferMaterials.
var materialTemplates = []string{
	"WorldItem:wooditemdata",
	"WorldItem:stoneitemdata",
	"WorldItem:metalitemdata",
}

// ProfileClient runs profile operations.
type ProfileClient interface {
	Compose(ctx context.Context, accountID, operation, profileID string, payload any) (*epic.ComposeResponse, error)
	Query(ctx context.Context, accountID, profileID string) (*epic.Profile, error)
}

type Service struct {
	profiles ProfileClient
	logger   logging.Logger
}

func New(profiles ProfileClient, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{profiles: profiles, logger: logger}
}

// ClaimReport summarizes one Claim run. Failed names the steps that errored.
type ClaimReport struct {
	Quests            int      `json:"quests"`
	CardPacks         int      `json:"card_packs"`
	MissionAlerts     bool     `json:"mission_alerts"`
	DifficultyRewards bool     `json:"difficulty_rewards"`
	Failed            []string `json:"failed,omitempty"`
}

// Claim waits delay, reads the campaign profile and runs every claim step
// concurrently. A failing step never stops the others.
func (s *Service) Claim(ctx context.Context, accountID string, delay time.Duration) (*ClaimReport, error) {
	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}

	profile, err := s.profiles.Query(ctx, accountID, epic.ProfileCampaign)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindTransport, "rewards.claim", "query campaign profile", err)
	}

	quests := completedQuests(profile)
	packs := openablePacks(profile)
	attrs := attributesJSON(profile)
	report := &ClaimReport{
		Quests:            len(quests),
		CardPacks:         len(packs),
		MissionAlerts:     gjson.GetBytes(attrs, "mission_alert_redemption_record.pendingMissionAlertRewards.items.#").Int() > 0,
		DifficultyRewards: gjson.GetBytes(attrs, "difficulty_increase_rewards_record.pendingRewards.#").Int() > 0,
	}

	var mu sync.Mutex
	var g errgroup.Group
	step := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				s.logger.Warn("reward step %s for %s failed: %v", name, accountID, err)
				mu.Lock()
				report.Failed = append(report.Failed, name)
				mu.Unlock()
			}
			return nil
		})
	}

	for _, questID := range quests {
		step("ClaimQuestReward", func() error {
			return s.compose(ctx, accountID, "ClaimQuestReward", epic.ProfileCampaign, map[string]any{
				"questId":             questID,
				"selectedRewardIndex": 0,
			})
		})
	}
	if len(packs) > 0 {
		step("OpenCardPackBatch", func() error {
			return s.compose(ctx, accountID, "OpenCardPackBatch", epic.ProfileCampaign, map[string]any{
				"cardPackItemIds": packs,
			})
		})
	}
	step("RedeemSTWAccoladeTokens", func() error {
		return s.compose(ctx, accountID, "RedeemSTWAccoladeTokens", epic.ProfileAthena, nil)
	})
	if report.MissionAlerts {
		step("ClaimMissionAlertRewards", func() error {
			return s.compose(ctx, accountID, "ClaimMissionAlertRewards", epic.ProfileCampaign, nil)
		})
	}
	if report.DifficultyRewards {
		step("ClaimDifficultyIncreaseRewards", func() error {
			return s.compose(ctx, accountID, "ClaimDifficultyIncreaseRewards", epic.ProfileCampaign, nil)
		})
	}
	_ = g.Wait()

	sort.Strings(report.Failed)
	return report, nil
}

type transferOperation struct {
	ItemID        string `json:"itemId"`
	Quantity      int    `json:"quantity"`
	ToStorage     bool   `json:"toStorage"`
	NewItemIDHint string `json:"newItemIdHint"`
}

// TransferReport lists how much of each material template was moved.
type TransferReport struct {
	Moved map[string]int `json:"moved"`
}

// TransferMaterials waits delay and moves up to MaxMaterialTransfer of each
// building material from storage into the backpack.
func (s *Service) TransferMaterials(ctx context.Context, accountID string, delay time.Duration) (*TransferReport, error) {
	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}

	storage, err := s.profiles.Query(ctx, accountID, epic.ProfileStorage)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindTransport, "rewards.transfer", "query storage profile", err)
	}

	ops, moved := planTransfer(storage.Items)
	report := &TransferReport{Moved: moved}
	if len(ops) == 0 {
		return report, nil
	}

	err = s.compose(ctx, accountID, "StorageTransfer", epic.ProfileTheater, map[string]any{
		"transferOperations": ops,
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// planTransfer takes items in id order until each template hits the cap.
func planTransfer(items map[string]epic.ProfileItem) ([]transferOperation, map[string]int) {
	ids := make([]string, 0, len(items))
	for id, item := range items {
		if isMaterial(item.TemplateID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	moved := make(map[string]int, len(materialTemplates))
	var ops []transferOperation
	for _, id := range ids {
		item := items[id]
		quantity := min(item.Quantity, MaxMaterialTransfer-moved[item.TemplateID])
		if quantity <= 0 {
			continue
		}
		moved[item.TemplateID] += quantity
		ops = append(ops, transferOperation{ItemID: id, Quantity: quantity})
	}
	return ops, moved
}

func isMaterial(templateID string) bool {
	for _, t := range materialTemplates {
		if t == templateID {
			return true
		}
	}
	return false
}

func completedQuests(p *epic.Profile) []string {
	var ids []string
	for id, item := range p.Items {
		if strings.HasPrefix(item.TemplateID, "Quest:") && item.Attributes["quest_state"] == "Completed" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func openablePacks(p *epic.Profile) []string {
	var ids []string
	for id, item := range p.Items {
		if !strings.HasPrefix(item.TemplateID, "CardPack:") {
			continue
		}
		if truthy(item.Attributes["match_statistics"]) || item.Attributes["pack_source"] == "ItemCache" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func attributesJSON(p *epic.Profile) []byte {
	raw, err := sonic.Marshal(p.Stats.Attributes)
	if err != nil {
		return nil
	}
	return raw
}

func (s *Service) compose(ctx context.Context, accountID, operation, profileID string, payload any) error {
	_, err := s.profiles.Compose(ctx, accountID, operation, profileID, payload)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
