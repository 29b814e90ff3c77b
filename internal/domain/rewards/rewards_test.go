package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"partybot-server-go/internal/domain/epic"
)

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) Compose(ctx context.Context, accountID, operation, profileID string, payload any) (*epic.ComposeResponse, error) {
	args := m.Called(ctx, accountID, operation, profileID, payload)
	resp, _ := args.Get(0).(*epic.ComposeResponse)
	return resp, args.Error(1)
}

func (m *mockProfiles) Query(ctx context.Context, accountID, profileID string) (*epic.Profile, error) {
	args := m.Called(ctx, accountID, profileID)
	profile, _ := args.Get(0).(*epic.Profile)
	return profile, args.Error(1)
}

func campaignProfile() *epic.Profile {
	p := &epic.Profile{
		ProfileID: epic.ProfileCampaign,
		Items: map[string]epic.ProfileItem{
			"q1": {TemplateID: "Quest:daily_a", Attributes: map[string]any{"quest_state": "Completed"}},
			"q2": {TemplateID: "Quest:daily_b", Attributes: map[string]any{"quest_state": "Active"}},
			"c1": {TemplateID: "CardPack:zcp_reward", Attributes: map[string]any{"match_statistics": map[string]any{"x": 1.0}}},
			"c2": {TemplateID: "CardPack:zcp_cache", Attributes: map[string]any{"pack_source": "ItemCache"}},
			"c3": {TemplateID: "CardPack:zcp_store", Attributes: map[string]any{}},
		},
	}
	p.Stats.Attributes = map[string]any{
		"mission_alert_redemption_record": map[string]any{
			"pendingMissionAlertRewards": map[string]any{"items": []any{map[string]any{"itemType": "x"}}},
		},
		"difficulty_increase_rewards_record": map[string]any{"pendingRewards": []any{}},
	}
	return p
}

func TestClaimRunsEligibleSteps(t *testing.T) {
	profiles := &mockProfiles{}
	profiles.On("Query", mock.Anything, "acc", epic.ProfileCampaign).Return(campaignProfile(), nil)
	profiles.On("Compose", mock.Anything, "acc", "ClaimQuestReward", epic.ProfileCampaign,
		map[string]any{"questId": "q1", "selectedRewardIndex": 0}).Return(&epic.ComposeResponse{}, nil).Once()
	profiles.On("Compose", mock.Anything, "acc", "OpenCardPackBatch", epic.ProfileCampaign,
		map[string]any{"cardPackItemIds": []string{"c1", "c2"}}).Return(&epic.ComposeResponse{}, nil).Once()
	profiles.On("Compose", mock.Anything, "acc", "RedeemSTWAccoladeTokens", epic.ProfileAthena, nil).
		Return(nil, errors.New("boom")).Once()
	profiles.On("Compose", mock.Anything, "acc", "ClaimMissionAlertRewards", epic.ProfileCampaign, nil).
		Return(&epic.ComposeResponse{}, nil).Once()

	report, err := New(profiles, nil).Claim(context.Background(), "acc", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Quests)
	assert.Equal(t, 2, report.CardPacks)
	assert.True(t, report.MissionAlerts)
	assert.False(t, report.DifficultyRewards)
	assert.Equal(t, []string{"RedeemSTWAccoladeTokens"}, report.Failed)
	profiles.AssertExpectations(t)
	profiles.AssertNotCalled(t, "Compose", mock.Anything, "acc", "ClaimDifficultyIncreaseRewards", mock.Anything, mock.Anything)
}

func TestClaimQueryFailure(t *testing.T) {
	profiles := &mockProfiles{}
	profiles.On("Query", mock.Anything, "acc", epic.ProfileCampaign).Return(nil, errors.New("down"))

	_, err := New(profiles, nil).Claim(context.Background(), "acc", 0)
	assert.Error(t, err)
	profiles.AssertNotCalled(t, "Compose", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestClaimDelayHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&mockProfiles{}, nil).Claim(ctx, "acc", time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanTransferCapsPerMaterial(t *testing.T) {
	ops, moved := planTransfer(map[string]epic.ProfileItem{
		"w1": {TemplateID: "WorldItem:wooditemdata", Quantity: 3000},
		"w2": {TemplateID: "WorldItem:wooditemdata", Quantity: 3000},
		"w3": {TemplateID: "WorldItem:wooditemdata", Quantity: 10},
		"s1": {TemplateID: "WorldItem:stoneitemdata", Quantity: 999},
		"x1": {TemplateID: "WorldItem:copperitemdata", Quantity: 50},
	})

	assert.Equal(t, []transferOperation{
		{ItemID: "s1", Quantity: 999},
		{ItemID: "w1", Quantity: 3000},
		{ItemID: "w2", Quantity: 2000},
	}, ops)
	assert.Equal(t, 5000, moved["WorldItem:wooditemdata"])
	assert.Equal(t, 999, moved["WorldItem:stoneitemdata"])
	assert.Zero(t, moved["WorldItem:metalitemdata"])
}

func TestTransferMaterials(t *testing.T) {
	profiles := &mockProfiles{}
	profiles.On("Query", mock.Anything, "acc", epic.ProfileStorage).Return(&epic.Profile{
		Items: map[string]epic.ProfileItem{
			"m1": {TemplateID: "WorldItem:metalitemdata", Quantity: 7000},
		},
	}, nil)
	profiles.On("Compose", mock.Anything, "acc", "StorageTransfer", epic.ProfileTheater, map[string]any{
		"transferOperations": []transferOperation{{ItemID: "m1", Quantity: 5000}},
	}).Return(&epic.ComposeResponse{}, nil).Once()

	report, err := New(profiles, nil).TransferMaterials(context.Background(), "acc", 0)
	require.NoError(t, err)
	assert.Equal(t, 5000, report.Moved["WorldItem:metalitemdata"])
	profiles.AssertExpectations(t)
}

func TestTransferSkipsEmptyStorage(t *testing.T) {
	profiles := &mockProfiles{}
	profiles.On("Query", mock.Anything, "acc", epic.ProfileStorage).Return(&epic.Profile{Items: map[string]epic.ProfileItem{}}, nil)

	report, err := New(profiles, nil).TransferMaterials(context.Background(), "acc", 0)
	require.NoError(t, err)
	assert.Empty(t, report.Moved)
	profiles.AssertNotCalled(t, "Compose", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
