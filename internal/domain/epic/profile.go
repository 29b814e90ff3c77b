package epic

import (
	"context"
	"net/http"
)

// Profile ids used by the reward and transfer steps.
const (
	ProfileCampaign = "campaign"
	ProfileAthena   = "athena"
	ProfileStorage  = "outpost0"
	ProfileTheater  = "theater0"
)

// ProfileItem is one inventory entry of a game profile.
type ProfileItem struct {
	TemplateID string         `json:"templateId"`
	Attributes map[string]any `json:"attributes"`
	Quantity   int            `json:"quantity"`
}

type Profile struct {
	ID        string                 `json:"_id"`
	AccountID string                 `json:"accountId"`
	ProfileID string                 `json:"profileId"`
	Revision  int                    `json:"rvn"`
	Items     map[string]ProfileItem `json:"items"`
	Stats     struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"stats"`
}

type ProfileChange struct {
	ChangeType string   `json:"changeType"`
	Profile    *Profile `json:"profile,omitempty"`
}

// ComposeResponse is the envelope returned by every compose operation.
type ComposeResponse struct {
	ProfileRevision int             `json:"profileRevision"`
	ProfileID       string          `json:"profileId"`
	ProfileChanges  []ProfileChange `json:"profileChanges"`
}

type ProfileService struct {
	c *Client
}

// Compose runs the named profile operation for accountID.
func (s *ProfileService) Compose(ctx context.Context, accountID, operation, profileID string, payload any) (*ComposeResponse, error) {
	route := "client"
	if operation == "QueryPublicProfile" {
		route = "public"
	}
	if payload == nil {
		payload = map[string]any{}
	}

	var out ComposeResponse
	err := s.c.authed(ctx, accountID, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.ProfileURL, "profile", accountID, route, operation),
		query:  map[string]string{"profileId": profileID, "rvn": "-1"},
		body:   payload,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Query returns the full profile, or an empty one when the response carries
// no full-profile change.
func (s *ProfileService) Query(ctx context.Context, accountID, profileID string) (*Profile, error) {
	resp, err := s.Compose(ctx, accountID, "QueryProfile", profileID, nil)
	if err != nil {
		return nil, err
	}
	for _, change := range resp.ProfileChanges {
		if change.Profile != nil {
			return change.Profile, nil
		}
	}
	return &Profile{ProfileID: profileID, Items: map[string]ProfileItem{}}, nil
}
