package epic

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	perrors "partybot-server-go/internal/platform/errors"
)

// Party privacy presets accepted by PrivacyMeta.
const (
	PrivacyPublic  = "public"
	PrivacyPrivate = "private"

	MetaPrivacySettings = "Default:PrivacySettings_j"
)

type privacySettings struct {
	PartyType                string `json:"partyType"`
	PartyInviteRestriction   string `json:"partyInviteRestriction"`
	OnlyLeaderFriendsCanJoin bool   `json:"bOnlyLeaderFriendsCanJoin"`
}

// PrivacyMeta returns the party meta that applies a privacy preset.
func PrivacyMeta(privacy string) (map[string]string, error) {
	var settings privacySettings
	switch privacy {
	case PrivacyPublic:
		settings = privacySettings{PartyType: "Public", PartyInviteRestriction: "AnyMember"}
	case PrivacyPrivate:
		settings = privacySettings{PartyType: "Private", PartyInviteRestriction: "LeaderOnly", OnlyLeaderFriendsCanJoin: true}
	default:
		return nil, perrors.New(perrors.KindDomain, "epic.privacy", "unknown privacy "+privacy)
	}
	raw, err := sonic.MarshalString(map[string]privacySettings{"PrivacySettings": settings})
	if err != nil {
		return nil, err
	}
	return map[string]string{MetaPrivacySettings: raw}, nil
}

type PartyService struct {
	c *Client
}

// Get returns the account's current party, or nil when it is in none.
func (s *PartyService) Get(ctx context.Context, accountID string) (*Party, error) {
	var out UserParties
	if err := s.c.authed(ctx, accountID, get(joinURL(s.c.cfg.PartyURL, "user", accountID), &out)); err != nil {
		return nil, err
	}
	if len(out.Current) == 0 {
		return nil, nil
	}
	party := out.Current[0]
	return &party, nil
}

// Kick removes memberID from the party on behalf of accountID.
func (s *PartyService) Kick(ctx context.Context, accountID, partyID, memberID string) error {
	return s.c.authed(ctx, accountID, call{
		method: http.MethodDelete,
		url:    joinURL(s.c.cfg.PartyURL, "parties", partyID, "members", memberID),
	})
}

// Leave is a kick of oneself.
func (s *PartyService) Leave(ctx context.Context, accountID, partyID string) error {
	return s.Kick(ctx, accountID, partyID, accountID)
}

// Promote hands the captaincy to memberID.
func (s *PartyService) Promote(ctx context.Context, accountID, partyID, memberID string) error {
	return s.c.authed(ctx, accountID, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.PartyURL, "parties", partyID, "members", memberID, "promote"),
	})
}

// Invite invites friendID into the party and pings them.
func (s *PartyService) Invite(ctx context.Context, accountID, partyID, friendID string) error {
	return s.c.authed(ctx, accountID, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.PartyURL, "parties", partyID, "invites", friendID),
		query:  map[string]string{"sendPing": "true"},
		body:   map[string]string{"urn:epic:invite:platformdata_s": ""},
	})
}

// PatchParty updates party-level meta. A stale revision is retried once with
// the revision reported by the server.
func (s *PartyService) PatchParty(ctx context.Context, accountID, partyID string, revision int, update map[string]string, deleted []string) error {
	if deleted == nil {
		deleted = []string{}
	}
	url := joinURL(s.c.cfg.PartyURL, "parties", partyID)
	return s.patchWithRetry(ctx, accountID, url, revision, func(rev int) any {
		return map[string]any{
			"revision": rev,
			"meta": map[string]any{
				"deleted": deleted,
				"update":  update,
			},
		}
	})
}

// PatchSelf updates accountID's own member meta, with the same retry rule as
// PatchParty.
func (s *PartyService) PatchSelf(ctx context.Context, accountID, partyID string, revision int, update map[string]string, deleted []string) error {
	if deleted == nil {
		deleted = []string{}
	}
	url := joinURL(s.c.cfg.PartyURL, "parties", partyID, "members", accountID, "meta")
	return s.patchWithRetry(ctx, accountID, url, revision, func(rev int) any {
		return map[string]any{
			"revision": rev,
			"deleted":  deleted,
			"update":   update,
		}
	})
}

func (s *PartyService) patchWithRetry(ctx context.Context, accountID, url string, revision int, body func(rev int) any) error {
	err := s.c.authed(ctx, accountID, call{method: http.MethodPatch, url: url, body: body(revision)})
	if !IsErrorCode(err, ErrCodeStaleRevision) {
		return err
	}

	apiErr, _ := AsAPIError(err)
	current, convErr := strconv.Atoi(apiErr.Var(1))
	if convErr != nil {
		return err
	}
	s.c.logger.Debug("stale party revision %d on %s, retrying with %d", revision, url, current)
	return s.c.authed(ctx, accountID, call{method: http.MethodPatch, url: url, body: body(current)})
}

// InviterParties returns the parties reachable through senderID's ping.
func (s *PartyService) InviterParties(ctx context.Context, accountID, senderID string) ([]InviterParty, error) {
	var out []InviterParty
	url := joinURL(s.c.cfg.PartyURL, "user", accountID, "pings", senderID, "parties")
	if err := s.c.authed(ctx, accountID, get(url, &out)); err != nil {
		return nil, err
	}
	return out, nil
}

// JoinRequest carries what AcceptInvite needs about the joining account.
type JoinRequest struct {
	AccountID    string
	DisplayName  string
	ConnectionID string
	Meta         map[string]string
}

// AcceptInvite joins partyID and clears senderID's ping.
func (s *PartyService) AcceptInvite(ctx context.Context, partyID, senderID string, req JoinRequest) error {
	users, err := sonic.MarshalString(map[string]any{
		"users": []map[string]string{{
			"id":   req.AccountID,
			"dn":   req.DisplayName,
			"plat": "WIN",
			"data": `{"CrossplayPreference":"1","SubGame_u":"1"}`,
		}},
	})
	if err != nil {
		return err
	}

	meta := cloneStringMap(req.Meta)
	if meta == nil {
		meta = map[string]string{}
	}
	meta[MetaMemberName] = req.DisplayName
	meta["urn:epic:member:joinrequestusers_j"] = users

	err = s.c.authed(ctx, req.AccountID, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.PartyURL, "parties", partyID, "members", req.AccountID, "join"),
		body: map[string]any{
			"connection": map[string]any{
				"id": req.ConnectionID,
				"meta": map[string]string{
					"urn:epic:conn:platform_s": "WIN",
					"urn:epic:conn:type_s":     "game",
				},
				"yield_leadership": false,
			},
			"meta": meta,
		},
	})
	if err != nil {
		return err
	}

	return s.c.authed(ctx, req.AccountID, call{
		method: http.MethodDelete,
		url:    joinURL(s.c.cfg.PartyURL, "user", req.AccountID, "pings", senderID),
	})
}
