package epic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "partybot-server-go/internal/platform/errors"
)

type fakeTokens struct {
	mu    sync.Mutex
	calls []bool
}

func (f *fakeTokens) Token(_ context.Context, _ string, force bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, force)
	if force {
		return "fresh", nil
	}
	return "cached", nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		OAuthURL:       srv.URL + "/oauth",
		AccountURL:     srv.URL + "/account",
		PartyURL:       srv.URL + "/party",
		FriendsURL:     srv.URL + "/friends",
		MatchmakingURL: srv.URL + "/mm",
		ProfileURL:     srv.URL + "/game",
		ClientID:       "id",
		ClientSecret:   "secret",
	}, nil)
	tokens := &fakeTokens{}
	c.SetTokenSource(tokens)
	return c, tokens
}

func writeAPIError(w http.ResponseWriter, status int, code string, vars ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errorCode":        code,
		"errorMessage":     "boom",
		"messageVars":      vars,
		"numericErrorCode": 1234,
	})
}

func TestAPIErrorDecoded(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusBadRequest, ErrCodeInvalidCredentials)
	}))

	_, err := c.OAuth.ExchangeDeviceAuth(context.Background(), "acc", "dev", "sec")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidCredentials, apiErr.ErrorCode)
	assert.Equal(t, 1234, apiErr.NumericErrorCode)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, http.MethodPost, apiErr.Method)
	assert.True(t, IsErrorCode(err, ErrCodeInvalidCredentials))
	assert.False(t, IsErrorCode(err, ErrCodeStaleRevision))
}

func TestNonAPIErrorBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))

	_, err := c.Party.Get(context.Background(), "acc")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.HTTPStatus)
}

func TestDeviceAuthExchangeForm(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "device_auth", r.PostForm.Get("grant_type"))
		assert.Equal(t, "dev", r.PostForm.Get("device_id"))
		_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":7200,"account_id":"acc"}`)
	}))

	resp, err := c.OAuth.ExchangeDeviceAuth(context.Background(), "acc", "dev", "sec")
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.AccessToken)
	assert.Equal(t, 7200, resp.ExpiresIn)
}

func TestAuthedRetriesOnceWithFreshToken(t *testing.T) {
	var hits atomic.Int32
	c, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeAPIError(w, http.StatusUnauthorized, ErrCodeTokenVerificationFailed)
			return
		}
		_, _ = io.WriteString(w, `{"current":[{"id":"p1","revision":3,"members":[]}]}`)
	}))

	party, err := c.Party.Get(context.Background(), "acc")
	require.NoError(t, err)
	require.NotNil(t, party)
	assert.Equal(t, "p1", party.ID)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []bool{false, true}, tokens.calls)
}

func TestAuthedDoesNotRetryTwice(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeAPIError(w, http.StatusUnauthorized, ErrCodeInvalidToken)
	}))

	err := c.Party.Leave(context.Background(), "acc", "p1")
	assert.True(t, IsErrorCode(err, ErrCodeInvalidToken))
	assert.Equal(t, int32(2), hits.Load())
}

func TestPatchRetriesStaleRevisionOnce(t *testing.T) {
	var revisions []float64
	var mu sync.Mutex
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		revisions = append(revisions, body["revision"].(float64))
		n := len(revisions)
		mu.Unlock()
		if n == 1 {
			writeAPIError(w, http.StatusConflict, ErrCodeStaleRevision, "5", "9")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.Party.PatchParty(context.Background(), "acc", "p1", 5, map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{5, 9}, revisions)
}

func TestPatchSurfacesSecondStaleRevision(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeAPIError(w, http.StatusConflict, ErrCodeStaleRevision, "5", "9")
	}))

	err := c.Party.PatchSelf(context.Background(), "acc", "p1", 5, map[string]string{"k": "v"}, nil)
	assert.True(t, IsErrorCode(err, ErrCodeStaleRevision))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFindPlayer(t *testing.T) {
	var tracked atomic.Bool
	tracked.Store(true)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/mm/findPlayer/acc"))
		if tracked.Load() {
			_, _ = io.WriteString(w, `[{"sessionId":"s1","started":true}]`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))

	session, err := c.Matchmaking.FindPlayer(context.Background(), "acc", "acc")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.Started)

	tracked.Store(false)
	session, err = c.Matchmaking.FindPlayer(context.Background(), "acc", "acc")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestAcceptIncomingSkipsFailures(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/incoming"):
			_, _ = io.WriteString(w, `[{"accountId":"a"},{"accountId":"b"},{"accountId":"c"}]`)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/friends/b"):
			writeAPIError(w, http.StatusConflict, ErrCodeDuplicateFriendship)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	accepted, err := c.Friends.AcceptIncoming(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, accepted)
}

func TestComposeQuery(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/game/profile/acc/client/QueryProfile", r.URL.Path)
		assert.Equal(t, "outpost0", r.URL.Query().Get("profileId"))
		assert.Equal(t, "-1", r.URL.Query().Get("rvn"))
		_, _ = io.WriteString(w, `{"profileRevision":1,"profileChanges":[{"changeType":"fullProfileUpdate","profile":{"profileId":"outpost0","items":{"i1":{"templateId":"WorldItem:wooditemdata","quantity":10}}}}]}`)
	}))

	profile, err := c.Profile.Query(context.Background(), "acc", ProfileStorage)
	require.NoError(t, err)
	require.Contains(t, profile.Items, "i1")
	assert.Equal(t, 10, profile.Items["i1"].Quantity)
}

func TestPartyClone(t *testing.T) {
	p := &Party{
		ID:      "p1",
		Meta:    map[string]string{"a": "1"},
		Config:  map[string]any{"max_size": 16.0},
		Members: []PartyMember{{AccountID: "x", Role: RoleCaptain, Meta: map[string]string{"m": "1"}}},
	}
	cp := p.Clone()
	cp.Meta["a"] = "2"
	cp.Members[0].Meta["m"] = "2"
	cp.Members[0].Role = RoleMember

	assert.Equal(t, "1", p.Meta["a"])
	assert.Equal(t, "1", p.Members[0].Meta["m"])
	assert.Equal(t, "x", p.Captain())
}

func TestTemporary(t *testing.T) {
	assert.True(t, Temporary(&APIError{HTTPStatus: http.StatusTooManyRequests}))
	assert.True(t, Temporary(&APIError{HTTPStatus: http.StatusBadGateway}))
	assert.False(t, Temporary(&APIError{HTTPStatus: http.StatusForbidden, ErrorCode: ErrCodeInvalidToken}))
	assert.False(t, Temporary(perrors.New(perrors.KindAuth, "epic.authed", "no token source configured")))
	assert.True(t, Temporary(perrors.Wrap(perrors.KindTransport, "epic.request", "GET x", io.ErrUnexpectedEOF)))
}

func TestPrivacyMeta(t *testing.T) {
	meta, err := PrivacyMeta(PrivacyPrivate)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"PrivacySettings":{"partyType":"Private","partyInviteRestriction":"LeaderOnly","bOnlyLeaderFriendsCanJoin":true}}`,
		meta[MetaPrivacySettings])

	_, err = PrivacyMeta("friends-of-friends")
	assert.Equal(t, perrors.KindDomain, perrors.KindOf(err))
}

func TestAcceptInviteJoinsAndClearsPing(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var join map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/join") {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&join))
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.Party.AcceptInvite(context.Background(), "p1", "rider", JoinRequest{
		AccountID:    "acc",
		DisplayName:  "Driver",
		ConnectionID: "acc@prod.ol.epicgames.com/res",
		Meta:         map[string]string{"Default:CampaignBackpackRating_d": "145.00000"},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /party/parties/p1/members/acc/join",
		"DELETE /party/user/acc/pings/rider",
	}, calls)
	conn := join["connection"].(map[string]any)
	assert.Equal(t, "acc@prod.ol.epicgames.com/res", conn["id"])
	meta := join["meta"].(map[string]any)
	assert.Equal(t, "Driver", meta[MetaMemberName])
	assert.Equal(t, "145.00000", meta["Default:CampaignBackpackRating_d"])
}

func TestInviterParties(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/party/user/acc/pings/rider/parties", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"p1","revision":3,"members":[],"meta":{}}]`)
	}))

	parties, err := c.Party.InviterParties(context.Background(), "acc", "rider")
	require.NoError(t, err)
	require.Len(t, parties, 1)
	assert.Equal(t, "p1", parties[0].ID)
	assert.Equal(t, 3, parties[0].Revision)
}
