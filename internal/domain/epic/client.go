// Package epic wraps the upstream REST services used by the automation:
// OAuth, party, friends, matchmaking and the profile "compose" endpoint.
package epic

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"partybot-server-go/internal/platform/config"
	perrors "partybot-server-go/internal/platform/errors"
	"partybot-server-go/internal/platform/logging"
)

const defaultUserAgent = "Fortnite/++Fortnite+Release-39.30-CL-49874243-Windows"

// TokenSource hands out bearer tokens per account. force discards any cached
// token first.
type TokenSource interface {
	Token(ctx context.Context, accountID string, force bool) (string, error)
}

// Config holds the per-service base URLs and the OAuth client credentials.
type Config struct {
	OAuthURL       string
	AccountURL     string
	PartyURL       string
	FriendsURL     string
	MatchmakingURL string
	ProfileURL     string
	ClientID       string
	ClientSecret   string
	Timeout        time.Duration
	UserAgent      string
}

// ConfigFrom maps the application config onto the client config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		OAuthURL:       cfg.Epic.OAuthURL,
		AccountURL:     cfg.Epic.AccountURL,
		PartyURL:       cfg.Epic.PartyURL,
		FriendsURL:     cfg.Epic.FriendsURL,
		MatchmakingURL: cfg.Epic.MatchmakingURL,
		ProfileURL:     cfg.Epic.ProfileURL,
		ClientID:       cfg.Auth.ClientID,
		ClientSecret:   cfg.Auth.ClientSecret,
		Timeout:        cfg.Epic.Timeout,
	}
}

// Client is the shared HTTP client behind every service.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger logging.Logger

	mu     sync.RWMutex
	tokens TokenSource

	OAuth       *OAuthService
	Party       *PartyService
	Friends     *FriendsService
	Matchmaking *MatchmakingService
	Profile     *ProfileService
}

func NewClient(cfg Config, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("X-User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	c := &Client{cfg: cfg, http: httpClient, logger: logger}
	c.OAuth = &OAuthService{c: c}
	c.Party = &PartyService{c: c}
	c.Friends = &FriendsService{c: c}
	c.Matchmaking = &MatchmakingService{c: c}
	c.Profile = &ProfileService{c: c}
	return c
}

// SetTokenSource installs the token provider for authenticated calls. It is
// set after construction because the token cache itself uses OAuth.
func (c *Client) SetTokenSource(tokens TokenSource) {
	c.mu.Lock()
	c.tokens = tokens
	c.mu.Unlock()
}

func (c *Client) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// call describes one request.
type call struct {
	method string
	url    string
	query  map[string]string
	body   any
	form   map[string]string
	basic  bool
	bearer string
	out    any
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// send executes the request once with the given bearer token (if any).
func (c *Client) send(ctx context.Context, cl call) error {
	req := c.http.R().SetContext(ctx)
	switch {
	case cl.bearer != "":
		req.SetAuthToken(cl.bearer)
	case cl.basic:
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	}
	if len(cl.query) > 0 {
		req.SetQueryParams(cl.query)
	}
	if cl.form != nil {
		req.SetFormData(cl.form)
	} else if cl.body != nil {
		data, err := sonic.Marshal(cl.body)
		if err != nil {
			return perrors.Wrap(perrors.KindTransport, "epic.encode", "failed to encode request body", err)
		}
		req.SetHeader("Content-Type", "application/json").SetBody(data)
	}

	resp, err := req.Execute(cl.method, cl.url)
	if err != nil {
		return perrors.Wrap(perrors.KindTransport, "epic.request", cl.method+" "+cl.url, err)
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		if apiErr := decodeAPIError(body, cl.method, cl.url, resp.StatusCode()); apiErr != nil {
			return apiErr
		}
		return &StatusError{Method: cl.method, URL: cl.url, HTTPStatus: resp.StatusCode(), Body: string(body)}
	}

	if cl.out != nil && len(body) > 0 {
		if err := sonic.Unmarshal(body, cl.out); err != nil {
			return perrors.Wrap(perrors.KindTransport, "epic.decode", "failed to decode "+cl.url, err)
		}
	}
	return nil
}

// authed sends on behalf of accountID. A rejected token is force-refreshed
// and the request retried once.
func (c *Client) authed(ctx context.Context, accountID string, cl call) error {
	tokens := c.tokenSource()
	if tokens == nil {
		return perrors.New(perrors.KindAuth, "epic.authed", "no token source configured")
	}

	token, err := tokens.Token(ctx, accountID, false)
	if err != nil {
		return err
	}
	cl.bearer = token
	err = c.send(ctx, cl)
	if !isTokenError(err) {
		return err
	}

	c.logger.Debug("access token rejected for %s, retrying with a fresh one", accountID)
	token, err = tokens.Token(ctx, accountID, true)
	if err != nil {
		return err
	}
	cl.bearer = token
	return c.send(ctx, cl)
}

func get(url string, out any) call {
	return call{method: http.MethodGet, url: url, out: out}
}
