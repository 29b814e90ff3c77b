package epic

import (
	"context"
	"net/http"
	"strings"
)

// TokenResponse is the OAuth token endpoint payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ExpiresAt   string `json:"expires_at"`
	TokenType   string `json:"token_type"`
	AccountID   string `json:"account_id"`
	ClientID    string `json:"client_id"`
	DisplayName string `json:"displayName"`
}

// DeviceAuth is a long-lived device credential.
type DeviceAuth struct {
	DeviceID  string `json:"deviceId"`
	AccountID string `json:"accountId"`
	Secret    string `json:"secret"`
}

type OAuthService struct {
	c *Client
}

// ExchangeDeviceAuth trades a device credential for an access token.
func (s *OAuthService) ExchangeDeviceAuth(ctx context.Context, accountID, deviceID, secret string) (*TokenResponse, error) {
	var out TokenResponse
	err := s.c.send(ctx, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.OAuthURL, "token"),
		basic:  true,
		form: map[string]string{
			"grant_type": "device_auth",
			"account_id": accountID,
			"device_id":  deviceID,
			"secret":     secret,
			"token_type": "eg1",
		},
		out: &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangeCode trades a one-time exchange code for an access token. Used when
// registering a new account.
func (s *OAuthService) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	code = strings.NewReplacer("|", "", "`", "", "'", "", `"`, "").Replace(strings.TrimSpace(code))

	var out TokenResponse
	err := s.c.send(ctx, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.OAuthURL, "token"),
		basic:  true,
		form: map[string]string{
			"grant_type":    "exchange_code",
			"exchange_code": code,
			"token_type":    "eg1",
		},
		out: &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDeviceAuth mints a device credential with a freshly issued token.
func (s *OAuthService) CreateDeviceAuth(ctx context.Context, accountID, accessToken string) (*DeviceAuth, error) {
	var out DeviceAuth
	err := s.c.send(ctx, call{
		method: http.MethodPost,
		url:    joinURL(s.c.cfg.AccountURL, accountID, "deviceAuth"),
		bearer: accessToken,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
