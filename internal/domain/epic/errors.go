package epic

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	perrors "partybot-server-go/internal/platform/errors"
)

// Upstream error codes the service reacts to.
const (
	ErrCodeInvalidCredentials       = "errors.com.epicgames.account.invalid_account_credentials"
	ErrCodeAccountNotFound          = "errors.com.epicgames.account.account_not_found"
	ErrCodeCorrectiveAction         = "errors.com.epicgames.oauth.corrective_action_required"
	ErrCodeTokenVerificationFailed  = "errors.com.epicgames.common.authentication.token_verification_failed"
	ErrCodeInvalidToken             = "errors.com.epicgames.common.oauth.invalid_token"
	ErrCodeStaleRevision            = "errors.com.epicgames.social.party.stale_revision"
	ErrCodeFriendshipNotFound       = "errors.com.epicgames.friends.friendship_not_found"
	ErrCodeDuplicateFriendship      = "errors.com.epicgames.friends.duplicate_friendship"
	ErrCodeFriendRequestAlreadySent = "errors.com.epicgames.friends.friend_request_already_sent"
)

// APIError is the structured error body returned by the upstream services.
type APIError struct {
	ErrorCode        string   `json:"errorCode"`
	ErrorMessage     string   `json:"errorMessage"`
	MessageVars      []string `json:"messageVars"`
	NumericErrorCode int      `json:"numericErrorCode"`
	CorrectiveAction string   `json:"correctiveAction,omitempty"`
	ContinuationURL  string   `json:"continuationUrl,omitempty"`

	Method     string `json:"-"`
	URL        string `json:"-"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.HTTPStatus, e.ErrorCode, e.ErrorMessage)
}

// Var returns messageVars[i] or "" when absent.
func (e *APIError) Var(i int) string {
	if i < 0 || i >= len(e.MessageVars) {
		return ""
	}
	return e.MessageVars[i]
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries one of the given upstream codes.
func IsErrorCode(err error, codes ...string) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode == code {
			return true
		}
	}
	return false
}

// Temporary reports whether a failed call is worth repeating: throttling and
// server errors are, other upstream rejections are not.
func Temporary(err error) bool {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.HTTPStatus == http.StatusTooManyRequests || apiErr.HTTPStatus >= http.StatusInternalServerError
	}
	return perrors.Retryable(err)
}

// isTokenError marks errors that a fresh access token can fix.
func isTokenError(err error) bool {
	return IsErrorCode(err, ErrCodeTokenVerificationFailed, ErrCodeInvalidToken)
}

// decodeAPIError returns nil when body is not an upstream error document.
func decodeAPIError(body []byte, method, url string, status int) *APIError {
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "errorCode").Exists() {
		return nil
	}

	apiErr := &APIError{}
	if err := sonic.Unmarshal(body, apiErr); err != nil {
		// messageVars occasionally carries numbers; fall back to a lenient read.
		apiErr = &APIError{
			ErrorCode:        gjson.GetBytes(body, "errorCode").String(),
			ErrorMessage:     gjson.GetBytes(body, "errorMessage").String(),
			NumericErrorCode: int(gjson.GetBytes(body, "numericErrorCode").Int()),
		}
		for _, v := range gjson.GetBytes(body, "messageVars").Array() {
			apiErr.MessageVars = append(apiErr.MessageVars, v.String())
		}
	}
	apiErr.Method = method
	apiErr.URL = url
	apiErr.HTTPStatus = status
	return apiErr
}

// StatusError is returned for non-2xx responses without an upstream error body.
type StatusError struct {
	Method     string
	URL        string
	HTTPStatus int
	Body       string
}

func (e *StatusError) Error() string {
	return e.Method + " " + e.URL + ": unexpected status " + strconv.Itoa(e.HTTPStatus)
}
