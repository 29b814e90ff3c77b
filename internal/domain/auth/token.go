package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// upstream access tokens carry this prefix in front of the JWT.
const eg1Prefix = "eg1~"

// expiryFromJWT reads the exp claim of an access token without verifying the
// signature. The second return is false when the token is not a JWT or
// carries no exp claim.
func expiryFromJWT(accessToken string) (time.Time, bool) {
	raw := strings.TrimPrefix(accessToken, eg1Prefix)
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
