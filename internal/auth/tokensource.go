package auth

import "strings"

const (
	// AccessCookieName is the cookie carrying the access token
	AccessCookieName = "access_token"
	// RefreshCookieName is the cookie carrying the refresh token
	RefreshCookieName = "refresh_token"
)

// ExtractToken picks the access token from a request: the cookie wins over
// the Authorization header so browser sessions are not hijacked by a stale
// bearer value.
func ExtractToken(cookie, authorizationHeader string) string {
	if cookie != "" {
		return cookie
	}
	const prefix = "Bearer "
	if len(authorizationHeader) > len(prefix) && strings.EqualFold(authorizationHeader[:len(prefix)], prefix) {
		return strings.TrimSpace(authorizationHeader[len(prefix):])
	}
	return ""
}
