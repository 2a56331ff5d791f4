package auth

import "strings"

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) <= len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
