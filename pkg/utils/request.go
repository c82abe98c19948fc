package utils

import (
	"net/http"
	"strings"
)

// BearerToken extracts the credential from the Authorization header, falling
// back to the access_token query parameter for clients that cannot set headers.
// It returns "" when no credential is present.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
