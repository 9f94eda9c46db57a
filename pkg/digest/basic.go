package digest

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// BasicToken returns base64(username:password).
func BasicToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// CheckBasic reports whether an "Authorization: Basic ..." header carries
// exactly username and password.
func CheckBasic(header, username, password string) bool {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return false
	}
	return Equal(strings.TrimSpace(token), BasicToken(username, password))
}

// BasicChallengeHeader builds the WWW-Authenticate value for a Basic challenge.
func BasicChallengeHeader(realm string) string {
	return fmt.Sprintf("Basic realm=%q", realm)
}
