// Package auth validates the shared-secret credential carried by inbound actions.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/rbright/powerctl/internal/protocol"
)

// HeaderName is the side-channel header carrying the credential.
const HeaderName = "X-Api-Key"

// Guard compares provided credentials against the configured secret.
// It keeps no state between requests.
type Guard struct {
	secret string
}

// NewGuard builds a guard for the configured secret.
func NewGuard(secret string) *Guard {
	return &Guard{secret: strings.TrimSpace(secret)}
}

// Authenticate returns nil when provided matches the configured secret.
func (g *Guard) Authenticate(provided string) error {
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return protocol.ErrAuthRequired
	}
	if !constantTimeEqual(provided, g.secret) {
		return protocol.ErrInvalidCredential
	}
	return nil
}

// Credential picks the credential from the body field, falling back to the header.
func Credential(r *http.Request, bodyKey string) string {
	if strings.TrimSpace(bodyKey) != "" {
		return bodyKey
	}
	return r.Header.Get(HeaderName)
}

// Message maps a guard rejection to the fixed wire message.
func Message(err error) string {
	if errors.Is(err, protocol.ErrAuthRequired) {
		return protocol.MsgAuthRequired
	}
	return protocol.MsgInvalidCredential
}

func constantTimeEqual(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
