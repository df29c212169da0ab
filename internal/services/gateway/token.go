package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// newToken returns a URL-safe random token of n random bytes.
func newToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
