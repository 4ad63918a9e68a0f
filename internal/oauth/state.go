package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrStateMismatch is returned when the callback state does not match the
// one issued with the consent URL.
var ErrStateMismatch = errors.New("oauth state mismatch")

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CheckState compares the state returned by the provider with the issued one.
func CheckState(issued, returned string) error {
	if issued == "" || subtle.ConstantTimeCompare([]byte(issued), []byte(returned)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
