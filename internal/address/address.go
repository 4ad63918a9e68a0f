// Package address validates and normalizes recipient email addresses.
//
// Only syntax is checked. Whether the domain can actually receive mail
// (DNS/MX) is never looked up.
package address

import (
	"errors"
	"regexp"
	"strings"
)

const (
	// MaxLength is the longest address accepted (RFC 5321 forward-path limit).
	MaxLength = 254
	// MaxLocalLength is the longest local part accepted.
	MaxLocalLength = 64
	maxLabelLength = 63
)

var (
	// ErrEmptyInput is returned for an address that is empty after trimming.
	ErrEmptyInput = errors.New("address must not be empty")
	// ErrMalformedAddress is returned when the grammar check fails.
	ErrMalformedAddress = errors.New("invalid email format")
)

var (
	localPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+$`)
	labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]*[a-z0-9])?$`)
)

// Address is a normalized, syntactically valid email address.
// Values are only produced by Validate; the zero value means "no address".
type Address string

func (a Address) String() string { return string(a) }

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool { return a == "" }

// Result is the outcome of Validate. Exactly one of Address or Err is set;
// Reason is the human-readable form of Err.
type Result struct {
	Address Address
	Reason  string
	Err     error
}

// Valid reports whether the input passed validation.
func (r Result) Valid() bool { return r.Err == nil }

func invalid(err error) Result {
	return Result{Reason: err.Error(), Err: err}
}

// Sanitize trims surrounding whitespace and lowercases the whole address.
// The local part is lowercased too, so "User@X.com" and "user@x.com" are
// treated as the same recipient.
func Sanitize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Validate normalizes raw and checks it against the address grammar.
// It never panics, whatever the input.
func Validate(raw string) Result {
	s := Sanitize(raw)
	if s == "" {
		return invalid(ErrEmptyInput)
	}
	if !wellFormed(s) {
		return invalid(ErrMalformedAddress)
	}
	return Result{Address: Address(s)}
}

// IsValid reports whether raw validates.
func IsValid(raw string) bool {
	return Validate(raw).Valid()
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrMalformedAddress)
}

func wellFormed(s string) bool {
	if len(s) > MaxLength || strings.Contains(s, "..") {
		return false
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return false
	}
	if local == "" || len(local) > MaxLocalLength || !localPattern.MatchString(local) {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > maxLabelLength || !labelPattern.MatchString(label) {
			return false
		}
	}
	return true
}
