// Package subdomain validates and normalizes the subdomain label a client
// requests for its tunnel.
package subdomain

import (
	"errors"
	"strings"
)

// Reason classifies why a candidate subdomain was rejected.
type Reason string

const (
	ReasonTooShort Reason = "TooShort"
	ReasonTooLong  Reason = "TooLong"
	ReasonBadChars Reason = "BadChars"
	ReasonReserved Reason = "Reserved"
	ReasonProfane  Reason = "Profane"
)

// ValidationError reports why Validate rejected a candidate.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "subdomain: " + string(e.Reason)
}

const (
	minLength = 3
	maxLength = 63
)

// reserved lists subdomains that always belong to the platform itself.
var reserved = map[string]struct{}{
	"www": {}, "api": {}, "admin": {}, "root": {}, "system": {},
	"mail": {}, "ftp": {}, "ssh": {}, "dns": {},
}

// profane is a small built-in denylist; operators needing more coverage can
// layer an external list in front of this validator.
var profane = map[string]struct{}{
	"fuck": {}, "shit": {}, "ass": {}, "bitch": {}, "cunt": {},
}

// Validate normalizes candidate (trim + lowercase) and applies cok's
// subdomain policy. On success it returns the normalized form; on failure it
// returns a *ValidationError describing the first rule violated.
func Validate(candidate string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(candidate))

	if len(normalized) < minLength {
		return "", &ValidationError{Reason: ReasonTooShort}
	}
	if len(normalized) > maxLength {
		return "", &ValidationError{Reason: ReasonTooLong}
	}
	if !isValidCharClass(normalized) {
		return "", &ValidationError{Reason: ReasonBadChars}
	}
	if _, ok := reserved[normalized]; ok {
		return "", &ValidationError{Reason: ReasonReserved}
	}
	if _, ok := profane[normalized]; ok {
		return "", &ValidationError{Reason: ReasonProfane}
	}

	return normalized, nil
}

// isValidCharClass enforces [a-z0-9-]+, no leading/trailing '-', no "--".
func isValidCharClass(s string) bool {
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return false
	}
	if strings.Contains(s, "--") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// ReasonOf extracts the Reason from err if it is a *ValidationError.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
