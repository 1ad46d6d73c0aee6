package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateFlagKey validates a flag key from a request path or body.
func ValidateFlagKey(key string) error {
	if len(key) == 0 {
		return errors.New("flag key cannot be empty")
	}
	if len(key) > 256 {
		return errors.New("flag key exceeds maximum length")
	}
	if !utf8.ValidString(key) {
		return errors.New("flag key must be valid UTF-8")
	}
	return nil
}

// ValidateUserKey validates a user key from a request body.
func ValidateUserKey(key string) error {
	if len(key) == 0 {
		return errors.New("user key cannot be empty")
	}
	if len(key) > 512 {
		return errors.New("user key exceeds maximum length")
	}
	if !utf8.ValidString(key) {
		return errors.New("user key must be valid UTF-8")
	}
	return nil
}
