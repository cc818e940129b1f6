// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUsernameLen = 36
	fallbackPrefix = "User-"
	fallbackIDLen  = 6
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// UserID is the connection id; it doubles as the user identity.
type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"name"`
}

// FallbackName is the display name of a connection that never set one.
func FallbackName(id UserID) string {
	s := string(id)
	if len(s) > fallbackIDLen {
		s = s[:fallbackIDLen]
	}
	return fallbackPrefix + s
}

// NormalizeUsername trims the name and checks its bounds.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return username, nil
}
