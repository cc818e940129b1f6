package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallbackName(t *testing.T) {
	req := require.New(t)

	req.Equal("User-8f14e4", FallbackName("8f14e45f-ceea-467a-9af0"))
	req.Equal("User-abc", FallbackName("abc"))
	req.Equal("User-", FallbackName(""))
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{name: "plain", input: "alice", expected: "alice"},
		{name: "trimmed", input: "  bob \t", expected: "bob"},
		{name: "empty", input: "", err: ErrUsernameEmpty},
		{name: "blank", input: "   ", err: ErrUsernameEmpty},
		{name: "too long", input: strings.Repeat("x", MaxUsernameLen+1), err: ErrUsernameTooLong},
		{name: "max length", input: strings.Repeat("x", MaxUsernameLen), expected: strings.Repeat("x", MaxUsernameLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, err := NormalizeUsername(tt.input)
			if tt.err != nil {
				req.ErrorIs(err, tt.err)
				return
			}
			req.NoError(err)
			req.Equal(tt.expected, got)
		})
	}
}

func TestKindOf(t *testing.T) {
	req := require.New(t)

	req.Equal(KindNotFound, KindOf(fmt.Errorf("%w: room general", ErrNotFound)))
	req.Equal(KindUnauthorized, KindOf(fmt.Errorf("%w: wrong password", ErrUnauthorized)))
	req.Equal(KindEngineRejected, KindOf(fmt.Errorf("%w: %w", ErrEngineRejected, errors.New("dtls failed"))))
	req.Equal(KindInvalidRequest, KindOf(fmt.Errorf("%w: bad direction", ErrInvalidRequest)))
	req.Equal(KindInvalidRequest, KindOf(ErrUsernameTooLong))
	req.Equal(KindInternal, KindOf(errors.New("boom")))
}
