package util

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var sessionIDRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// NewSessionID returns a random UUID v4 drawn from crypto/rand. It fails
// rather than falling back to a weaker source when entropy is unavailable.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("read secure random: %w", err)
	}

	s := id.String()
	if !sessionIDRegex.MatchString(s) {
		panic(fmt.Sprintf("util: generated malformed session id %q", s))
	}
	return s, nil
}

// IsValidSessionID reports whether s is a lowercase UUID v4.
func IsValidSessionID(s string) bool {
	return sessionIDRegex.MatchString(s)
}
