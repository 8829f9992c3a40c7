package common

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	exchangeerrors "p2pexchange/core/errors"
)

// NormalizeText trims surrounding whitespace and applies Unicode NFC so that
// visually identical inputs are stored and measured the same way.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// BoundedText normalises s and enforces 1..max characters. Both an empty and
// an overlong value fail with ErrInputTooLong.
func BoundedText(field, s string, max int) (string, error) {
	normalized := NormalizeText(s)
	if normalized == "" {
		return "", fmt.Errorf("%w: %s must not be empty", exchangeerrors.ErrInputTooLong, field)
	}
	if n := utf8.RuneCountInString(normalized); n > max {
		return "", fmt.Errorf("%w: %s has %d characters, limit %d", exchangeerrors.ErrInputTooLong, field, n, max)
	}
	return normalized, nil
}
