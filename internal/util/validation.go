package util

import (
	"slices"

	"github.com/google/uuid"
)

// IsValidUUID reports whether s is a row id in the canonical lowercase form
// the repositories generate.
func IsValidUUID(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.String() == s
}

// OneOf reports whether value is empty or one of allowed. Empty means the
// caller falls back to its default.
func OneOf[T ~string](value T, allowed ...T) bool {
	return value == "" || slices.Contains(allowed, value)
}
