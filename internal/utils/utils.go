package utils

import "strings"

func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the zero value for a nil pointer.
func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// NilIfBlank trims s and returns nil if nothing is left.
func NilIfBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// NormalizeCode is the canonical form of a tournament join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
