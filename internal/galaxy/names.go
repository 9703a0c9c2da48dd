package galaxy

import (
	"strings"

	"golang.org/x/text/cases"
)

// Key folds a name for case-insensitive lookups. Station, system and
// commodity names are all compared through it.
func Key(name string) string {
	// Casers carry state and must not be shared between goroutines.
	return cases.Fold().String(strings.TrimSpace(name))
}

// SameName reports whether two names match case-insensitively.
func SameName(a, b string) bool {
	return Key(a) == Key(b)
}
