// Package enums holds the closed string sets stored in the database and sent
// over the API. Parsing trims and lower-cases input.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func parse[T ~string](set []T, kind, raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
