package helpers

import (
	"fmt"
	"regexp"
	"strings"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-=^_]{0,23}$`)

// NormalizeSymbol trims and upper-cases a ticker and rejects anything that cannot
// be a cache key.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return s, nil
}
