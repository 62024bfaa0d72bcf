package plate

import (
	"errors"
	"fmt"
	"strings"
)

// MinManualLength is the shortest normalized plate accepted from manual entry.
const MinManualLength = 4

// ErrTooShort is returned by ValidateManual for plates under MinManualLength.
var ErrTooShort = errors.New("plate too short")

// Normalize returns the canonical plate key: ASCII letters, digits and dashes
// only, uppercased. Every other rune is dropped.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ValidateManual normalizes a manually typed plate and enforces MinManualLength.
func ValidateManual(raw string) (string, error) {
	p := Normalize(raw)
	if len(p) < MinManualLength {
		return "", fmt.Errorf("%w: %q needs at least %d characters", ErrTooShort, p, MinManualLength)
	}
	return p, nil
}
