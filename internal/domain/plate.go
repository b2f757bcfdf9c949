package domain

import (
	"errors"
	"strings"
)

// ErrInvalidPlate is returned when raw user text cannot be used as a plate.
var ErrInvalidPlate = errors.New("domain: invalid plate format")

// Plate is a normalized vehicle identifier used as the upstream query key.
type Plate string

func (p Plate) String() string {
	return string(p)
}

// ValidatePlate trims and upper-cases raw text and checks it only contains
// ASCII letters, digits, CJK unified ideographs and hyphens. There is no
// length bound; long input is accepted as-is rather than truncated.
func ValidatePlate(raw string) (Plate, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidPlate
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r >= 0x4E00 && r <= 0x9FFF:
			b.WriteRune(r)
		default:
			return "", ErrInvalidPlate
		}
	}
	return Plate(b.String()), nil
}
