package games

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxIDLength bounds identifiers so they stay valid file names on common filesystems.
const MaxIDLength = 128

// ValidateID checks that id can be used verbatim as a single directory name
// under the games root.
func ValidateID(id string) error {
	if id == "" {
		return ErrMissingIdentifier
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentifier, MaxIDLength)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidIdentifier)
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidIdentifier, id)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidIdentifier, id)
	}
	for _, r := range id {
		switch {
		case r == '/' || r == '\\':
			return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentifier, id)
		case r < 0x20 || r == 0x7f:
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidIdentifier, id)
		case r == ':':
			return fmt.Errorf("%w: %q contains a colon", ErrInvalidIdentifier, id)
		}
	}
	return nil
}
