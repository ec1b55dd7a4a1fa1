package games

import (
	"errors"
	"fmt"
	"io/fs"

	"gamehost/pkg/archive"
)

// Kind classifies store failures so callers can choose a response.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingIdentifier
	KindInvalidIdentifier
	KindInvalidArchive
	KindIOFailure
	KindNotFoundArtifact
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindMissingIdentifier:
		return "missing_identifier"
	case KindInvalidIdentifier:
		return "invalid_identifier"
	case KindInvalidArchive:
		return "invalid_archive"
	case KindIOFailure:
		return "io_failure"
	case KindNotFoundArtifact:
		return "not_found_artifact"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

var (
	ErrMissingIdentifier = errors.New("id is required")
	ErrInvalidIdentifier = errors.New("id is not a valid path segment")
	ErrInvalidArchive    = archive.ErrInvalidArchive
	ErrIOFailure         = errors.New("storage failure")
	ErrNotFoundArtifact  = errors.New("artifact does not exist")
	ErrNotFound          = errors.New("not found")
)

// KindOf reports the Kind of err. Errors that carry no store sentinel are
// treated as I/O failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrMissingIdentifier):
		return KindMissingIdentifier
	case errors.Is(err, ErrInvalidIdentifier):
		return KindInvalidIdentifier
	case errors.Is(err, ErrInvalidArchive):
		return KindInvalidArchive
	case errors.Is(err, ErrNotFoundArtifact):
		return KindNotFoundArtifact
	case errors.Is(err, ErrIOFailure):
		return KindIOFailure
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	default:
		return KindIOFailure
	}
}

func ioFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIOFailure, err)
}
