// Package feedback appends player comments to one text file per game.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"gamehost/pkg/keylock"
)

// Separator terminates every appended entry.
const Separator = "\n---\n"

var (
	ErrInvalidIdentifier = errors.New("id cannot be used as a file name")
	ErrEmptyText         = errors.New("text is required")
)

// Log appends entries under a single directory.
type Log struct {
	dir   string
	locks *keylock.Map
}

// New returns a Log writing into dir, creating it if needed.
func New(dir string) (*Log, error) {
	if dir == "" {
		return nil, errors.New("feedback dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feedback dir: %w", err)
	}
	return &Log{dir: dir, locks: keylock.New()}, nil
}

// Path returns the file that holds entries for id.
func (l *Log) Path(id string) (string, error) {
	name := SecureFilename(id)
	if name == "" {
		return "", ErrInvalidIdentifier
	}
	return filepath.Join(l.dir, name+".txt"), nil
}

// Append writes the trimmed text followed by Separator.
func (l *Log) Append(_ context.Context, id, text string) error {
	path, err := l.Path(id)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	unlock := l.locks.Lock(path)
	defer unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback file: %w", err)
	}
	if _, err := f.WriteString(text + Separator); err != nil {
		f.Close()
		return fmt.Errorf("append feedback: %w", err)
	}
	return f.Close()
}

// SecureFilename reduces name to a flat ASCII file name. Accents are
// decomposed and dropped, path separators count as whitespace, each run of
// whitespace becomes a single '_', anything outside letters, digits, '.',
// '-' and '_' is removed, and leading or trailing dots and underscores are
// stripped.
func SecureFilename(name string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r > unicode.MaxASCII:
		case r == '/' || r == '\\':
			ascii.WriteByte(' ')
		default:
			ascii.WriteRune(r)
		}
	}

	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(ascii.String()), "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}
