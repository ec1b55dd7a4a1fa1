// Package archive unpacks uploaded zip bundles into a destination directory.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
)

const (
	// DefaultMaxFileSize bounds a single extracted entry (512MiB).
	DefaultMaxFileSize = 512 << 20
	// DefaultMaxTotalSize bounds the sum of all extracted entries (2GiB).
	DefaultMaxTotalSize = 2 << 30
)

var (
	// ErrInvalidArchive reports a byte stream that is not a usable zip archive.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrUnsafePath reports an entry whose name would resolve outside the destination.
	ErrUnsafePath = fmt.Errorf("%w: unsafe entry path", ErrInvalidArchive)
)

// Stats summarises a successful extraction.
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Extractor unpacks zip archives with size limits applied.
type Extractor struct {
	MaxFileSize  int64
	MaxTotalSize int64
}

// New returns an Extractor using the default limits when a limit is not positive.
func New(maxFileSize, maxTotalSize int64) *Extractor {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if maxTotalSize <= 0 {
		maxTotalSize = DefaultMaxTotalSize
	}
	return &Extractor{MaxFileSize: maxFileSize, MaxTotalSize: maxTotalSize}
}

// Extract writes every entry of the zip held in data under destDir, preserving
// relative paths. The whole archive is validated before anything is written.
func (e *Extractor) Extract(ctx context.Context, data []byte, destDir string) (Stats, error) {
	if e == nil {
		e = New(0, 0)
	}
	if destDir == "" {
		return Stats{}, errors.New("destination directory is required")
	}
	if len(data) == 0 {
		return Stats{}, fmt.Errorf("%w: empty input", ErrInvalidArchive)
	}
	if !isZip(data) {
		return Stats{}, fmt.Errorf("%w: detected %s", ErrInvalidArchive, mimetype.Detect(data).String())
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if len(zr.File) == 0 {
		return Stats{}, fmt.Errorf("%w: no entries", ErrInvalidArchive)
	}

	plan, err := e.plan(zr.File)
	if err != nil {
		return Stats{}, err
	}

	root, err := filepath.Abs(destDir)
	if err != nil {
		return Stats{}, fmt.Errorf("resolve destination: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Stats{}, fmt.Errorf("create destination: %w", err)
	}

	var stats Stats
	for _, entry := range plan {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		target := filepath.Join(root, filepath.FromSlash(entry.name))
		if !within(root, target) {
			return stats, fmt.Errorf("%w: %q", ErrUnsafePath, entry.file.Name)
		}

		if entry.dir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, fmt.Errorf("mkdir %q: %w", entry.name, err)
			}
			stats.Dirs++
			continue
		}

		n, err := writeEntry(entry.file, target, e.MaxFileSize)
		if err != nil {
			return stats, err
		}
		stats.Files++
		stats.Bytes += n
	}

	return stats, nil
}

type planned struct {
	file *zip.File
	name string
	dir  bool
}

// plan validates names and declared sizes for every entry up front.
func (e *Extractor) plan(files []*zip.File) ([]planned, error) {
	out := make([]planned, 0, len(files))
	var total uint64
	for _, f := range files {
		mode := f.Mode()
		if mode&os.ModeSymlink != 0 {
			continue
		}

		name, err := CleanEntryName(f.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}

		isDir := mode.IsDir() || strings.HasSuffix(f.Name, "/")
		if !isDir {
			if f.UncompressedSize64 > uint64(e.MaxFileSize) {
				return nil, fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidArchive, name, e.MaxFileSize)
			}
			total += f.UncompressedSize64
			if total > uint64(e.MaxTotalSize) {
				return nil, fmt.Errorf("%w: archive exceeds %d bytes", ErrInvalidArchive, e.MaxTotalSize)
			}
		}
		out = append(out, planned{file: f, name: name, dir: isDir})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no extractable entries", ErrInvalidArchive)
	}
	return out, nil
}

// CleanEntryName normalises an archive entry name to a slash separated relative
// path. Names that are absolute, carry a drive letter, contain a NUL byte or
// climb out of the root with ".." are rejected with ErrUnsafePath.
func CleanEntryName(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	slashed := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(slashed, "/") || hasDriveLetter(slashed) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

func hasDriveLetter(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isZip(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

func writeEntry(f *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %q: %w", filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open %q: %v", ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %q: %w", target, err)
	}

	src := &sourceReader{r: io.LimitReader(rc, limit+1)}
	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	switch {
	case src.err != nil:
		return n, fmt.Errorf("%w: read %q: %v", ErrInvalidArchive, f.Name, src.err)
	case copyErr != nil:
		return n, fmt.Errorf("write %q: %w", target, copyErr)
	case n > limit:
		return n, fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidArchive, f.Name, limit)
	case closeErr != nil:
		return n, fmt.Errorf("close %q: %w", target, closeErr)
	}
	return n, nil
}

// sourceReader remembers decompression failures so they are not mistaken for
// write errors on the destination.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}
