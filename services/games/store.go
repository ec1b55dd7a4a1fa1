// Package games owns the on-disk tree of uploaded game bundles. Every game
// identifier maps to exactly one directory directly under the store root.
package games

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gamehost/pkg/archive"
	"gamehost/pkg/keylock"
)

// Mode selects how an archive failure is treated by CreateOrReplace.
type Mode int

const (
	// ModeCreate is the first-time upload path: an invalid archive is ignored.
	ModeCreate Mode = iota
	// ModeReplace is the reupload path: an invalid archive is an error.
	ModeReplace
)

func (m Mode) String() string {
	if m == ModeReplace {
		return "replace"
	}
	return "create"
}

// Extractor unpacks archive bytes into a directory.
type Extractor interface {
	Extract(ctx context.Context, data []byte, destDir string) (archive.Stats, error)
}

// Artifact is the filesystem view of one game.
type Artifact struct {
	ID            string `json:"id"`
	Dir           string `json:"-"`
	HasCoverImage bool   `json:"has_cover_image"`
	HasEntryPage  bool   `json:"has_entry_page"`
	BuildName     string `json:"build_name,omitempty"`
}

// Result describes what CreateOrReplace changed.
type Result struct {
	Created        bool
	Extracted      bool
	ImageWritten   bool
	ArchiveIgnored error
	Stats          archive.Stats
}

// Store materialises, replaces and removes artifact directories.
type Store struct {
	root      string
	extractor Extractor
	locks     *keylock.Map
	logger    zerolog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger used for ignored archives and cleanup failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates the root directory if needed and returns a Store serving it.
func New(root string, extractor Extractor, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("games root is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve games root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create games root: %w", err)
	}

	s := &Store{
		root:      abs,
		extractor: extractor,
		locks:     keylock.New(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute games root.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory backing id after validating the identifier.
func (s *Store) Dir(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

// CreateOrReplace upserts the artifact for id. A nil archive or image leaves
// that part of the artifact untouched. The archive is unpacked into a staging
// directory first so a broken upload never clears the existing content; only
// after a successful extraction is the old content (except the cover image)
// removed and the new content moved in.
func (s *Store) CreateOrReplace(ctx context.Context, id string, archiveData, image []byte, mode Mode) (Result, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return Result{}, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var res Result
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		res.Created = true
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, ioFailure("create artifact dir", err)
	}

	if archiveData != nil {
		stats, err := s.replaceContent(ctx, id, dir, archiveData)
		switch {
		case err == nil:
			res.Extracted = true
			res.Stats = stats
		case errors.Is(err, ErrInvalidArchive) && mode == ModeCreate:
			res.ArchiveIgnored = err
			s.logger.Warn().Str("game_id", id).Err(err).Msg("ignoring unusable archive on upload")
		default:
			return res, err
		}
	}

	if image != nil {
		if err := writeFileAtomic(filepath.Join(dir, CoverImage), image); err != nil {
			return res, ioFailure("write cover image", err)
		}
		res.ImageWritten = true
	}

	return res, nil
}

func (s *Store) replaceContent(ctx context.Context, id, dir string, data []byte) (archive.Stats, error) {
	stageRoot := filepath.Join(s.root, stagingDir)
	if err := os.MkdirAll(stageRoot, 0o755); err != nil {
		return archive.Stats{}, ioFailure("create staging root", err)
	}
	stage, err := os.MkdirTemp(stageRoot, id+"-"+uuid.NewString()+"-")
	if err != nil {
		return archive.Stats{}, ioFailure("create staging dir", err)
	}
	defer func() {
		if err := os.RemoveAll(stage); err != nil {
			s.logger.Error().Str("game_id", id).Err(err).Msg("remove staging dir")
		}
	}()

	stats, err := s.extractor.Extract(ctx, data, stage)
	if err != nil {
		if errors.Is(err, ErrInvalidArchive) {
			return stats, err
		}
		return stats, ioFailure("extract archive", err)
	}

	if err := clearExcept(dir, CoverImage); err != nil {
		return stats, ioFailure("clear artifact dir", err)
	}
	if err := promote(stage, dir); err != nil {
		return stats, ioFailure("move extracted files", err)
	}
	return stats, nil
}

// Delete removes the whole artifact directory. A missing directory is not an
// error; existed reports whether anything was removed.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return false, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ioFailure("stat artifact dir", err)
	}
	if !info.IsDir() {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return true, ioFailure("remove artifact dir", err)
	}
	return true, nil
}

// Stat derives the Artifact for id from the filesystem.
func (s *Store) Stat(id string) (Artifact, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return Artifact{}, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFoundArtifact, id)
	}
	if err != nil {
		return Artifact{}, ioFailure("stat artifact dir", err)
	}

	art := Artifact{
		ID:            id,
		Dir:           dir,
		HasCoverImage: isRegular(filepath.Join(dir, CoverImage)),
		HasEntryPage:  HasEntryPage(dir),
	}
	loader, err := FindLoader(dir)
	switch {
	case err == nil:
		art.BuildName = loader.BuildName
	case !errors.Is(err, ErrNoBuild):
		return Artifact{}, ioFailure("find loader", err)
	}
	return art, nil
}

// clearExcept removes every entry of dir except keep.
func clearExcept(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// promote moves the top level entries of stage into dir. An existing cover
// image wins over one shipped inside the archive.
func promote(stage, dir string) error {
	entries, err := os.ReadDir(stage)
	if err != nil {
		return err
	}
	for _, e := range entries {
		target := filepath.Join(dir, e.Name())
		if e.Name() == CoverImage && isRegular(target) {
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(stage, e.Name()), target); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
