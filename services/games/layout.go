package games

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Fixed names inside an artifact directory.
const (
	CoverImage   = "img.png"
	EntryPage    = "index.html"
	LoaderSuffix = ".loader.js"
	BuildDir     = "Build"

	stagingDir = ".staging"
)

// Loader describes the build loader script found in an artifact directory.
type Loader struct {
	// BuildName is the loader file name without LoaderSuffix.
	BuildName string
	// Prefix is the slash separated directory holding the loader, relative to
	// the searched directory. It is empty or ends with "/".
	Prefix string
}

// Path returns the loader script path relative to the searched directory.
func (l Loader) Path() string {
	return l.Prefix + l.BuildName + LoaderSuffix
}

// ErrNoBuild is returned by FindLoader when no loader script exists.
var ErrNoBuild = errors.New("no build loader found")

// FindLoader looks for "<build>.loader.js" directly in dir and then in its
// Build subdirectory. Entries are visited in lexical order, so the first
// match is deterministic when an upload ships more than one loader.
func FindLoader(dir string) (Loader, error) {
	for _, prefix := range []string{"", BuildDir + "/"} {
		name, err := firstLoader(filepath.Join(dir, filepath.FromSlash(prefix)))
		if err != nil {
			return Loader{}, err
		}
		if name != "" {
			return Loader{BuildName: name, Prefix: prefix}, nil
		}
	}
	return Loader{}, ErrNoBuild
}

func firstLoader(dir string) (string, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), LoaderSuffix)
		if ok && name != "" {
			return name, nil
		}
	}
	return "", nil
}

// HasEntryPage reports whether dir contains a regular EntryPage file.
func HasEntryPage(dir string) bool {
	return isRegular(filepath.Join(dir, EntryPage))
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
