package api

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"gamehost/services/bundle"
	"gamehost/services/games"
)

// assetServer answers GET and HEAD under /games/<id>/. Directory requests
// get the stored entry page or a page synthesized from the build loader;
// everything else is a plain file read from the artifact directory.
type assetServer struct {
	games    *games.Store
	resolver *bundle.Resolver
	metrics  *metrics
	logger   zerolog.Logger
}

func (s *assetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The decoded path, not the route parameter: chi matches on RawPath
	// when one is set and would hand back escaped names.
	id, sub, hasSlash := strings.Cut(strings.TrimPrefix(r.URL.Path, "/games/"), "/")
	dir, err := s.games.Dir(id)
	if err != nil {
		s.notFound(w, r)
		return
	}

	if !hasSlash {
		if !isDir(dir) {
			s.notFound(w, r)
			return
		}
		s.redirectToDir(w, r)
		return
	}

	name := path.Clean("/" + sub)
	if sub == "" || strings.HasSuffix(sub, "/") {
		s.serveDir(w, r, dir, name)
		return
	}
	s.serveFile(w, r, dir, name)
}

func (s *assetServer) serveDir(w http.ResponseWriter, r *http.Request, root, name string) {
	target := localPath(root, name)
	if !isDir(target) {
		s.notFound(w, r)
		return
	}

	entry := filepath.Join(target, games.EntryPage)
	if f, err := os.Open(entry); err == nil {
		defer f.Close()
		if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
			s.metrics.serve("entry_page")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			http.ServeContent(w, r, games.EntryPage, info.ModTime(), f)
			return
		}
	}

	page, err := s.resolver.Resolve(target)
	switch {
	case errors.Is(err, bundle.ErrNoBuild):
		s.notFound(w, r)
		return
	case err != nil:
		s.logger.Error().Str("path", r.URL.Path).Err(err).Msg("resolve bundle page")
		s.metrics.serve("error")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	s.metrics.serve("synthesized")
	w.Header().Set("Content-Type", page.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(page.Body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(page.Body)
	}
}

func (s *assetServer) serveFile(w http.ResponseWriter, r *http.Request, root, name string) {
	f, err := os.Open(localPath(root, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Str("path", r.URL.Path).Err(err).Msg("open asset")
		}
		s.notFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.notFound(w, r)
		return
	}
	if info.IsDir() {
		s.redirectToDir(w, r)
		return
	}
	if !info.Mode().IsRegular() {
		s.notFound(w, r)
		return
	}

	ctype, encoding, err := contentType(info.Name(), f)
	if err != nil {
		s.logger.Error().Str("path", r.URL.Path).Err(err).Msg("detect content type")
		s.metrics.serve("error")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ctype)
	if encoding != "" {
		w.Header().Set("Content-Encoding", encoding)
	}
	s.metrics.serve("file")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *assetServer) redirectToDir(w http.ResponseWriter, r *http.Request) {
	s.metrics.serve("redirect")
	target := r.URL.Path + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func (s *assetServer) notFound(w http.ResponseWriter, r *http.Request) {
	s.metrics.serve("not_found")
	http.NotFound(w, r)
}

// contentType picks the response type for a stored file. Precompressed
// Unity outputs such as app.wasm.gz are served as their inner type with a
// gzip content encoding.
func contentType(name string, content io.ReadSeeker) (ctype, encoding string, err error) {
	if inner, ok := strings.CutSuffix(name, ".gz"); ok && path.Ext(inner) != "" {
		ctype = typeByExtension(inner)
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		return ctype, "gzip", nil
	}
	if ctype = typeByExtension(name); ctype != "" {
		return ctype, "", nil
	}

	mt, err := mimetype.DetectReader(content)
	if err != nil {
		return "", "", err
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return "", "", err
	}
	return mt.String(), "", nil
}

func typeByExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case "":
		return ""
	case ".wasm":
		return "application/wasm"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".data", ".unityweb", ".mem", ".symbols":
		return "application/octet-stream"
	}
	return mime.TypeByExtension(ext)
}

// localPath joins a cleaned, rooted URL path onto root.
func localPath(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(name))
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
