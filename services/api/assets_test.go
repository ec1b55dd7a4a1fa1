package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) writeGame(t *testing.T, id string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(e.gamesRoot, id, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestServeSynthesizedPage(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "mygame", map[string]string{
		"mygame.loader.js": "createUnityInstance = function() {};",
		"img.png":          "cover",
	})

	rec := env.get(t, http.MethodGet, "/games/mygame/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	for _, want := range []string{"mygame.loader.js", "mygame.data.gz", "mygame.framework.js.gz", "mygame.wasm.gz", "StreamingAssets"} {
		assert.Contains(t, body, want)
	}

	_, err := os.Stat(filepath.Join(env.gamesRoot, "mygame", "index.html"))
	assert.True(t, os.IsNotExist(err), "synthesized page must not be persisted")

	head := env.get(t, http.MethodHead, "/games/mygame/")
	require.Equal(t, http.StatusOK, head.Code)
	assert.Empty(t, head.Body.Bytes())
	assert.Equal(t, rec.Header().Get("Content-Length"), head.Header().Get("Content-Length"))
}

func TestServeSynthesizedPageFromBuildDir(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "g", map[string]string{"Build/web.loader.js": "x"})

	rec := env.get(t, http.MethodGet, "/games/g/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Build/web.loader.js")
	assert.Contains(t, rec.Body.String(), "Build/web.wasm.gz")
}

func TestServeEntryPageWins(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "g", map[string]string{
		"index.html":  "<p>shipped</p>",
		"a.loader.js": "x",
	})

	rec := env.get(t, http.MethodGet, "/games/g/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>shipped</p>", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
}

func TestServeSubdirectory(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "g", map[string]string{
		"levels/one/index.html": "level one",
		"tools/t.loader.js":     "x",
	})

	assert.Equal(t, "level one", env.get(t, http.MethodGet, "/games/g/levels/one/").Body.String())
	assert.Contains(t, env.get(t, http.MethodGet, "/games/g/tools/").Body.String(), "t.data.gz")
	assert.Equal(t, http.StatusNotFound, env.get(t, http.MethodGet, "/games/g/levels/").Code)
}

func TestServeNotFound(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "empty", map[string]string{"readme.txt": "no build here"})

	tests := []struct {
		name   string
		target string
	}{
		{name: "no loader no entry page", target: "/games/empty/"},
		{name: "missing file", target: "/games/empty/nope.js"},
		{name: "missing game", target: "/games/ghost/"},
		{name: "missing game without slash", target: "/games/ghost"},
		{name: "staging area", target: "/games/.staging/"},
		{name: "games root", target: "/games/"},
		{name: "missing subdirectory", target: "/games/empty/sub/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, http.MethodGet, tt.target)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestServeTraversalStaysInsideArtifact(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "a", map[string]string{"index.html": "a"})
	env.writeGame(t, "b", map[string]string{"secret.txt": "b-secret"})
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(env.gamesRoot), "outside.txt"), []byte("outside"), 0o644))

	req := env.get(t, http.MethodGet, "/games/a/%2e%2e/b/secret.txt")
	assert.NotEqual(t, "b-secret", req.Body.String())

	req = env.get(t, http.MethodGet, "/games/a/..%2f..%2foutside.txt")
	assert.NotEqual(t, "outside", req.Body.String())
}

func TestServeEscapedNames(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "g", map[string]string{
		"x.txt":              "plain",
		"Build/my game.json": `{"ok":true}`,
	})

	rec := env.get(t, http.MethodGet, "/games/g/%78.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plain", rec.Body.String())

	rec = env.get(t, http.MethodGet, "/games/g/Build/my%20game.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"ok":true}`, rec.Body.String())

	rec = env.get(t, http.MethodGet, "/games/%67/x.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plain", rec.Body.String())
}

func TestServeRedirectsDirectories(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "g", map[string]string{"Build/x.loader.js": "x"})

	rec := env.get(t, http.MethodGet, "/games/g")
	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/games/g/", rec.Header().Get("Location"))

	rec = env.get(t, http.MethodGet, "/games/g/Build?v=2")
	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/games/g/Build/?v=2", rec.Header().Get("Location"))
}

func TestServePrecompressedUnityAssets(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "g", map[string]string{
		"Build/g.wasm.gz":         "\x1f\x8bwasm",
		"Build/g.framework.js.gz": "\x1f\x8bjs",
		"Build/g.data.gz":         "\x1f\x8bdata",
	})

	tests := []struct {
		path  string
		ctype string
	}{
		{path: "/games/g/Build/g.wasm.gz", ctype: "application/wasm"},
		{path: "/games/g/Build/g.framework.js.gz", ctype: "text/javascript; charset=utf-8"},
		{path: "/games/g/Build/g.data.gz", ctype: "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.get(t, http.MethodGet, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.ctype, rec.Header().Get("Content-Type"))
			assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		})
	}
}

func TestServeSniffsUnknownExtensions(t *testing.T) {
	env := newTestEnv(t, Config{})
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	env.writeGame(t, "g", map[string]string{"cover": string(png)})

	rec := env.get(t, http.MethodGet, "/games/g/cover")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, png, rec.Body.Bytes())
}

func TestServeRangeRequest(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.writeGame(t, "g", map[string]string{"data.bin": "0123456789"})

	req := httptest.NewRequest(http.MethodGet, "/games/g/data.bin", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())
}
