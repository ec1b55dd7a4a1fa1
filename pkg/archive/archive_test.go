package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name   string
	body   string
	method uint16
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		method := e.method
		if method == 0 {
			method = zip.Deflate
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		require.NoError(t, err)
		if e.body != "" {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	data := buildZip(t,
		entry{name: "index.html", body: "<html></html>"},
		entry{name: "Build/"},
		entry{name: "Build/game.loader.js", body: "loader"},
		entry{name: `TemplateData\style.css`, body: "body{}"},
	)
	dest := t.TempDir()

	stats, err := New(0, 0).Extract(context.Background(), data, dest)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 1, stats.Dirs)
	assert.Equal(t, int64(len("<html></html>")+len("loader")+len("body{}")), stats.Bytes)

	for name, want := range map[string]string{
		"index.html":             "<html></html>",
		"Build/game.loader.js":   "loader",
		"TemplateData/style.css": "body{}",
	} {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), name)
	}
}

func TestExtractRejectsInvalidInput(t *testing.T) {
	valid := buildZip(t, entry{name: "a.txt", body: "hello"})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "plain text", data: []byte("definitely not a zip file")},
		{name: "truncated", data: valid[:len(valid)/2]},
		{name: "no entries", data: buildZip(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := t.TempDir()
			_, err := New(0, 0).Extract(context.Background(), tt.data, dest)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArchive), "got %v", err)

			entries, readErr := os.ReadDir(dest)
			require.NoError(t, readErr)
			assert.Empty(t, entries)
		})
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "game")

	data := buildZip(t,
		entry{name: "ok.txt", body: "fine"},
		entry{name: "../../evil", body: "pwned"},
	)

	_, err := New(0, 0).Extract(context.Background(), data, dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.ErrorIs(t, err, ErrInvalidArchive)

	_, statErr := os.Stat(filepath.Join(parent, "evil"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dest, "ok.txt"))
	assert.True(t, os.IsNotExist(statErr), "nothing is written when any entry is unsafe")
}

func TestExtractDetectsCorruptEntry(t *testing.T) {
	const body = "hello world content that will be corrupted"
	data := buildZip(t, entry{name: "a.txt", body: body, method: zip.Store})

	idx := bytes.Index(data, []byte(body))
	require.Positive(t, idx)
	data[idx] ^= 0xff

	_, err := New(0, 0).Extract(context.Background(), data, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestExtractEnforcesLimits(t *testing.T) {
	data := buildZip(t,
		entry{name: "a.bin", body: "0123456789"},
		entry{name: "b.bin", body: "0123456789"},
	)

	_, err := New(5, 0).Extract(context.Background(), data, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidArchive)

	_, err = New(0, 15).Extract(context.Background(), data, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidArchive)

	_, err = New(10, 20).Extract(context.Background(), data, t.TempDir())
	assert.NoError(t, err)
}

func TestCleanEntryName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "index.html", want: "index.html"},
		{in: "./Build/game.js", want: "Build/game.js"},
		{in: `Build\game.wasm.gz`, want: "Build/game.wasm.gz"},
		{in: "Build/", want: "Build"},
		{in: "./", want: ""},
		{in: "../evil", wantErr: true},
		{in: "a/../../evil", wantErr: true},
		{in: `..\evil`, wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "C:/Windows/evil", wantErr: true},
		{in: "bad\x00name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanEntryName(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafePath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
