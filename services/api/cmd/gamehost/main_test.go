package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUploadResolveDelete(t *testing.T) {
	root := t.TempDir()
	t.Setenv("GAMEHOST_GAMES_DIR", filepath.Join(root, "games"))
	t.Setenv("GAMEHOST_FEEDBACK_DIR", filepath.Join(root, "feedback"))

	zipPath := filepath.Join(root, "demo.zip")
	writeZip(t, zipPath, map[string]string{"Build/demo.loader.js": "x"})

	out, err := execute(t, "upload", "--id", "demo", "--zip", zipPath)
	require.NoError(t, err)
	assert.Contains(t, out, "create demo: 1 files")

	out, err = execute(t, "resolve", "--id", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Build/demo.loader.js")
	assert.Contains(t, out, "Build/demo.data.gz")

	out, err = execute(t, "stat", "--id", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, `"build_name": "demo"`)

	out, err = execute(t, "delete", "--id", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted demo")

	out, err = execute(t, "delete", "--id", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "did not exist")
}

func TestUploadReplaceRejectsBrokenArchive(t *testing.T) {
	root := t.TempDir()
	t.Setenv("GAMEHOST_GAMES_DIR", filepath.Join(root, "games"))
	t.Setenv("GAMEHOST_FEEDBACK_DIR", filepath.Join(root, "feedback"))

	broken := filepath.Join(root, "broken.zip")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))

	out, err := execute(t, "upload", "--id", "g", "--zip", broken)
	require.NoError(t, err)
	assert.Contains(t, out, "archive ignored")

	_, err = execute(t, "upload", "--id", "g", "--zip", broken, "--replace")
	assert.Error(t, err)

	_, err = execute(t, "upload", "--id", "g")
	assert.Error(t, err)
}
