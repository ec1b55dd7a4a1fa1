package feedback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, "game-1", "  great game \n"))
	require.NoError(t, l.Append(ctx, "game-1", "second"))

	data, err := os.ReadFile(filepath.Join(dir, "game-1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "great game\n---\nsecond\n---\n", string(data))
}

func TestAppendRejectsBadInput(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, l.Append(ctx, "g", "   "), ErrEmptyText)
	assert.ErrorIs(t, l.Append(ctx, "../..", "hi"), ErrInvalidIdentifier)
	assert.ErrorIs(t, l.Append(ctx, "", "hi"), ErrInvalidIdentifier)
}

func TestAppendStaysInsideDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "feedback")
	l, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, l.Append(context.Background(), "../escape", "hi"))

	_, err = os.Stat(filepath.Join(parent, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	assert.NoError(t, err)
}

func TestAppendConcurrent(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(context.Background(), "g", "entry"))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "g.txt"))
	require.NoError(t, err)
	assert.Len(t, data, 50*len("entry"+Separator))
}

func TestSecureFilename(t *testing.T) {
	tests := map[string]string{
		"My cool game.txt":   "My_cool_game.txt",
		"../../etc/passwd":   "etc_passwd",
		"ゲーム":                "",
		"game-1":             "game-1",
		"..hidden":           "hidden",
		`C:\path\to\file.go`: "C_path_to_file.go",
		"a  b":               "a_b",
		"tab\tand\n newline": "tab_and_newline",
		"café":               "cafe",
		"Ünïcödé game":       "Unicode_game",
		" _padded_ ":         "padded",
	}
	for in, want := range tests {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

func TestAppendReleasesFileLocks(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Append(ctx, fmt.Sprintf("game-%d", i%5), "entry"))
		}(i)
	}
	wg.Wait()

	assert.Zero(t, l.locks.Len())
}
