package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
)

func TestLocalPutOpenDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocal(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	require.NoError(t, s.Check(ctx))

	require.NoError(t, s.Put(ctx, "inputs/a.xlsx", strings.NewReader("hello"), 5, ""))

	rc, err := s.Open(ctx, "inputs/a.xlsx")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// overwrite replaces content in place
	require.NoError(t, s.Put(ctx, "inputs/a.xlsx", strings.NewReader("again"), 5, ""))
	rc, err = s.Open(ctx, "inputs/a.xlsx")
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "again", string(data))

	require.NoError(t, s.Delete(ctx, "inputs/a.xlsx"))
	require.NoError(t, s.Delete(ctx, "inputs/a.xlsx"))

	_, err = s.Open(ctx, "inputs/a.xlsx")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	entries, err := os.ReadDir(filepath.Join(dir, "uploads", "inputs"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files must not be left behind")
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../x", "a/../../x", "/etc/passwd", ""} {
		err := s.Put(ctx, key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, key)
	}
}

func TestLocalPutCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	err = s.Put(ctx, "inputs/c.xlsx", strings.NewReader("data"), 4, "")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Open(context.Background(), "inputs/c.xlsx")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)
}
