package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "izin.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"B1234AB":"pending"}`)))
	require.NoError(t, WriteFileAtomic(path, []byte(`{}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestWithLockPropagatesError(t *testing.T) {
	lock := flock.New(filepath.Join(t.TempDir(), "nested", "x.lock"))
	want := errors.New("boom")

	err := WithLock(lock, func() error {
		assert.True(t, lock.Locked())
		return want
	})

	assert.ErrorIs(t, err, want)
	assert.False(t, lock.Locked())
}
