package snapshot

import (
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStoreSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	s, err := NewDirStore(dir, "http://gate.local:5000/")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }

	ref, err := s.Save(image.NewRGBA(image.Rect(0, 0, 16, 16)), "B1234AB")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref, "http://gate.local:5000/snapshots/20240501T083000_B1234AB_"), ref)
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	info, err := os.Stat(filepath.Join(dir, path.Base(ref)))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
