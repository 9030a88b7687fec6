package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/domain/anpr"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	owners, err := s.Owners(context.Background())
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestFileStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Owners(context.Background())
	assert.Error(t, err)
}

func TestFileStoreRegisterKeepsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	corrupt := []byte(`[{"name":"Budi","plate":"B1234AB","chat_id":11},`)
	require.NoError(t, os.WriteFile(path, corrupt, 0o644))

	err := NewFileStore(path).Register(context.Background(), anpr.Owner{Name: "Sari", Plate: "D77XY", ChatID: 22})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, corrupt, data, "existing owners must survive a failed registration")
}

func TestFileStoreRegisterUpsertsByPlate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "users.json")
	s := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, anpr.Owner{Name: "Budi", Username: "budi", Plate: "b 1234 ab", ChatID: 11}))
	require.NoError(t, s.Register(ctx, anpr.Owner{Name: "Sari", Username: "sari", Plate: "D77XY", ChatID: 22}))
	require.NoError(t, s.Register(ctx, anpr.Owner{Name: "Budi S", Username: "budis", Plate: "B1234AB", ChatID: 33}))

	owners, err := s.Owners(ctx)
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, anpr.Owner{Name: "Budi S", Username: "budis", Plate: "B1234AB", ChatID: 33}, owners[0])
	assert.Equal(t, "D77XY", owners[1].Plate)
}

func TestFileStoreReadsOriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	content := `[{"name": "Budi", "username": "budi", "plate": "B1234AB", "chat_id": 123456}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	owners, err := NewFileStore(path).Owners(context.Background())
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, int64(123456), owners[0].ChatID)
}
