package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"

	"gate-service/internal/domain/anpr"
	"gate-service/internal/fileutil"
	"gate-service/internal/utils"
)

// FileStore keeps the owner registry as a JSON array on disk, shared with
// other processes through an advisory lock file next to it.
type FileStore struct {
	path string
	lock *flock.Flock
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *FileStore) Path() string { return s.path }

// Owners returns every registered owner. A missing file is an empty
// registry; a malformed one is an error.
func (s *FileStore) Owners(ctx context.Context) ([]anpr.Owner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var owners []anpr.Owner
	err := fileutil.WithLock(s.lock, func() error {
		var err error
		owners, err = s.read()
		return err
	})
	return owners, err
}

// Register inserts owner, replacing an existing entry for the same plate.
// A malformed registry is left untouched and reported.
func (s *FileStore) Register(ctx context.Context, owner anpr.Owner) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owner.Plate = utils.NormalizePlate(owner.Plate)

	return fileutil.WithLock(s.lock, func() error {
		owners, err := s.read()
		if err != nil {
			return err
		}

		replaced := false
		for i := range owners {
			if utils.SamePlate(owners[i].Plate, owner.Plate) {
				owners[i] = owner
				replaced = true
				break
			}
		}
		if !replaced {
			owners = append(owners, owner)
		}
		return s.write(owners)
	})
}

func (s *FileStore) read() ([]anpr.Owner, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var owners []anpr.Owner
	if err := json.Unmarshal(data, &owners); err != nil {
		return nil, fmt.Errorf("malformed registry %s: %w", s.path, err)
	}
	return owners, nil
}

func (s *FileStore) write(owners []anpr.Owner) error {
	data, err := json.MarshalIndent(owners, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	return fileutil.WriteFileAtomic(s.path, data)
}
