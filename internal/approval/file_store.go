package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"gate-service/internal/fileutil"
	"gate-service/internal/utils"
)

// FileStore keeps decisions in a JSON object (plate -> status), the izin.json
// format shared with the chat bot. Every operation holds an advisory lock on
// path+".lock" for its read-modify-write.
type FileStore struct {
	path string
	lock *flock.Flock
	log  zerolog.Logger
}

func NewFileStore(path string, log zerolog.Logger) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log.With().Str("component", "approval_file").Logger(),
	}
}

func (s *FileStore) MarkPending(ctx context.Context, plate string) error {
	return s.update(ctx, func(m map[string]Status) bool {
		m[utils.NormalizePlate(plate)] = StatusPending
		return true
	})
}

func (s *FileStore) Decide(ctx context.Context, plate string, status Status) (bool, error) {
	applied := false
	err := s.update(ctx, func(m map[string]Status) bool {
		key := utils.NormalizePlate(plate)
		if _, ok := m[key]; !ok {
			return false
		}
		m[key] = status
		applied = true
		return true
	})
	return applied, err
}

func (s *FileStore) Consume(ctx context.Context, plate string) (Status, error) {
	var status Status
	err := s.update(ctx, func(m map[string]Status) bool {
		key := utils.NormalizePlate(plate)
		status = m[key]
		if !status.IsTerminal() {
			return false
		}
		delete(m, key)
		return true
	})
	return status, err
}

func (s *FileStore) Remove(ctx context.Context, plate string) error {
	return s.update(ctx, func(m map[string]Status) bool {
		key := utils.NormalizePlate(plate)
		if _, ok := m[key]; !ok {
			return false
		}
		delete(m, key)
		return true
	})
}

func (s *FileStore) Pending(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var plates []string
	err := fileutil.WithLock(s.lock, func() error {
		for plate, status := range s.read() {
			if status == StatusPending {
				plates = append(plates, plate)
			}
		}
		return nil
	})
	sort.Strings(plates)
	return plates, err
}

// update applies fn to the current contents and writes them back when fn
// reports a change.
func (s *FileStore) update(ctx context.Context, fn func(map[string]Status) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fileutil.WithLock(s.lock, func() error {
		m := s.read()
		if !fn(m) {
			return nil
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode approvals: %w", err)
		}
		return fileutil.WriteFileAtomic(s.path, data)
	})
}

// read loads the store with canonical keys. A missing or malformed file is
// an empty store.
func (s *FileStore) read() map[string]Status {
	m := make(map[string]Status)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("approval store unreadable, treating as empty")
		}
		return m
	}
	if len(data) == 0 {
		return m
	}
	var raw map[string]Status
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("approval store malformed, treating as empty")
		return m
	}
	for plate, status := range raw {
		m[utils.NormalizePlate(plate)] = status
	}
	return m
}
