// Package snapshot stores frames that accompany owner alerts.
package snapshot

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// RoutePrefix is where the HTTP server exposes the snapshot directory.
const RoutePrefix = "/snapshots"

// DirStore writes JPEG snapshots into a directory served under RoutePrefix.
type DirStore struct {
	dir       string
	publicURL string
	now       func() time.Time
}

func NewDirStore(dir, publicURL string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &DirStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}, nil
}

func (s *DirStore) Dir() string { return s.dir }

// Save writes frame and returns the URL the alert should link to.
func (s *DirStore) Save(frame image.Image, plate string) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.jpg", s.now().UTC().Format("20060102T150405"), plate, uuid.NewString()[:8])
	if err := imaging.Save(frame, filepath.Join(s.dir, name), imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return s.publicURL + RoutePrefix + "/" + name, nil
}
