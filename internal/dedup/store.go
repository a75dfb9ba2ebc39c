package dedup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrNoState is returned by Store.Load when nothing has been saved yet.
var ErrNoState = errors.New("no filter state")

// Store holds the serialized filter between runs.
type Store interface {
	Load() ([]byte, error)
	Save(data []byte) error
	String() string
}

// FileStore keeps the filter state in a single file. Saves replace the file
// atomically, so a crash mid-save leaves the previous state in place.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return data, nil
}

func (s *FileStore) Save(data []byte) error {
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return renameio.WriteFile(s.Path, data, 0o644)
}

func (s *FileStore) String() string { return s.Path }
