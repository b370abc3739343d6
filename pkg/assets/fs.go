package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const maxRenameAttempts = 1000

// FSStore writes assets into a directory of an afero filesystem.
type FSStore struct {
	fs  afero.Fs
	dir string
}

// NewFSStore creates dir on fs if needed.
func NewFSStore(fs afero.Fs, dir string) (*FSStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir %s: %w", dir, err)
	}
	return &FSStore{fs: fs, dir: dir}, nil
}

// Save writes data and returns its path as the storage id.
func (s *FSStore) Save(ctx context.Context, data []byte, filename string, policy CollisionPolicy) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := CleanFilename(filename)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, name)
	exists, err := afero.Exists(s.fs, target)
	if err != nil {
		return "", fmt.Errorf("stat asset %s: %w", target, err)
	}

	if exists {
		switch policy {
		case Replace:
		case Fail:
			return "", fmt.Errorf("%s: %w", target, ErrExists)
		case Rename:
			target, err = s.freeName(name)
			if err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("unsupported collision policy %s", policy)
		}
	}

	if err := afero.WriteFile(s.fs, target, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", target, err)
	}
	return target, nil
}

func (s *FSStore) freeName(name string) (string, error) {
	for n := 0; n < maxRenameAttempts; n++ {
		candidate := filepath.Join(s.dir, numbered(name, n))
		exists, err := afero.Exists(s.fs, candidate)
		if err != nil {
			return "", fmt.Errorf("stat asset %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s: %w", name, os.ErrExist)
}
