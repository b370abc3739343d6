package assets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// CollisionPolicy decides what Save does when the filename is taken.
type CollisionPolicy int

const (
	// Replace overwrites the existing asset.
	Replace CollisionPolicy = iota
	// Rename saves under a numbered variant of the filename.
	Rename
	// Fail returns ErrExists.
	Fail
)

func (p CollisionPolicy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Rename:
		return "rename"
	case Fail:
		return "error"
	default:
		return fmt.Sprintf("CollisionPolicy(%d)", int(p))
	}
}

// ParseCollisionPolicy accepts replace, rename or error. Empty means Replace.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return Replace, nil
	case "rename":
		return Rename, nil
	case "error", "fail":
		return Fail, nil
	}
	return Replace, fmt.Errorf("unknown collision policy %q (replace, rename, error)", s)
}

// ErrExists is returned by Save under the Fail policy.
var ErrExists = errors.New("asset already exists")

// Store persists binary assets and returns a storage id for them.
type Store interface {
	Save(ctx context.Context, data []byte, filename string, policy CollisionPolicy) (string, error)
}

// CleanFilename reduces name to a single safe path element.
func CleanFilename(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("invalid asset filename %q", name)
	}
	return name, nil
}

// numbered returns name with _n inserted before the extension.
func numbered(name string, n int) string {
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}
