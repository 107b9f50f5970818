package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store persists generated media. Stores are append-only: Put never
// overwrites an existing object.
type Store interface {
	Put(ctx context.Context, procedure, ext, contentType string, body io.Reader) (string, error)
}

var ErrInvalidName = errors.New("invalid artifact name")

// Local writes artifacts into a directory and returns their public path.
type Local struct {
	dir        string
	publicPath string
}

// NewLocal prepares dir for writing.
func NewLocal(dir, publicPath string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifact directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Local{dir: dir, publicPath: strings.TrimRight(publicPath, "/")}, nil
}

// Put writes body under a fresh name. O_EXCL guarantees an existing file is
// never replaced.
func (l *Local) Put(ctx context.Context, procedure, ext, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := Name(procedure, ext)
	target := filepath.Join(l.dir, name)
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if l.publicPath == "" {
		return target, nil
	}
	return path.Join(l.publicPath, name), nil
}

// Path resolves a stored artifact name to its file on disk.
func (l *Local) Path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	target := filepath.Join(l.dir, name)
	if _, err := os.Stat(target); err != nil {
		return "", err
	}
	return target, nil
}
