package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"qagaz.org/internal/ids"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("filestore: object not found")

// Storage persists attachment payloads. Keys are opaque identifiers issued
// by Store; metadata lives with the owning document, not here.
type Storage interface {
	Store(r io.Reader) (key string, size int64, err error)
	Retrieve(key string) (io.ReadCloser, error)
	Delete(key string) error
}

// Local keeps objects on the local filesystem under a root directory,
// sharded by the first two characters of the key.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed and returns the store.
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("filestore root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create filestore root: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) pathFor(key string) (string, error) {
	if len(key) < 2 || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, key[:2], key), nil
}

// Store writes the payload under a fresh key and reports its size.
func (l *Local) Store(r io.Reader) (string, int64, error) {
	key := ids.New()
	path, err := l.pathFor(key)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", 0, fmt.Errorf("create shard dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("create object: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write object: %w", err)
	}
	return key, size, nil
}

// Retrieve opens the payload for reading.
func (l *Local) Retrieve(key string) (io.ReadCloser, error) {
	path, err := l.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the payload. Missing objects are not an error.
func (l *Local) Delete(key string) error {
	path, err := l.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
