package objstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage is the blob store media files live in. Paths are forward-slash
// separated keys, not host paths.
type Storage interface {
	// Save stores the content and returns the key it ended up under,
	// which may differ from the requested one when it was already taken.
	Save(key string, r io.Reader) (string, error)
	Exists(key string) (bool, error)
	Delete(key string) error
	Open(key string) (io.ReadCloser, error)
	// URL resolves a key to a locator a runner can download, absolute
	// when the store knows its external base.
	URL(key string) string
}

// FSStorage stores blobs on the local filesystem
type FSStorage struct {
	Root    string
	BaseURL string
}

// NewFSStorage creates a filesystem storage rooted at root
func NewFSStorage(root, baseURL string) *FSStorage {
	return &FSStorage{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *FSStorage) hostPath(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

// Save writes the content under key, appending a short suffix instead of
// overwriting when the key is already taken.
func (s *FSStorage) Save(key string, r io.Reader) (string, error) {
	if exists, err := s.Exists(key); err != nil {
		return "", err
	} else if exists {
		ext := filepath.Ext(key)
		stem := strings.TrimSuffix(key, ext)
		key = fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext)
	}

	target := s.hostPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}

	return key, nil
}

// Exists reports whether a key is stored
func (s *FSStorage) Exists(key string) (bool, error) {
	_, err := os.Stat(s.hostPath(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *FSStorage) Delete(key string) error {
	err := os.Remove(s.hostPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open opens a stored blob for reading
func (s *FSStorage) Open(key string) (io.ReadCloser, error) {
	return os.Open(s.hostPath(key))
}

// URL resolves a key to its download locator
func (s *FSStorage) URL(key string) string {
	if s.BaseURL == "" {
		return "/" + strings.TrimLeft(key, "/")
	}
	return s.BaseURL + "/" + strings.TrimLeft(key, "/")
}

var _ Storage = (*FSStorage)(nil)
