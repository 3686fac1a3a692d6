package billing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive stores generated bill documents
type Archive interface {
	// Save stores a bill and returns its key
	Save(name string, data []byte) (string, error)

	// Get retrieves a stored bill
	Get(key string) ([]byte, error)

	// Delete removes a stored bill
	Delete(key string) error
}

// LocalArchive implements Archive on the local filesystem
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a LocalArchive rooted at basePath
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating bill directory: %w", err)
	}

	return &LocalArchive{
		basePath: basePath,
	}, nil
}

// Save writes a bill to disk
func (l *LocalArchive) Save(name string, data []byte) (string, error) {
	path, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing bill: %w", err)
	}
	return name, nil
}

// Get reads a bill from disk
func (l *LocalArchive) Get(key string) ([]byte, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bill: %w", err)
	}
	return data, nil
}

// Delete removes a bill from disk
func (l *LocalArchive) Delete(key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting bill: %w", err)
	}
	return nil
}

// resolve keeps keys inside the archive directory
func (l *LocalArchive) resolve(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid bill key: %q", key)
	}
	return filepath.Join(l.basePath, key), nil
}
