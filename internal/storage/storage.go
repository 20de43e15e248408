// Package storage stores generated course media and returns public URLs for it
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// localStorage implements object storage on the local filesystem.
// Objects are served by a static file server rooted at basePath.
type localStorage struct {
	basePath string
	baseURL  string
	bucket   string
}

// NewLocalStorage creates a new localStorage instance
func NewLocalStorage(basePath, baseURL, bucket string) *localStorage {
	return &localStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		bucket:   bucket,
	}
}

// generatePath generates the full file path for a key.
// Keys use forward slashes and are converted to OS path separators.
func (s *localStorage) generatePath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, s.bucket, filepath.FromSlash(key)), nil
}

// Put writes data under key, replacing any existing object, and returns its public URL
func (s *localStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.generatePath(key)
	if err != nil {
		return "", err
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	written, err := bytes.NewReader(data).WriteTo(f)
	if err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if written != int64(len(data)) {
		return "", fmt.Errorf("short write: %d of %d bytes", written, len(data))
	}

	return s.baseURL + "/" + s.bucket + "/" + key, nil
}

// Remove deletes the object stored under key. Missing objects are not an error.
func (s *localStorage) Remove(ctx context.Context, key string) error {
	path, err := s.generatePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}
