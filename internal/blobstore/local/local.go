// Package local stores blobs as one file per item id under a directory.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) Put(ctx context.Context, id int64, mimeType string, data []byte) error {
	// Drop any previous file for this id first: a re-attached photo may carry
	// a different extension.
	if err := s.removeAll(id); err != nil {
		return err
	}

	filePath, err := s.safeJoin(fmt.Sprintf("%d%s", id, mimeTypeToExt(mimeType)))
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) ([]byte, string, error) {
	matches, err := s.glob(id)
	if err != nil {
		return nil, "", err
	}
	if len(matches) == 0 {
		return nil, "", nil
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to read image file: %w", err)
	}
	return data, extToMimeType(matches[0]), nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.removeAll(id)
}

func (s *Store) removeAll(id int64) error {
	matches, err := s.glob(id)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete image file: %w", err)
		}
	}
	return nil
}

func (s *Store) glob(id int64) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.basePath, fmt.Sprintf("%d.*", id)))
	if err != nil {
		return nil, fmt.Errorf("failed to list image files: %w", err)
	}
	return matches, nil
}

// safeJoin resolves name relative to basePath and rejects directory traversal.
func (s *Store) safeJoin(name string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, name))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

func mimeTypeToExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func extToMimeType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
