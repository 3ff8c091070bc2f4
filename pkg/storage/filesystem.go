package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/platinummonkey/taskhub/pkg/apierr"
)

// FileSystemUploader implements Uploader on the local filesystem. It backs
// development setups that have no object storage configured.
type FileSystemUploader struct {
	rootDir string
	baseURL string
}

// NewFileSystemUploader creates a filesystem uploader that serves objects
// from baseURL
func NewFileSystemUploader(rootDir, baseURL string) (*FileSystemUploader, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileSystemUploader{rootDir: rootDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload implements Uploader.Upload
func (s *FileSystemUploader) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (*Object, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, apierr.UploadFailed(err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, apierr.UploadFailed(fmt.Errorf("failed to create directory: %w", err))
	}

	f, err := os.Create(target)
	if err != nil {
		return nil, apierr.UploadFailed(fmt.Errorf("failed to create file: %w", err))
	}
	defer f.Close()

	written, err := io.Copy(f, body)
	if err != nil {
		os.Remove(target)
		return nil, apierr.UploadFailed(fmt.Errorf("failed to write file: %w", err))
	}

	return &Object{
		Key:         key,
		URL:         s.baseURL + "/" + (&url.URL{Path: key}).EscapedPath(),
		ContentType: contentType,
		Size:        written,
	}, nil
}

// Delete implements Uploader.Delete
func (s *FileSystemUploader) Delete(ctx context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// HealthCheck implements Uploader.HealthCheck
func (s *FileSystemUploader) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return fmt.Errorf("storage root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.rootDir)
	}
	return nil
}

func (s *FileSystemUploader) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.rootDir, cleaned), nil
}
