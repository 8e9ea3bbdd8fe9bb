package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// FileBackend stores content under a local directory, one subdirectory per
// content type. Bundles written here can be handed out as plain files.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates the base directory and one subdirectory per content type.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	for _, ct := range []interfaces.ContentType{interfaces.BundleType, interfaces.AnnouncementType} {
		if err := os.MkdirAll(filepath.Join(baseDir, namespace(ct)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", namespace(ct), err)
		}
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: "file://" + baseDir,
	}, nil
}

// Fetch reads content by ID. Returns ErrContentNotFound if no such file exists.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	path := b.path(id, contentType)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched content from file",
		slog.String("path", path),
		slog.Int("size", len(data)))
	return data, nil
}

// Store writes data under its SHA-256 content ID.
func (b *FileBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	path := b.path(id, contentType)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return id, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return id, fmt.Errorf("failed to move file into place: %w", err)
	}

	b.log.Debug("Stored content in file",
		slog.String("path", path),
		slog.String("contentID", id.String()))
	return id, nil
}

// Available reports whether the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	if _, err := os.Stat(b.baseDir); err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *FileBackend) Name() string {
	return "file-" + filepath.Base(b.baseDir)
}

func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) path(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return filepath.Join(b.baseDir, namespace(contentType), id.String())
}
