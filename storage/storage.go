// Package storage keeps attachment bytes in a local directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"lexcounsel-backend/config"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound = errors.New("stored object not found")
	ErrObjectTooLarge = errors.New("stored object exceeds size limit")
	ErrInvalidPath    = errors.New("invalid storage path")
)

// Object identifies an attachment being stored
type Object struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Filename    string
	ContentType string
}

// Storage interface for attachment storage operations
type Storage interface {
	// Upload stores the object and returns its storage path
	Upload(ctx context.Context, obj Object, data io.Reader) (string, error)

	// Download opens a stored object. Missing objects report ErrObjectNotFound.
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes a stored object; deleting a missing object is not an error
	Delete(ctx context.Context, storagePath string) error
}

// Storage backend types
const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// New creates the storage backend selected by cfg
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// ReadAll downloads an object fully, failing with ErrObjectTooLarge past maxBytes
func ReadAll(ctx context.Context, s Storage, storagePath string, maxBytes int64) ([]byte, error) {
	rc, err := s.Download(ctx, storagePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}

// objectPath builds attachments/<owner>/<id>_<sanitized name>
func objectPath(obj Object) string {
	ext := filepath.Ext(obj.Filename)
	base := strings.TrimSuffix(filepath.Base(obj.Filename), ext)
	base = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." {
		base = "file"
	}
	return fmt.Sprintf("attachments/%s/%s_%s%s", obj.OwnerID, obj.ID, base, strings.ToLower(ext))
}

// ContentType resolves the MIME type of a filename, defaulting to octet-stream
func ContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}
