package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lexcounsel-backend/llm"
	"lexcounsel-backend/models"
	"lexcounsel-backend/repository"
	"lexcounsel-backend/storage"

	"github.com/google/uuid"
)

var ErrAttachmentNotFound = errors.New("attachment not found")

const defaultMaxAttachmentBytes = 20 << 20

// AttachmentLoader resolves attachment ids into file contents
type AttachmentLoader struct {
	files    FileStore
	storage  storage.Storage
	maxBytes int64
}

// NewAttachmentLoader creates an attachment loader
func NewAttachmentLoader(files FileStore, store storage.Storage) *AttachmentLoader {
	return &AttachmentLoader{files: files, storage: store, maxBytes: defaultMaxAttachmentBytes}
}

// Load returns the attachments in the given order. Every file must belong to ownerID.
func (l *AttachmentLoader) Load(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if l == nil || l.files == nil || l.storage == nil {
		return nil, errors.New("attachment storage not set")
	}

	out := make([]models.Attachment, 0, len(ids))
	for _, id := range ids {
		file, err := l.files.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && file.UserID != ownerID) {
			return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load attachment %s: %w", id, err)
		}

		data, err := storage.ReadAll(ctx, l.storage, file.StoragePath, l.maxBytes)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", id, err)
		}

		out = append(out, models.Attachment{
			FileID:   file.ID,
			Filename: file.Filename,
			MimeType: file.MimeType,
			Data:     data,
		})
	}
	return out, nil
}

// attachmentParts inlines text attachments and passes others as blobs
func attachmentParts(atts []models.Attachment) []llm.Part {
	parts := make([]llm.Part, 0, len(atts))
	for _, a := range atts {
		mimeType := a.MimeType
		if mimeType == "" {
			mimeType = storage.ContentType(a.Filename)
		}
		if isTextMIME(mimeType) {
			parts = append(parts, llm.TextPart(fmt.Sprintf("Attached document %q:\n%s", a.Filename, string(a.Data))))
			continue
		}
		parts = append(parts,
			llm.TextPart(fmt.Sprintf("Attached document %q (%s) follows.", a.Filename, mimeType)),
			llm.Part{Blob: &llm.Blob{MIMEType: mimeType, Data: a.Data}},
		)
	}
	return parts
}

func isTextMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/")
}
