package photo

import (
	"time"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/google/uuid"
)

// CreateInput describes a photo record created without content, usually by a system worker
// that stored the bytes itself.
type CreateInput struct {
	Filename   string
	Filepath   string
	Size       int64
	UploadDate time.Time
	// Metadata, when set, is created in the same transaction as the photo.
	Metadata *catalog.MetadataPatch
}

// Detail is a photo together with its analysis results and tags.
type Detail struct {
	catalog.Photo
	Metadata *catalog.PhotoMetadata `json:"metadata,omitempty"`
	Tags     []catalog.Tag          `json:"tags"`
}

// PresignedURL is a time-limited download link.
type PresignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BackupReport summarises one backup run.
type BackupReport struct {
	RanAt     time.Time   `json:"ran_at"`
	Attempted int         `json:"attempted"`
	Completed []uuid.UUID `json:"completed"`
	Failed    []uuid.UUID `json:"failed"`
}
