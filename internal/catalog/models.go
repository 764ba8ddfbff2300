package catalog

import (
	"time"

	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/google/uuid"
)

// DefaultStorageQuota is the quota given to users created without one (10 GB).
const DefaultStorageQuota int64 = 10_000_000_000

// DefaultBackupFrequencyDays is the backup interval of new users.
const DefaultBackupFrequencyDays = 7

// User is an account together with its storage accounting and settings.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	IsAdmin             bool       `json:"is_admin"`
	StorageQuota        int64      `json:"storage_quota"`
	StorageUsed         int64      `json:"storage_used"`
	EncryptionEnabled   bool       `json:"encryption_enabled"`
	BackupEnabled       bool       `json:"backup_enabled"`
	BackupFrequencyDays int        `json:"backup_frequency_days"`
	LastBackupAt        *time.Time `json:"last_backup_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewUser carries the fields needed to create a user. A zero StorageQuota means the default.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	StorageQuota int64
}

// Photo is a catalog record. Its lifecycle fields are embedded and flattened on the wire.
type Photo struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"user_id"`
	Filename   string    `json:"filename"`
	Filepath   string    `json:"filepath"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"upload_date"`
	lifecycle.State
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPhoto carries the fields needed to create a photo. A zero UploadDate means now.
type NewPhoto struct {
	OwnerID    uuid.UUID
	Filename   string
	Filepath   string
	Size       int64
	UploadDate time.Time
}

// PhotoMetadata holds analysis results for a photo. Every analysis field is optional.
type PhotoMetadata struct {
	ID              uuid.UUID `json:"id"`
	PhotoID         uuid.UUID `json:"photo_id"`
	ColorProfile    *string   `json:"color_profile,omitempty"`
	DominantColors  *string   `json:"dominant_colors,omitempty"`
	FacesDetected   *int      `json:"faces_detected,omitempty"`
	FaceLocations   *string   `json:"face_locations,omitempty"`
	SceneType       *string   `json:"scene_type,omitempty"`
	SceneConfidence *float64  `json:"scene_confidence,omitempty"`
	BlurScore       *float64  `json:"blur_score,omitempty"`
	ExposureScore   *float64  `json:"exposure_score,omitempty"`
	AestheticScore  *float64  `json:"aesthetic_score,omitempty"`
	RawExif         *string   `json:"raw_exif,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Tag is a globally unique label.
type Tag struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Album groups photos of one owner.
type Album struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	Description  *string    `json:"description,omitempty"`
	CoverPhotoID *uuid.UUID `json:"cover_photo_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type NewAlbum struct {
	OwnerID      uuid.UUID
	Name         string
	Description  *string
	CoverPhotoID *uuid.UUID
}

// MetadataOrder is the sort key of a metadata query. Ties are broken by photo id.
type MetadataOrder int

const (
	OrderByConfidence MetadataOrder = iota
	OrderByFaces
	OrderByAesthetic
)

// MetadataQuery selects analysed photos. Zero fields do not filter.
type MetadataQuery struct {
	SceneType     string
	MinConfidence float64
	MinFaces      *int
	// Scored keeps only records with an aesthetic score.
	Scored  bool
	OrderBy MetadataOrder
	Limit   int
}
