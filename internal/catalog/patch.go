package catalog

import (
	"time"

	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/google/uuid"
)

// Field is one optional patch value. Only fields with Set are written; a set Field holding a
// nil pointer clears a nullable column.
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a set Field.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

func (f Field[T]) apply(dst *T) {
	if f.Set {
		*dst = f.Value
	}
}

// UserPatch updates user settings. Storage usage is only changed through the quota ledger.
type UserPatch struct {
	StorageQuota        Field[int64]
	EncryptionEnabled   Field[bool]
	BackupEnabled       Field[bool]
	BackupFrequencyDays Field[int]
	LastBackupAt        Field[*time.Time]
}

func (p UserPatch) Empty() bool {
	return !p.StorageQuota.Set && !p.EncryptionEnabled.Set && !p.BackupEnabled.Set &&
		!p.BackupFrequencyDays.Set && !p.LastBackupAt.Set
}

func (p UserPatch) applyTo(u *User) {
	p.StorageQuota.apply(&u.StorageQuota)
	p.EncryptionEnabled.apply(&u.EncryptionEnabled)
	p.BackupEnabled.apply(&u.BackupEnabled)
	p.BackupFrequencyDays.apply(&u.BackupFrequencyDays)
	p.LastBackupAt.apply(&u.LastBackupAt)
}

// PhotoPatch updates a photo field by field. Concurrent patches touching different fields do
// not overwrite each other.
type PhotoPatch struct {
	Filename      Field[string]
	Filepath      Field[string]
	Size          Field[int64]
	Storage       Field[lifecycle.StorageStatus]
	FailureReason Field[*string]
	RetryCount    Field[int]
	Backup        Field[lifecycle.BackupStatus]
	BackupPath    Field[*string]
	Restore       Field[lifecycle.RestoreStatus]
	Encryption    Field[*lifecycle.Encryption]
	Version       Field[int]
	VersionDate   Field[time.Time]
}

func (p PhotoPatch) Empty() bool {
	return p == PhotoPatch{}
}

func (p PhotoPatch) applyTo(ph *Photo) {
	p.Filename.apply(&ph.Filename)
	p.Filepath.apply(&ph.Filepath)
	p.Size.apply(&ph.Size)
	p.Storage.apply(&ph.Storage)
	p.FailureReason.apply(&ph.FailureReason)
	p.RetryCount.apply(&ph.RetryCount)
	p.Backup.apply(&ph.Backup)
	p.BackupPath.apply(&ph.BackupPath)
	p.Restore.apply(&ph.Restore)
	p.Encryption.apply(&ph.Encryption)
	p.Version.apply(&ph.Version)
	p.VersionDate.apply(&ph.VersionDate)
}

// DiffState returns a patch holding only the lifecycle fields that differ between before and after.
func DiffState(before, after lifecycle.State) PhotoPatch {
	var p PhotoPatch
	if before.Storage != after.Storage {
		p.Storage = Some(after.Storage)
	}
	if !equalPtr(before.FailureReason, after.FailureReason) {
		p.FailureReason = Some(after.FailureReason)
	}
	if before.RetryCount != after.RetryCount {
		p.RetryCount = Some(after.RetryCount)
	}
	if before.Backup != after.Backup {
		p.Backup = Some(after.Backup)
	}
	if !equalPtr(before.BackupPath, after.BackupPath) {
		p.BackupPath = Some(after.BackupPath)
	}
	if before.Restore != after.Restore {
		p.Restore = Some(after.Restore)
	}
	if !equalEncryption(before.Encryption, after.Encryption) {
		p.Encryption = Some(after.Encryption)
	}
	if before.Version != after.Version {
		p.Version = Some(after.Version)
	}
	if !before.VersionDate.Equal(after.VersionDate) {
		p.VersionDate = Some(after.VersionDate)
	}
	return p
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalEncryption(a, b *lifecycle.Encryption) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Method == b.Method && a.Date.Equal(b.Date)
}

// MetadataPatch sets analysis fields. On create, unset fields stay empty.
type MetadataPatch struct {
	ColorProfile    Field[*string]
	DominantColors  Field[*string]
	FacesDetected   Field[*int]
	FaceLocations   Field[*string]
	SceneType       Field[*string]
	SceneConfidence Field[*float64]
	BlurScore       Field[*float64]
	ExposureScore   Field[*float64]
	AestheticScore  Field[*float64]
	RawExif         Field[*string]
}

func (p MetadataPatch) applyTo(m *PhotoMetadata) {
	p.ColorProfile.apply(&m.ColorProfile)
	p.DominantColors.apply(&m.DominantColors)
	p.FacesDetected.apply(&m.FacesDetected)
	p.FaceLocations.apply(&m.FaceLocations)
	p.SceneType.apply(&m.SceneType)
	p.SceneConfidence.apply(&m.SceneConfidence)
	p.BlurScore.apply(&m.BlurScore)
	p.ExposureScore.apply(&m.ExposureScore)
	p.AestheticScore.apply(&m.AestheticScore)
	p.RawExif.apply(&m.RawExif)
}

// AlbumPatch updates an album. A cover photo must belong to the album owner.
type AlbumPatch struct {
	Name         Field[string]
	Description  Field[*string]
	CoverPhotoID Field[*uuid.UUID]
}

func (p AlbumPatch) applyTo(a *Album) {
	p.Name.apply(&a.Name)
	p.Description.apply(&a.Description)
	p.CoverPhotoID.apply(&a.CoverPhotoID)
}
