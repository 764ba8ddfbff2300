// Package lifecycle owns the per-photo status axes and the transitions allowed between them.
// Storage, backup, restore and encryption are tracked independently; every transition
// returns a new State or ErrInvalidTransition and never a partially applied one.
package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a requested status change breaks the lifecycle rules.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Axis names an independently tracked status dimension.
type Axis string

const (
	AxisStorage    Axis = "storage"
	AxisBackup     Axis = "backup"
	AxisRestore    Axis = "restore"
	AxisEncryption Axis = "encryption"
	AxisVersion    Axis = "version"
)

// StorageStatus tracks whether the photo bytes reached the byte store.
type StorageStatus string

const (
	StoragePending   StorageStatus = "pending"
	StorageCompleted StorageStatus = "completed"
	StorageFailed    StorageStatus = "failed"
)

// BackupStatus tracks the copy of the photo kept by the backup transport.
type BackupStatus string

const (
	BackupPending   BackupStatus = "pending"
	BackupCompleted BackupStatus = "completed"
	BackupFailed    BackupStatus = "failed"
)

// RestoreStatus tracks restores from backup. RestoreAbsent means no restore was ever attempted.
type RestoreStatus string

const (
	RestoreAbsent     RestoreStatus = ""
	RestoreNone       RestoreStatus = "none"
	RestoreInProgress RestoreStatus = "in_progress"
	RestoreCompleted  RestoreStatus = "completed"
)

// ParseStorageStatus validates a wire value.
func ParseStorageStatus(v string) (StorageStatus, error) {
	switch s := StorageStatus(v); s {
	case StoragePending, StorageCompleted, StorageFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown storage status %q", ErrInvalidTransition, v)
}

// ParseBackupStatus validates a wire value.
func ParseBackupStatus(v string) (BackupStatus, error) {
	switch s := BackupStatus(v); s {
	case BackupPending, BackupCompleted, BackupFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown backup status %q", ErrInvalidTransition, v)
}

// ParseRestoreStatus validates a wire value.
func ParseRestoreStatus(v string) (RestoreStatus, error) {
	switch s := RestoreStatus(v); s {
	case RestoreNone, RestoreInProgress, RestoreCompleted:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown restore status %q", ErrInvalidTransition, v)
}

// Encryption describes an applied cipher. Method and Date only exist together.
type Encryption struct {
	Method string    `json:"method"`
	Date   time.Time `json:"date"`
}

// State is the full set of lifecycle fields of a photo.
type State struct {
	Storage       StorageStatus `json:"storage_status"`
	FailureReason *string       `json:"failure_reason,omitempty"`
	RetryCount    int           `json:"retry_count"`
	Backup        BackupStatus  `json:"backup_status"`
	BackupPath    *string       `json:"backup_path,omitempty"`
	Restore       RestoreStatus `json:"restore_status,omitempty"`
	Encryption    *Encryption   `json:"encryption,omitempty"`
	Version       int           `json:"version"`
	VersionDate   time.Time     `json:"version_date"`
}

// Initial returns the state of a freshly created photo.
func Initial(now time.Time) State {
	return State{
		Storage:     StoragePending,
		Backup:      BackupPending,
		Version:     1,
		VersionDate: now,
	}
}

// IsEncrypted reports whether an encryption record is attached.
func (s State) IsEncrypted() bool {
	return s.Encryption != nil
}

// IsBackupCandidate reports whether the photo is stored and still waiting for a backup.
func (s State) IsBackupCandidate() bool {
	return s.Backup == BackupPending && s.Storage == StorageCompleted
}

// Validate checks the cross-field rules a persisted state must satisfy.
func (s State) Validate() error {
	switch {
	case s.Version < 1:
		return fmt.Errorf("%w: version %d below 1", ErrInvalidTransition, s.Version)
	case s.RetryCount < 0:
		return fmt.Errorf("%w: negative retry count", ErrInvalidTransition)
	case s.Storage == StorageFailed && isBlank(s.FailureReason):
		return fmt.Errorf("%w: failed storage requires a reason", ErrInvalidTransition)
	case s.Storage != StorageFailed && s.FailureReason != nil:
		return fmt.Errorf("%w: failure reason set while %s", ErrInvalidTransition, s.Storage)
	case s.Backup == BackupCompleted && isBlank(s.BackupPath):
		return fmt.Errorf("%w: completed backup requires a path", ErrInvalidTransition)
	case s.Backup != BackupCompleted && s.BackupPath != nil:
		return fmt.Errorf("%w: backup path set while %s", ErrInvalidTransition, s.Backup)
	case s.Encryption != nil && (s.Encryption.Method == "" || s.Encryption.Date.IsZero()):
		return fmt.Errorf("%w: encryption requires method and date", ErrInvalidTransition)
	}
	return nil
}

func isBlank(v *string) bool {
	return v == nil || *v == ""
}

func invalid(axis Axis, from, to any) error {
	return fmt.Errorf("%w: %s %v -> %v", ErrInvalidTransition, axis, from, to)
}
