package photo

import "errors"

var (
	// ErrFileTooLarge signals that the upload exceeds configured limits.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyUpload signals an upload without content.
	ErrEmptyUpload = errors.New("empty upload")
	// ErrSizeMismatch is returned when retried content differs in size from the recorded photo.
	ErrSizeMismatch = errors.New("content size does not match photo")
	// ErrNotStored is returned for operations that need the photo bytes in the byte store.
	ErrNotStored = errors.New("photo content is not stored")
	// ErrEncryptedContent is returned when a plaintext-only operation meets encrypted content.
	ErrEncryptedContent = errors.New("photo content is encrypted")
	// ErrEncryptionUnavailable is returned when no cipher is configured.
	ErrEncryptionUnavailable = errors.New("encryption is not available")
	// ErrBackupDisabled is returned when a backup run is requested for a user with backups off.
	ErrBackupDisabled = errors.New("backups are disabled for this user")
	// ErrTransport wraps failures of the byte store, backup transport or cipher.
	ErrTransport = errors.New("external transfer failed")
)
