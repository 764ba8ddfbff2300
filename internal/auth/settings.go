package auth

import (
	"context"
	"fmt"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/google/uuid"
)

// SettingsInput carries the account settings a user may change. Nil fields are left alone.
type SettingsInput struct {
	StorageQuota        *int64
	EncryptionEnabled   *bool
	BackupEnabled       *bool
	BackupFrequencyDays *int
}

// Profile returns the account of the authenticated user.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (catalog.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return catalog.User{}, err
	}
	return safeUser(user), nil
}

// UpdateSettings applies a settings patch. Lowering the quota below the bytes already used
// fails with quota.ErrQuotaExceeded.
func (s *Service) UpdateSettings(ctx context.Context, userID uuid.UUID, in SettingsInput) (catalog.User, error) {
	var patch catalog.UserPatch
	if in.StorageQuota != nil {
		if *in.StorageQuota < 0 {
			return catalog.User{}, fmt.Errorf("%w: negative quota", ErrInvalidSettings)
		}
		patch.StorageQuota = catalog.Some(*in.StorageQuota)
	}
	if in.EncryptionEnabled != nil {
		patch.EncryptionEnabled = catalog.Some(*in.EncryptionEnabled)
	}
	if in.BackupEnabled != nil {
		patch.BackupEnabled = catalog.Some(*in.BackupEnabled)
	}
	if in.BackupFrequencyDays != nil {
		if *in.BackupFrequencyDays < 1 {
			return catalog.User{}, fmt.Errorf("%w: backup frequency must be at least one day", ErrInvalidSettings)
		}
		patch.BackupFrequencyDays = catalog.Some(*in.BackupFrequencyDays)
	}

	user, err := s.users.UpdateUser(ctx, userID, patch)
	if err != nil {
		return catalog.User{}, err
	}
	return safeUser(user), nil
}
