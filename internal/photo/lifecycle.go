package photo

import (
	"context"
	"fmt"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stepFunc computes the next lifecycle state of a locked photo. It may call out to the object
// store; returning an error rolls the transaction back.
type stepFunc func(ctx context.Context, p catalog.Photo) (lifecycle.State, error)

// transition locks the photo, applies step and writes only the lifecycle fields that changed.
func (s *Service) transition(ctx context.Context, ownerID, photoID uuid.UUID, step stepFunc) (catalog.Photo, error) {
	var before, out catalog.Photo
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		p, err := owned(ctx, tx, ownerID, photoID, true)
		if err != nil {
			return err
		}
		next, err := step(ctx, p)
		if err != nil {
			return err
		}
		before = p
		patch := catalog.DiffState(p.State, next)
		if patch.Empty() {
			out = p
			return nil
		}
		out, err = tx.UpdatePhoto(ctx, p.ID, patch)
		return err
	})
	if err != nil {
		return catalog.Photo{}, err
	}
	s.recordTransition(before, out)
	return out, nil
}

func (s *Service) recordTransition(before, after catalog.Photo) {
	changed := func(axis lifecycle.Axis, to string) {
		metrics.Transition(string(axis), to)
		s.log.Info("photo transition",
			zap.Stringer("photo_id", after.ID),
			zap.String("axis", string(axis)),
			zap.String("to", to))
	}
	if before.Storage != after.Storage {
		changed(lifecycle.AxisStorage, string(after.Storage))
		if after.Storage == lifecycle.StorageFailed {
			metrics.StorageFailed()
		}
	}
	if before.Backup != after.Backup {
		changed(lifecycle.AxisBackup, string(after.Backup))
	}
	if before.Restore != after.Restore {
		changed(lifecycle.AxisRestore, string(after.Restore))
	}
	if before.IsEncrypted() != after.IsEncrypted() {
		changed(lifecycle.AxisEncryption, fmt.Sprint(after.IsEncrypted()))
	}
	if before.Version != after.Version {
		changed(lifecycle.AxisVersion, fmt.Sprint(after.Version))
	}
}

// SetStorageStatus records the outcome of a byte store write performed by the caller.
func (s *Service) SetStorageStatus(ctx context.Context, ownerID, photoID uuid.UUID, to lifecycle.StorageStatus, reason string) (catalog.Photo, error) {
	return s.transition(ctx, ownerID, photoID, func(_ context.Context, p catalog.Photo) (lifecycle.State, error) {
		return s.policy.SetStorage(p.State, to, truncateReason(reason))
	})
}

// SetBackupStatus records the outcome of a backup performed by the caller.
func (s *Service) SetBackupStatus(ctx context.Context, ownerID, photoID uuid.UUID, to lifecycle.BackupStatus, path string) (catalog.Photo, error) {
	return s.transition(ctx, ownerID, photoID, func(_ context.Context, p catalog.Photo) (lifecycle.State, error) {
		return lifecycle.SetBackup(p.State, to, path)
	})
}

// SetRestoreStatus records the progress of a restore performed by the caller.
func (s *Service) SetRestoreStatus(ctx context.Context, ownerID, photoID uuid.UUID, to lifecycle.RestoreStatus) (catalog.Photo, error) {
	return s.transition(ctx, ownerID, photoID, func(_ context.Context, p catalog.Photo) (lifecycle.State, error) {
		return lifecycle.SetRestore(p.State, to)
	})
}

// MarkEncrypted records that the caller encrypted the stored content with method.
func (s *Service) MarkEncrypted(ctx context.Context, ownerID, photoID uuid.UUID, method string) (catalog.Photo, error) {
	return s.changeEncryption(ctx, ownerID, photoID, func(_ context.Context, p catalog.Photo) (lifecycle.State, error) {
		return lifecycle.Encrypt(p.State, method, s.now())
	})
}

// MarkDecrypted records that the caller decrypted the stored content.
func (s *Service) MarkDecrypted(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, error) {
	return s.changeEncryption(ctx, ownerID, photoID, func(_ context.Context, p catalog.Photo) (lifecycle.State, error) {
		return lifecycle.Decrypt(p.State)
	})
}

// changeEncryption applies an encryption step. The stored bytes no longer match an earlier
// backup, so the backup is discarded with the change and its copy removed after commit.
func (s *Service) changeEncryption(ctx context.Context, ownerID, photoID uuid.UUID, step stepFunc) (catalog.Photo, error) {
	var stale *string
	p, err := s.transition(ctx, ownerID, photoID, func(ctx context.Context, cur catalog.Photo) (lifecycle.State, error) {
		if _, err := lifecycle.DiscardBackup(cur.State); err != nil {
			return lifecycle.State{}, err
		}
		next, err := step(ctx, cur)
		if err != nil {
			return lifecycle.State{}, err
		}
		stale = cur.BackupPath
		return lifecycle.DiscardBackup(next)
	})
	if err != nil {
		return catalog.Photo{}, err
	}
	s.removeBackup(ctx, p.ID, stale)
	return p, nil
}

// removeBackup deletes a backup copy that no photo refers to any more. Failures are logged.
func (s *Service) removeBackup(ctx context.Context, photoID uuid.UUID, backupPath *string) {
	if backupPath == nil || *backupPath == "" {
		return
	}
	if err := s.objects.RemoveBackup(ctx, *backupPath); err != nil {
		s.log.Warn("remove backup object", zap.Stringer("photo_id", photoID), zap.Error(err))
	}
}
