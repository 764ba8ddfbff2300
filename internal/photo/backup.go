package photo

import (
	"context"
	"errors"
	"fmt"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backup copies the stored content through the backup transport and records the result. A
// previously failed backup is moved back to pending first.
func (s *Service) Backup(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, error) {
	p, err := s.Get(ctx, ownerID, photoID)
	if err != nil {
		return catalog.Photo{}, err
	}
	if p.Storage != lifecycle.StorageCompleted {
		return catalog.Photo{}, ErrNotStored
	}
	if p.Backup == lifecycle.BackupCompleted {
		return catalog.Photo{}, fmt.Errorf("%w: photo is already backed up", lifecycle.ErrInvalidTransition)
	}
	if p.Backup == lifecycle.BackupFailed {
		if p, err = s.SetBackupStatus(ctx, ownerID, photoID, lifecycle.BackupPending, ""); err != nil {
			return catalog.Photo{}, err
		}
	}

	path, copyErr := s.objects.Backup(ctx, p.Filepath)
	if copyErr != nil {
		s.log.Warn("backup photo", zap.Stringer("photo_id", p.ID), zap.Error(copyErr))
		if _, err := s.SetBackupStatus(ctx, ownerID, photoID, lifecycle.BackupFailed, ""); err != nil {
			return catalog.Photo{}, err
		}
		return catalog.Photo{}, fmt.Errorf("%w: %v", ErrTransport, copyErr)
	}
	return s.SetBackupStatus(ctx, ownerID, photoID, lifecycle.BackupCompleted, path)
}

// RunBackups backs up the owner's oldest pending candidates and stamps the user's last
// backup time. Individual failures are reported, not returned.
func (s *Service) RunBackups(ctx context.Context, ownerID uuid.UUID) (BackupReport, error) {
	user, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		return BackupReport{}, err
	}
	if !user.BackupEnabled {
		return BackupReport{}, ErrBackupDisabled
	}

	candidates, err := s.store.BackupCandidates(ctx, ownerID, s.backupBatch)
	if err != nil {
		return BackupReport{}, err
	}

	report := BackupReport{
		RanAt:     s.now(),
		Attempted: len(candidates),
		Completed: []uuid.UUID{},
		Failed:    []uuid.UUID{},
	}
	for _, c := range candidates {
		if _, err := s.Backup(ctx, ownerID, c.ID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			report.Failed = append(report.Failed, c.ID)
			continue
		}
		report.Completed = append(report.Completed, c.ID)
	}

	ranAt := report.RanAt
	if _, err := s.store.UpdateUser(ctx, ownerID, catalog.UserPatch{LastBackupAt: catalog.Some(&ranAt)}); err != nil {
		return report, err
	}
	s.log.Info("backup run",
		zap.Stringer("user_id", ownerID),
		zap.Int("attempted", report.Attempted),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// Restore copies the backup over the stored content. The restore axis is in_progress while
// the copy runs and falls back to none when the transport fails.
func (s *Service) Restore(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, error) {
	p, err := s.SetRestoreStatus(ctx, ownerID, photoID, lifecycle.RestoreInProgress)
	if err != nil {
		return catalog.Photo{}, err
	}

	if copyErr := s.objects.Restore(ctx, *p.BackupPath, p.Filepath); copyErr != nil {
		s.log.Warn("restore photo", zap.Stringer("photo_id", p.ID), zap.Error(copyErr))
		if _, err := s.SetRestoreStatus(ctx, ownerID, photoID, lifecycle.RestoreNone); err != nil {
			return catalog.Photo{}, err
		}
		return catalog.Photo{}, fmt.Errorf("%w: %v", ErrTransport, copyErr)
	}
	return s.SetRestoreStatus(ctx, ownerID, photoID, lifecycle.RestoreCompleted)
}
