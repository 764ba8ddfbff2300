package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/imaging"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/metrics"
	"github.com/abduss/photovault/internal/objectstore"
	"github.com/abduss/photovault/internal/quota"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Upload creates the photo record, reserves quota, stores the bytes and records the outcome
// on the storage axis. EXIF data found in the content becomes the photo's metadata.
//
// When the byte store fails the photo is kept in the failed state and the returned error
// wraps ErrTransport; the caller may retry with RetryStorage.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, filename string, r io.Reader) (catalog.Photo, error) {
	content, err := s.readContent(r)
	if err != nil {
		return catalog.Photo{}, err
	}

	info := imaging.Inspect(content)
	in := CreateInput{
		Filename: filename,
		Filepath: objectstore.ObjectKey(ownerID, filename),
		Size:     int64(len(content)),
	}
	if info.RawExif != nil {
		in.Metadata = &catalog.MetadataPatch{RawExif: catalog.Some(info.RawExif)}
	}

	p, err := s.Create(ctx, ownerID, in)
	if err != nil {
		return catalog.Photo{}, err
	}
	return s.storeContent(ctx, p, content, info.ContentType)
}

// ReplaceContent swaps the photo bytes for new content. The size difference goes through the
// quota ledger, the version is bumped and the storage and backup axes start over.
func (s *Service) ReplaceContent(ctx context.Context, ownerID, photoID uuid.UUID, r io.Reader) (catalog.Photo, error) {
	content, err := s.readContent(r)
	if err != nil {
		return catalog.Photo{}, err
	}
	size := int64(len(content))

	var before, replaced catalog.Photo
	err = s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		p, err := owned(ctx, tx, ownerID, photoID, true)
		if err != nil {
			return err
		}
		if p.Restore == lifecycle.RestoreInProgress {
			return fmt.Errorf("%w: restore in progress", lifecycle.ErrInvalidTransition)
		}
		if err := quota.NewLedger(tx).Require(ctx, ownerID, size-p.Size); err != nil {
			return err
		}

		patch := catalog.DiffState(p.State, lifecycle.ReplaceContent(p.State, s.now()))
		patch.Size = catalog.Some(size)
		before = p
		replaced, err = tx.UpdatePhoto(ctx, p.ID, patch)
		return err
	})
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			metrics.QuotaRejected()
		}
		return catalog.Photo{}, err
	}
	s.recordTransition(before, replaced)
	s.removeBackup(ctx, replaced.ID, before.BackupPath)

	return s.storeContent(ctx, replaced, content, http.DetectContentType(content))
}

// RetryStorage moves a failed photo back to pending, counting the retry, and stores content
// again. The retry is rejected once the policy's ceiling is reached.
func (s *Service) RetryStorage(ctx context.Context, ownerID, photoID uuid.UUID, r io.Reader) (catalog.Photo, error) {
	content, err := s.readContent(r)
	if err != nil {
		return catalog.Photo{}, err
	}
	p, err := s.transition(ctx, ownerID, photoID, func(_ context.Context, p catalog.Photo) (lifecycle.State, error) {
		if int64(len(content)) != p.Size {
			return lifecycle.State{}, ErrSizeMismatch
		}
		return s.policy.SetStorage(p.State, lifecycle.StoragePending, "")
	})
	if err != nil {
		return catalog.Photo{}, err
	}
	return s.storeContent(ctx, p, content, http.DetectContentType(content))
}

// Download opens the stored content, decrypting it when needed.
func (s *Service) Download(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, io.ReadCloser, error) {
	p, err := s.Get(ctx, ownerID, photoID)
	if err != nil {
		return catalog.Photo{}, nil, err
	}
	if p.Storage != lifecycle.StorageCompleted {
		return catalog.Photo{}, nil, ErrNotStored
	}

	rc, err := s.objects.Get(ctx, p.Filepath)
	if err != nil {
		return catalog.Photo{}, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !p.IsEncrypted() {
		return p, rc, nil
	}
	defer rc.Close()

	if s.cipher == nil {
		return catalog.Photo{}, nil, ErrEncryptionUnavailable
	}
	sealed, err := io.ReadAll(rc)
	if err != nil {
		return catalog.Photo{}, nil, fmt.Errorf("%w: read object: %v", ErrTransport, err)
	}
	plain, err := s.cipher.Open(p.OwnerID, p.ID, sealed)
	if err != nil {
		return catalog.Photo{}, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return p, io.NopCloser(bytes.NewReader(plain)), nil
}

// PresignedURL returns a direct download link. Only stored plaintext content can be shared.
func (s *Service) PresignedURL(ctx context.Context, ownerID, photoID uuid.UUID) (PresignedURL, error) {
	p, err := s.Get(ctx, ownerID, photoID)
	if err != nil {
		return PresignedURL{}, err
	}
	if p.Storage != lifecycle.StorageCompleted {
		return PresignedURL{}, ErrNotStored
	}
	if p.IsEncrypted() {
		return PresignedURL{}, ErrEncryptedContent
	}
	url, expires, err := s.objects.PresignGet(ctx, p.Filepath, p.Filename)
	if err != nil {
		return PresignedURL{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return PresignedURL{URL: url, ExpiresAt: expires}, nil
}

// Encrypt seals the stored content and records the cipher on the photo. The record and the
// bytes change in the same transaction; an existing backup is discarded.
func (s *Service) Encrypt(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, error) {
	if s.cipher == nil {
		return catalog.Photo{}, ErrEncryptionUnavailable
	}
	return s.changeEncryption(ctx, ownerID, photoID, func(ctx context.Context, p catalog.Photo) (lifecycle.State, error) {
		if p.Storage != lifecycle.StorageCompleted {
			return lifecycle.State{}, ErrNotStored
		}
		next, err := lifecycle.Encrypt(p.State, s.cipher.Method(), s.now())
		if err != nil {
			return lifecycle.State{}, err
		}
		err = s.rewrite(ctx, p, func(b []byte) ([]byte, error) {
			return s.cipher.Seal(p.OwnerID, p.ID, b)
		})
		return next, err
	})
}

// Decrypt restores plaintext content and clears the encryption record.
func (s *Service) Decrypt(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, error) {
	if s.cipher == nil {
		return catalog.Photo{}, ErrEncryptionUnavailable
	}
	return s.changeEncryption(ctx, ownerID, photoID, func(ctx context.Context, p catalog.Photo) (lifecycle.State, error) {
		if p.Storage != lifecycle.StorageCompleted {
			return lifecycle.State{}, ErrNotStored
		}
		next, err := lifecycle.Decrypt(p.State)
		if err != nil {
			return lifecycle.State{}, err
		}
		err = s.rewrite(ctx, p, func(b []byte) ([]byte, error) {
			return s.cipher.Open(p.OwnerID, p.ID, b)
		})
		return next, err
	})
}

// storeContent writes content for a pending photo and records completed or failed.
func (s *Service) storeContent(ctx context.Context, p catalog.Photo, content []byte, contentType string) (catalog.Photo, error) {
	user, err := s.store.GetUser(ctx, p.OwnerID)
	if err != nil {
		return p, err
	}
	encrypt := user.EncryptionEnabled && s.cipher != nil
	if user.EncryptionEnabled && s.cipher == nil {
		s.log.Warn("encryption requested but no cipher configured", zap.Stringer("user_id", user.ID))
	}

	payload := content
	if encrypt {
		payload, err = s.cipher.Seal(p.OwnerID, p.ID, content)
		if err != nil {
			return s.failStorage(ctx, p, fmt.Errorf("encrypt: %w", err))
		}
	}
	if err := s.objects.Put(ctx, p.Filepath, bytes.NewReader(payload), int64(len(payload)), contentType); err != nil {
		return s.failStorage(ctx, p, err)
	}

	return s.transition(ctx, p.OwnerID, p.ID, func(_ context.Context, cur catalog.Photo) (lifecycle.State, error) {
		next, err := s.policy.SetStorage(cur.State, lifecycle.StorageCompleted, "")
		if err != nil || !encrypt {
			return next, err
		}
		return lifecycle.Encrypt(next, s.cipher.Method(), s.now())
	})
}

func (s *Service) failStorage(ctx context.Context, p catalog.Photo, cause error) (catalog.Photo, error) {
	s.log.Warn("store photo content", zap.Stringer("photo_id", p.ID), zap.Error(cause))
	failed, err := s.SetStorageStatus(ctx, p.OwnerID, p.ID, lifecycle.StorageFailed, cause.Error())
	if err != nil {
		s.log.Error("record storage failure", zap.Stringer("photo_id", p.ID), zap.Error(err))
		return p, fmt.Errorf("%w: %v", ErrTransport, cause)
	}
	return failed, fmt.Errorf("%w: %v", ErrTransport, cause)
}

// rewrite replaces the stored object with fn applied to its current bytes.
func (s *Service) rewrite(ctx context.Context, p catalog.Photo, fn func([]byte) ([]byte, error)) error {
	rc, err := s.objects.Get(ctx, p.Filepath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	current, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("%w: read object: %v", ErrTransport, err)
	}
	out, err := fn(current)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := s.objects.Put(ctx, p.Filepath, bytes.NewReader(out), int64(len(out)), "application/octet-stream"); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (s *Service) readContent(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, ErrEmptyUpload
	}
	content, err := io.ReadAll(io.LimitReader(r, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > s.maxFileSize {
		return nil, ErrFileTooLarge
	}
	if len(content) == 0 {
		return nil, ErrEmptyUpload
	}
	return content, nil
}
