// Package photo orchestrates the photo catalog: every mutation that changes a photo's size
// goes through the quota ledger and every status change through the lifecycle rules, inside
// one catalog transaction. Byte transfers are delegated to an object store.
package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/config"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/metrics"
	"github.com/abduss/photovault/internal/quota"
	"github.com/abduss/photovault/internal/search"
	"github.com/abduss/photovault/internal/stats"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	maxFailureReason   = 255
)

// objectStore moves photo bytes. Keys are photo filepaths.
type objectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	Backup(ctx context.Context, key string) (string, error)
	RemoveBackup(ctx context.Context, backupPath string) error
	Restore(ctx context.Context, backupPath, key string) error
	PresignGet(ctx context.Context, key, filename string) (string, time.Time, error)
}

// Cipher encrypts photo content at rest.
type Cipher interface {
	Method() string
	Seal(ownerID, photoID uuid.UUID, plaintext []byte) ([]byte, error)
	Open(ownerID, photoID uuid.UUID, sealed []byte) ([]byte, error)
}

// Service manages photos, their content and their lifecycle.
type Service struct {
	store       catalog.Store
	objects     objectStore
	cipher      Cipher
	policy      lifecycle.Policy
	stats       *stats.Aggregator
	log         *zap.Logger
	now         func() time.Time
	maxFileSize int64
	backupBatch int
}

// NewService constructs a photo service.
func NewService(store catalog.Store, objects objectStore, policy lifecycle.Policy, cfg config.StorageConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:       store,
		objects:     objects,
		policy:      policy,
		stats:       stats.NewAggregator(store),
		log:         log.Named("photo"),
		now:         func() time.Time { return time.Now().UTC() },
		maxFileSize: cfg.MaxUploadBytes,
		backupBatch: cfg.BackupBatchSize,
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = defaultMaxFileSize
	}
	if s.backupBatch <= 0 {
		s.backupBatch = stats.DefaultBackupCandidates
	}
	return s
}

// WithCipher enables content encryption.
func (s *Service) WithCipher(c Cipher) *Service {
	s.cipher = c
	return s
}

// Create inserts a photo and reserves its size against the owner's quota in one transaction.
// A rejected reservation leaves no photo behind.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (catalog.Photo, error) {
	in.Filename = sanitizeFilename(in.Filename)
	if strings.TrimSpace(in.Filepath) == "" {
		return catalog.Photo{}, fmt.Errorf("%w: filepath is required", catalog.ErrIntegrityViolation)
	}
	if in.Size < 0 {
		return catalog.Photo{}, fmt.Errorf("%w: negative size", catalog.ErrIntegrityViolation)
	}

	var created catalog.Photo
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		p, err := tx.CreatePhoto(ctx, catalog.NewPhoto{
			OwnerID:    ownerID,
			Filename:   in.Filename,
			Filepath:   in.Filepath,
			Size:       in.Size,
			UploadDate: in.UploadDate,
		})
		if err != nil {
			return err
		}
		if err := quota.NewLedger(tx).Require(ctx, ownerID, in.Size); err != nil {
			return err
		}
		if in.Metadata != nil {
			if _, err := tx.CreateMetadata(ctx, p.ID, *in.Metadata); err != nil {
				return err
			}
		}
		created = p
		return nil
	})
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			metrics.QuotaRejected()
			s.log.Debug("quota rejected photo", zap.Stringer("user_id", ownerID), zap.Int64("size", in.Size))
		}
		return catalog.Photo{}, err
	}
	return created, nil
}

// Get returns a photo owned by ownerID. Photos of other users are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.Photo, error) {
	return owned(ctx, s.store, ownerID, photoID, false)
}

// GetWithMetadata returns the photo with its metadata and tags.
func (s *Service) GetWithMetadata(ctx context.Context, ownerID, photoID uuid.UUID) (Detail, error) {
	p, err := s.Get(ctx, ownerID, photoID)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Photo: p}
	meta, err := s.store.GetMetadata(ctx, photoID)
	switch {
	case err == nil:
		d.Metadata = &meta
	case !errors.Is(err, catalog.ErrNotFound):
		return Detail{}, err
	}
	d.Tags, err = s.store.PhotoTags(ctx, photoID)
	if err != nil {
		return Detail{}, err
	}
	return d, nil
}

// List returns the owner's photos, newest upload first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, page search.Page) ([]catalog.Photo, error) {
	return s.store.ListPhotos(ctx, ownerID, page)
}

// Search runs a filtered search scoped to ownerID.
func (s *Service) Search(ctx context.Context, ownerID uuid.UUID, filter search.Filter, page search.Page) ([]catalog.Photo, error) {
	return s.store.SearchPhotos(ctx, ownerID, filter, page)
}

// ListByTag returns the owner's photos carrying the named tag.
func (s *Service) ListByTag(ctx context.Context, ownerID uuid.UUID, tagName string, page search.Page) ([]catalog.Photo, error) {
	return s.store.SearchPhotos(ctx, ownerID, search.Filter{Tags: []string{tagName}}, page)
}

// Rename changes the display filename. The stored object keeps its key.
func (s *Service) Rename(ctx context.Context, ownerID, photoID uuid.UUID, filename string) (catalog.Photo, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return catalog.Photo{}, fmt.Errorf("%w: filename is required", catalog.ErrIntegrityViolation)
	}
	var out catalog.Photo
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := owned(ctx, tx, ownerID, photoID, true); err != nil {
			return err
		}
		var err error
		out, err = tx.UpdatePhoto(ctx, photoID, catalog.PhotoPatch{Filename: catalog.Some(filename)})
		return err
	})
	return out, err
}

// Delete removes the photo, releases its bytes from the quota and then removes the stored
// object and its backup copy. It reports false when there was nothing to delete.
func (s *Service) Delete(ctx context.Context, ownerID, photoID uuid.UUID) (bool, error) {
	var removed catalog.Photo
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		p, err := owned(ctx, tx, ownerID, photoID, true)
		if err != nil {
			return err
		}
		ok, err := tx.DeletePhoto(ctx, p.ID)
		if err != nil || !ok {
			return err
		}
		if _, err := quota.NewLedger(tx).Reserve(ctx, ownerID, -p.Size); err != nil {
			return err
		}
		removed = p
		return nil
	})
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if removed.ID == uuid.Nil {
		return false, nil
	}

	if err := s.objects.Remove(ctx, removed.Filepath); err != nil {
		s.log.Warn("remove photo object", zap.Stringer("photo_id", removed.ID), zap.Error(err))
	}
	s.removeBackup(ctx, removed.ID, removed.BackupPath)
	return true, nil
}

// StorageStats summarises the owner's stored bytes.
func (s *Service) StorageStats(ctx context.Context, ownerID uuid.UUID) (stats.Storage, error) {
	return s.stats.Storage(ctx, ownerID)
}

// MetadataStats summarises the owner's analysis results.
func (s *Service) MetadataStats(ctx context.Context, ownerID uuid.UUID) (stats.Metadata, error) {
	return s.stats.Metadata(ctx, ownerID)
}

// BackupCandidates lists stored photos waiting for a backup, oldest upload first.
func (s *Service) BackupCandidates(ctx context.Context, ownerID uuid.UUID, limit int) ([]catalog.Photo, error) {
	if limit <= 0 {
		limit = stats.DefaultBackupCandidates
	}
	return s.store.BackupCandidates(ctx, ownerID, limit)
}

type photoReader interface {
	GetPhoto(ctx context.Context, id uuid.UUID) (catalog.Photo, error)
	LockPhoto(ctx context.Context, id uuid.UUID) (catalog.Photo, error)
}

// owned loads a photo and hides it unless ownerID owns it.
func owned(ctx context.Context, r photoReader, ownerID, photoID uuid.UUID, lock bool) (catalog.Photo, error) {
	var (
		p   catalog.Photo
		err error
	)
	if lock {
		p, err = r.LockPhoto(ctx, photoID)
	} else {
		p, err = r.GetPhoto(ctx, photoID)
	}
	if err != nil {
		return catalog.Photo{}, err
	}
	if p.OwnerID != ownerID {
		return catalog.Photo{}, fmt.Errorf("photo %s: %w", photoID, catalog.ErrNotFound)
	}
	return p, nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}
	return name
}

func truncateReason(reason string) string {
	if len(reason) > maxFailureReason {
		return reason[:maxFailureReason]
	}
	return reason
}
