package photo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/google/uuid"
)

const (
	// DefaultSceneConfidence is the confidence threshold of scene queries.
	DefaultSceneConfidence = 0.7
	// DefaultTopAesthetic is the number of photos returned by the aesthetic ranking.
	DefaultTopAesthetic = 10
)

// CreateMetadata attaches analysis results to an owned photo.
func (s *Service) CreateMetadata(ctx context.Context, ownerID, photoID uuid.UUID, patch catalog.MetadataPatch) (catalog.PhotoMetadata, error) {
	var out catalog.PhotoMetadata
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := owned(ctx, tx, ownerID, photoID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.CreateMetadata(ctx, photoID, patch)
		return err
	})
	return out, err
}

// MetadataEntry is one photo's analysis results within a batch.
type MetadataEntry struct {
	PhotoID uuid.UUID
	Patch   catalog.MetadataPatch
}

// CreateMetadataBatch attaches analysis results to several owned photos at once.
// Either every record is written or none is.
func (s *Service) CreateMetadataBatch(ctx context.Context, ownerID uuid.UUID, entries []MetadataEntry) ([]catalog.PhotoMetadata, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make([]catalog.PhotoMetadata, 0, len(entries))
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		out = out[:0]
		for _, e := range entries {
			if _, err := owned(ctx, tx, ownerID, e.PhotoID, false); err != nil {
				return err
			}
			m, err := tx.CreateMetadata(ctx, e.PhotoID, e.Patch)
			if err != nil {
				return fmt.Errorf("photo %s: %w", e.PhotoID, err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMetadata changes the set fields of a photo's analysis results.
func (s *Service) UpdateMetadata(ctx context.Context, ownerID, photoID uuid.UUID, patch catalog.MetadataPatch) (catalog.PhotoMetadata, error) {
	var out catalog.PhotoMetadata
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := owned(ctx, tx, ownerID, photoID, false); err != nil {
			return err
		}
		var err error
		out, err = tx.UpdateMetadata(ctx, photoID, patch)
		return err
	})
	return out, err
}

func (s *Service) GetMetadata(ctx context.Context, ownerID, photoID uuid.UUID) (catalog.PhotoMetadata, error) {
	if _, err := s.Get(ctx, ownerID, photoID); err != nil {
		return catalog.PhotoMetadata{}, err
	}
	return s.store.GetMetadata(ctx, photoID)
}

// PhotosByScene returns the owner's analysis results of a scene type at or above
// minConfidence, most confident first. A non-positive minConfidence means the default.
func (s *Service) PhotosByScene(ctx context.Context, ownerID uuid.UUID, sceneType string, minConfidence float64) ([]catalog.PhotoMetadata, error) {
	sceneType = strings.TrimSpace(sceneType)
	if sceneType == "" {
		return nil, fmt.Errorf("%w: scene type is required", catalog.ErrIntegrityViolation)
	}
	if minConfidence <= 0 {
		minConfidence = DefaultSceneConfidence
	}
	return s.store.FindMetadata(ctx, ownerID, catalog.MetadataQuery{
		SceneType:     sceneType,
		MinConfidence: minConfidence,
		OrderBy:       catalog.OrderByConfidence,
	})
}

// PhotosWithFaces returns results with at least minFaces detected faces, most faces first.
func (s *Service) PhotosWithFaces(ctx context.Context, ownerID uuid.UUID, minFaces int) ([]catalog.PhotoMetadata, error) {
	if minFaces < 1 {
		minFaces = 1
	}
	return s.store.FindMetadata(ctx, ownerID, catalog.MetadataQuery{
		MinFaces: &minFaces,
		OrderBy:  catalog.OrderByFaces,
	})
}

// TopAesthetic returns the best scored results.
func (s *Service) TopAesthetic(ctx context.Context, ownerID uuid.UUID, limit int) ([]catalog.PhotoMetadata, error) {
	if limit <= 0 {
		limit = DefaultTopAesthetic
	}
	return s.store.FindMetadata(ctx, ownerID, catalog.MetadataQuery{
		Scored:  true,
		OrderBy: catalog.OrderByAesthetic,
		Limit:   limit,
	})
}

// EnsureTag returns the tag called name, creating it when missing.
func (s *Service) EnsureTag(ctx context.Context, name string, description *string) (catalog.Tag, error) {
	var out catalog.Tag
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		var err error
		out, err = ensureTag(ctx, tx, name, description)
		return err
	})
	if errors.Is(err, catalog.ErrUniqueViolation) {
		// Lost a race with a concurrent create; the tag exists now.
		return s.store.GetTagByName(ctx, strings.TrimSpace(name))
	}
	return out, err
}

func ensureTag(ctx context.Context, tx catalog.Tx, name string, description *string) (catalog.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return catalog.Tag{}, fmt.Errorf("%w: tag name is required", catalog.ErrIntegrityViolation)
	}
	tag, err := tx.GetTagByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return catalog.Tag{}, err
	}
	return tx.CreateTag(ctx, name, description)
}

func (s *Service) ListTags(ctx context.Context) ([]catalog.Tag, error) {
	return s.store.ListTags(ctx)
}

func (s *Service) GetTag(ctx context.Context, name string) (catalog.Tag, error) {
	return s.store.GetTagByName(ctx, strings.TrimSpace(name))
}

// DeleteTag removes a tag and its associations. Photos are untouched.
func (s *Service) DeleteTag(ctx context.Context, tagID uuid.UUID) (bool, error) {
	return s.store.DeleteTag(ctx, tagID)
}

// TagPhoto associates the named tag with an owned photo, creating the tag on demand.
func (s *Service) TagPhoto(ctx context.Context, ownerID, photoID uuid.UUID, tagName string) (catalog.Tag, error) {
	var tag catalog.Tag
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := owned(ctx, tx, ownerID, photoID, false); err != nil {
			return err
		}
		var err error
		if tag, err = ensureTag(ctx, tx, tagName, nil); err != nil {
			return err
		}
		return tx.TagPhoto(ctx, photoID, tag.ID, s.now())
	})
	return tag, err
}

// UntagPhoto removes the association. It reports false when the photo did not carry the tag.
func (s *Service) UntagPhoto(ctx context.Context, ownerID, photoID uuid.UUID, tagName string) (bool, error) {
	var removed bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := owned(ctx, tx, ownerID, photoID, false); err != nil {
			return err
		}
		tag, err := tx.GetTagByName(ctx, strings.TrimSpace(tagName))
		if errors.Is(err, catalog.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		removed, err = tx.UntagPhoto(ctx, photoID, tag.ID)
		return err
	})
	return removed, err
}

func (s *Service) PhotoTags(ctx context.Context, ownerID, photoID uuid.UUID) ([]catalog.Tag, error) {
	if _, err := s.Get(ctx, ownerID, photoID); err != nil {
		return nil, err
	}
	return s.store.PhotoTags(ctx, photoID)
}
