// Package album groups a user's photos. Albums never own photos: removing an album only
// removes its associations, and a cover photo must belong to the album owner.
package album

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/search"
	"github.com/google/uuid"
)

const maxNameLength = 100

// Service orchestrates album operations.
type Service struct {
	store catalog.Store
	now   func() time.Time
}

// NewService constructs an album service.
func NewService(store catalog.Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// UpdateInput carries the album fields to change. ClearCover removes the cover photo.
type UpdateInput struct {
	Name        *string
	Description *string
	CoverPhoto  *uuid.UUID
	ClearCover  bool
}

// Create creates a new album for the owner.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, name string, description *string, cover *uuid.UUID) (catalog.Album, error) {
	name, err := validName(name)
	if err != nil {
		return catalog.Album{}, err
	}
	return s.store.CreateAlbum(ctx, catalog.NewAlbum{
		OwnerID:      ownerID,
		Name:         name,
		Description:  description,
		CoverPhotoID: cover,
	})
}

// List returns the user's albums, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]catalog.Album, error) {
	return s.store.ListAlbums(ctx, ownerID)
}

// Get returns an album ensuring ownership.
func (s *Service) Get(ctx context.Context, ownerID, albumID uuid.UUID) (catalog.Album, error) {
	return ownedAlbum(ctx, s.store, ownerID, albumID)
}

func (s *Service) Update(ctx context.Context, ownerID, albumID uuid.UUID, in UpdateInput) (catalog.Album, error) {
	var patch catalog.AlbumPatch
	if in.Name != nil {
		name, err := validName(*in.Name)
		if err != nil {
			return catalog.Album{}, err
		}
		patch.Name = catalog.Some(name)
	}
	if in.Description != nil {
		patch.Description = catalog.Some(in.Description)
	}
	switch {
	case in.ClearCover:
		patch.CoverPhotoID = catalog.Some[*uuid.UUID](nil)
	case in.CoverPhoto != nil:
		patch.CoverPhotoID = catalog.Some(in.CoverPhoto)
	}

	var out catalog.Album
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := ownedAlbum(ctx, tx, ownerID, albumID); err != nil {
			return err
		}
		var err error
		out, err = tx.UpdateAlbum(ctx, albumID, patch)
		return err
	})
	return out, err
}

// Delete removes an album and its associations; the photos stay. It reports false when the
// album did not exist for the owner.
func (s *Service) Delete(ctx context.Context, ownerID, albumID uuid.UUID) (bool, error) {
	var removed bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := ownedAlbum(ctx, tx, ownerID, albumID); err != nil {
			return err
		}
		var err error
		removed, err = tx.DeleteAlbum(ctx, albumID)
		return err
	})
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return removed, nil
}

// AddPhoto associates an owned photo with the album. Adding twice is a no-op.
func (s *Service) AddPhoto(ctx context.Context, ownerID, albumID, photoID uuid.UUID) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := ownedAlbum(ctx, tx, ownerID, albumID); err != nil {
			return err
		}
		return tx.AddToAlbum(ctx, albumID, photoID, s.now())
	})
}

func (s *Service) RemovePhoto(ctx context.Context, ownerID, albumID, photoID uuid.UUID) (bool, error) {
	var removed bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx catalog.Tx) error {
		if _, err := ownedAlbum(ctx, tx, ownerID, albumID); err != nil {
			return err
		}
		var err error
		removed, err = tx.RemoveFromAlbum(ctx, albumID, photoID)
		return err
	})
	return removed, err
}

// Photos lists the album's photos, newest upload first.
func (s *Service) Photos(ctx context.Context, ownerID, albumID uuid.UUID, page search.Page) ([]catalog.Photo, error) {
	if _, err := s.Get(ctx, ownerID, albumID); err != nil {
		return nil, err
	}
	return s.store.SearchPhotos(ctx, ownerID, search.Filter{AlbumID: &albumID}, page)
}

type albumReader interface {
	GetAlbum(ctx context.Context, id uuid.UUID) (catalog.Album, error)
}

func ownedAlbum(ctx context.Context, r albumReader, ownerID, albumID uuid.UUID) (catalog.Album, error) {
	a, err := r.GetAlbum(ctx, albumID)
	if err != nil {
		return catalog.Album{}, err
	}
	if a.OwnerID != ownerID {
		return catalog.Album{}, fmt.Errorf("album %s: %w", albumID, catalog.ErrNotFound)
	}
	return a, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
