// Package catalog persists users, photos, metadata, tags and albums with their
// associations. Every backend offers the same Tx operations and runs a function
// atomically through WithTx; the store itself applies single operations in their own
// implicit transaction.
package catalog

import (
	"context"
	"time"

	"github.com/abduss/photovault/internal/quota"
	"github.com/abduss/photovault/internal/search"
	"github.com/abduss/photovault/internal/stats"
	"github.com/google/uuid"
)

// Tx is the set of catalog operations available inside and outside a transaction.
// It doubles as the quota ledger's account view.
type Tx interface {
	quota.Accounts

	CreateUser(ctx context.Context, in NewUser) (User, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, patch UserPatch) (User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) (bool, error)

	CreatePhoto(ctx context.Context, in NewPhoto) (Photo, error)
	GetPhoto(ctx context.Context, id uuid.UUID) (Photo, error)
	// LockPhoto reads a photo and holds it against concurrent writers until the transaction ends.
	LockPhoto(ctx context.Context, id uuid.UUID) (Photo, error)
	ListPhotos(ctx context.Context, ownerID uuid.UUID, page search.Page) ([]Photo, error)
	UpdatePhoto(ctx context.Context, id uuid.UUID, patch PhotoPatch) (Photo, error)
	DeletePhoto(ctx context.Context, id uuid.UUID) (bool, error)
	SearchPhotos(ctx context.Context, ownerID uuid.UUID, filter search.Filter, page search.Page) ([]Photo, error)
	BackupCandidates(ctx context.Context, ownerID uuid.UUID, limit int) ([]Photo, error)
	StorageTotals(ctx context.Context, ownerID uuid.UUID) (stats.StorageTotals, error)

	CreateMetadata(ctx context.Context, photoID uuid.UUID, patch MetadataPatch) (PhotoMetadata, error)
	UpdateMetadata(ctx context.Context, photoID uuid.UUID, patch MetadataPatch) (PhotoMetadata, error)
	GetMetadata(ctx context.Context, photoID uuid.UUID) (PhotoMetadata, error)
	FindMetadata(ctx context.Context, ownerID uuid.UUID, q MetadataQuery) ([]PhotoMetadata, error)
	MetadataTotals(ctx context.Context, ownerID uuid.UUID) (stats.MetadataTotals, error)

	CreateTag(ctx context.Context, name string, description *string) (Tag, error)
	GetTag(ctx context.Context, id uuid.UUID) (Tag, error)
	GetTagByName(ctx context.Context, name string) (Tag, error)
	ListTags(ctx context.Context) ([]Tag, error)
	DeleteTag(ctx context.Context, id uuid.UUID) (bool, error)
	// TagPhoto is idempotent; tagging an already tagged photo keeps the original timestamp.
	TagPhoto(ctx context.Context, photoID, tagID uuid.UUID, at time.Time) error
	UntagPhoto(ctx context.Context, photoID, tagID uuid.UUID) (bool, error)
	PhotoTags(ctx context.Context, photoID uuid.UUID) ([]Tag, error)

	CreateAlbum(ctx context.Context, in NewAlbum) (Album, error)
	GetAlbum(ctx context.Context, id uuid.UUID) (Album, error)
	ListAlbums(ctx context.Context, ownerID uuid.UUID) ([]Album, error)
	UpdateAlbum(ctx context.Context, id uuid.UUID, patch AlbumPatch) (Album, error)
	DeleteAlbum(ctx context.Context, id uuid.UUID) (bool, error)
	AddToAlbum(ctx context.Context, albumID, photoID uuid.UUID, at time.Time) error
	RemoveFromAlbum(ctx context.Context, albumID, photoID uuid.UUID) (bool, error)
}

// Store is a catalog backend.
type Store interface {
	Tx
	// WithTx runs fn in one transaction. Any error returned by fn, or a panic, rolls back
	// every write fn made.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
