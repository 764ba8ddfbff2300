package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/quota"
	"github.com/abduss/photovault/internal/search"
	"github.com/abduss/photovault/internal/stats"
	"github.com/google/uuid"
)

type link struct {
	left  uuid.UUID
	right uuid.UUID
}

// memoryState is one immutable-by-convention snapshot of the catalog. Transactions work on a
// clone and replace the live snapshot on commit.
type memoryState struct {
	users       map[uuid.UUID]User
	usernames   map[string]uuid.UUID
	emails      map[string]uuid.UUID
	photos      map[uuid.UUID]Photo
	filepaths   map[string]uuid.UUID
	metadata    map[uuid.UUID]PhotoMetadata
	tags        map[uuid.UUID]Tag
	tagNames    map[string]uuid.UUID
	albums      map[uuid.UUID]Album
	photoTags   map[link]time.Time
	photoAlbums map[link]time.Time
}

func newMemoryState() *memoryState {
	return &memoryState{
		users:       map[uuid.UUID]User{},
		usernames:   map[string]uuid.UUID{},
		emails:      map[string]uuid.UUID{},
		photos:      map[uuid.UUID]Photo{},
		filepaths:   map[string]uuid.UUID{},
		metadata:    map[uuid.UUID]PhotoMetadata{},
		tags:        map[uuid.UUID]Tag{},
		tagNames:    map[string]uuid.UUID{},
		albums:      map[uuid.UUID]Album{},
		photoTags:   map[link]time.Time{},
		photoAlbums: map[link]time.Time{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		users:       cloneMap(s.users),
		usernames:   cloneMap(s.usernames),
		emails:      cloneMap(s.emails),
		photos:      cloneMap(s.photos),
		filepaths:   cloneMap(s.filepaths),
		metadata:    cloneMap(s.metadata),
		tags:        cloneMap(s.tags),
		tagNames:    cloneMap(s.tagNames),
		albums:      cloneMap(s.albums),
		photoTags:   cloneMap(s.photoTags),
		photoAlbums: cloneMap(s.photoAlbums),
	}
}

// MemoryStore is an in-process catalog used by tests and local runs. Writers are serialised
// and every transaction commits or discards its snapshot as a whole.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
	*memoryTx
}

// NewMemoryStore returns an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{state: newMemoryState(), now: func() time.Time { return time.Now().UTC() }}
	s.memoryTx = &memoryTx{store: s}
	return s
}

// SetClock overrides the timestamp source. It waits for running transactions.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memoryTx{store: s, st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// memoryTx runs operations against a transaction snapshot, or against the live state in its
// own implicit transaction when st is nil.
type memoryTx struct {
	store *MemoryStore
	st    *memoryState
}

func (t *memoryTx) read(fn func(st *memoryState) error) error {
	if t.st != nil {
		return fn(t.st)
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return fn(t.store.state)
}

func (t *memoryTx) write(fn func(st *memoryState) error) error {
	if t.st != nil {
		return fn(t.st)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	work := t.store.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	t.store.state = work
	return nil
}

func (t *memoryTx) now() time.Time {
	return t.store.now()
}

func (t *memoryTx) CreateUser(_ context.Context, in NewUser) (User, error) {
	var out User
	err := t.write(func(st *memoryState) error {
		username := strings.TrimSpace(in.Username)
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if _, ok := st.usernames[username]; ok {
			return fmt.Errorf("create user: %w: username", ErrUniqueViolation)
		}
		if _, ok := st.emails[email]; ok {
			return fmt.Errorf("create user: %w: email", ErrUniqueViolation)
		}
		if in.StorageQuota <= 0 {
			in.StorageQuota = DefaultStorageQuota
		}
		now := t.now()
		out = User{
			ID:                  uuid.New(),
			Username:            username,
			Email:               email,
			PasswordHash:        in.PasswordHash,
			StorageQuota:        in.StorageQuota,
			BackupFrequencyDays: DefaultBackupFrequencyDays,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		st.users[out.ID] = out
		st.usernames[username] = out.ID
		st.emails[email] = out.ID
		return nil
	})
	return out, err
}

func (t *memoryTx) GetUser(_ context.Context, id uuid.UUID) (User, error) {
	var out User
	err := t.read(func(st *memoryState) error {
		u, ok := st.users[id]
		if !ok {
			return fmt.Errorf("get user: %w", ErrNotFound)
		}
		out = u
		return nil
	})
	return out, err
}

func (t *memoryTx) GetUserByEmail(_ context.Context, email string) (User, error) {
	var out User
	err := t.read(func(st *memoryState) error {
		id, ok := st.emails[strings.ToLower(strings.TrimSpace(email))]
		if !ok {
			return fmt.Errorf("get user by email: %w", ErrNotFound)
		}
		out = st.users[id]
		return nil
	})
	return out, err
}

func (t *memoryTx) UpdateUser(_ context.Context, id uuid.UUID, patch UserPatch) (User, error) {
	var out User
	err := t.write(func(st *memoryState) error {
		u, ok := st.users[id]
		if !ok {
			return fmt.Errorf("update user: %w", ErrNotFound)
		}
		patch.applyTo(&u)
		if u.StorageQuota < 0 || u.StorageUsed > u.StorageQuota {
			return fmt.Errorf("update user: %w", quota.ErrQuotaExceeded)
		}
		if u.BackupFrequencyDays < 1 {
			return fmt.Errorf("update user: %w: backup frequency", ErrIntegrityViolation)
		}
		u.UpdatedAt = t.now()
		st.users[id] = u
		out = u
		return nil
	})
	return out, err
}

func (t *memoryTx) DeleteUser(_ context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := t.write(func(st *memoryState) error {
		u, ok := st.users[id]
		if !ok {
			return nil
		}
		for pid, p := range st.photos {
			if p.OwnerID == id {
				st.deletePhoto(pid)
			}
		}
		for aid, a := range st.albums {
			if a.OwnerID == id {
				st.deleteAlbum(aid)
			}
		}
		delete(st.users, id)
		delete(st.usernames, u.Username)
		delete(st.emails, u.Email)
		deleted = true
		return nil
	})
	return deleted, err
}

func (t *memoryTx) LockUsage(_ context.Context, userID uuid.UUID) (quota.Usage, error) {
	var out quota.Usage
	err := t.read(func(st *memoryState) error {
		u, ok := st.users[userID]
		if !ok {
			return fmt.Errorf("lock usage: %w", ErrNotFound)
		}
		out = quota.Usage{Quota: u.StorageQuota, Used: u.StorageUsed}
		return nil
	})
	return out, err
}

func (t *memoryTx) SetUsed(_ context.Context, userID uuid.UUID, used int64) error {
	return t.write(func(st *memoryState) error {
		u, ok := st.users[userID]
		if !ok {
			return fmt.Errorf("set storage used: %w", ErrNotFound)
		}
		if used < 0 || used > u.StorageQuota {
			return fmt.Errorf("set storage used: %w", quota.ErrQuotaExceeded)
		}
		u.StorageUsed = used
		u.UpdatedAt = t.now()
		st.users[userID] = u
		return nil
	})
}

func (t *memoryTx) CreatePhoto(_ context.Context, in NewPhoto) (Photo, error) {
	var out Photo
	err := t.write(func(st *memoryState) error {
		if _, ok := st.users[in.OwnerID]; !ok {
			return fmt.Errorf("create photo: %w: owner", ErrIntegrityViolation)
		}
		if _, ok := st.filepaths[in.Filepath]; ok {
			return fmt.Errorf("create photo: %w: filepath", ErrUniqueViolation)
		}
		if in.Size < 0 {
			return fmt.Errorf("create photo: %w: negative size", ErrIntegrityViolation)
		}
		now := t.now()
		uploaded := in.UploadDate
		if uploaded.IsZero() {
			uploaded = now
		}
		out = Photo{
			ID:         uuid.New(),
			OwnerID:    in.OwnerID,
			Filename:   in.Filename,
			Filepath:   in.Filepath,
			Size:       in.Size,
			UploadDate: uploaded,
			State:      lifecycle.Initial(uploaded),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		st.photos[out.ID] = out
		st.filepaths[out.Filepath] = out.ID
		return nil
	})
	return out, err
}

func (t *memoryTx) GetPhoto(_ context.Context, id uuid.UUID) (Photo, error) {
	var out Photo
	err := t.read(func(st *memoryState) error {
		p, ok := st.photos[id]
		if !ok {
			return fmt.Errorf("get photo: %w", ErrNotFound)
		}
		out = p
		return nil
	})
	return out, err
}

// LockPhoto is GetPhoto: memory transactions already run one at a time.
func (t *memoryTx) LockPhoto(ctx context.Context, id uuid.UUID) (Photo, error) {
	return t.GetPhoto(ctx, id)
}

func (t *memoryTx) ListPhotos(ctx context.Context, ownerID uuid.UUID, page search.Page) ([]Photo, error) {
	return t.SearchPhotos(ctx, ownerID, search.Filter{}, page)
}

func (t *memoryTx) SearchPhotos(_ context.Context, ownerID uuid.UUID, filter search.Filter, page search.Page) ([]Photo, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	var out []Photo
	err := t.read(func(st *memoryState) error {
		var matched []Photo
		for _, p := range st.photos {
			if filter.Match(ownerID, st.candidate(p)) {
				matched = append(matched, p)
			}
		}
		sort.Slice(matched, func(i, j int) bool {
			return search.NewestFirst(matched[i].UploadDate, matched[i].ID, matched[j].UploadDate, matched[j].ID)
		})
		lo, hi := page.Window(len(matched))
		out = matched[lo:hi]
		return nil
	})
	return out, err
}

func (st *memoryState) candidate(p Photo) search.Candidate {
	c := search.Candidate{ID: p.ID, OwnerID: p.OwnerID, Filename: p.Filename, UploadDate: p.UploadDate}
	for l := range st.photoTags {
		if l.left == p.ID {
			c.TagNames = append(c.TagNames, st.tags[l.right].Name)
		}
	}
	for l := range st.photoAlbums {
		if l.left == p.ID {
			c.AlbumIDs = append(c.AlbumIDs, l.right)
		}
	}
	return c
}

func (t *memoryTx) UpdatePhoto(_ context.Context, id uuid.UUID, patch PhotoPatch) (Photo, error) {
	var out Photo
	err := t.write(func(st *memoryState) error {
		p, ok := st.photos[id]
		if !ok {
			return fmt.Errorf("update photo: %w", ErrNotFound)
		}
		oldPath := p.Filepath
		currentVersion := p.Version
		patch.applyTo(&p)
		if p.Version < currentVersion {
			p.Version = currentVersion
		}
		if err := p.State.Validate(); err != nil {
			return fmt.Errorf("update photo: %w", err)
		}
		if p.Size < 0 {
			return fmt.Errorf("update photo: %w: negative size", ErrIntegrityViolation)
		}
		if p.Filepath != oldPath {
			if _, taken := st.filepaths[p.Filepath]; taken {
				return fmt.Errorf("update photo: %w: filepath", ErrUniqueViolation)
			}
			delete(st.filepaths, oldPath)
			st.filepaths[p.Filepath] = id
		}
		if !patch.Empty() {
			p.UpdatedAt = t.now()
		}
		st.photos[id] = p
		out = p
		return nil
	})
	return out, err
}

func (t *memoryTx) DeletePhoto(_ context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := t.write(func(st *memoryState) error {
		deleted = st.deletePhoto(id)
		return nil
	})
	return deleted, err
}

// deletePhoto removes a photo with its metadata and associations, and clears album covers.
func (st *memoryState) deletePhoto(id uuid.UUID) bool {
	p, ok := st.photos[id]
	if !ok {
		return false
	}
	delete(st.photos, id)
	delete(st.filepaths, p.Filepath)
	delete(st.metadata, id)
	for l := range st.photoTags {
		if l.left == id {
			delete(st.photoTags, l)
		}
	}
	for l := range st.photoAlbums {
		if l.left == id {
			delete(st.photoAlbums, l)
		}
	}
	for aid, a := range st.albums {
		if a.CoverPhotoID != nil && *a.CoverPhotoID == id {
			a.CoverPhotoID = nil
			st.albums[aid] = a
		}
	}
	return true
}

func (st *memoryState) deleteAlbum(id uuid.UUID) bool {
	if _, ok := st.albums[id]; !ok {
		return false
	}
	delete(st.albums, id)
	for l := range st.photoAlbums {
		if l.right == id {
			delete(st.photoAlbums, l)
		}
	}
	return true
}

func (t *memoryTx) BackupCandidates(_ context.Context, ownerID uuid.UUID, limit int) ([]Photo, error) {
	if limit <= 0 {
		limit = stats.DefaultBackupCandidates
	}
	var out []Photo
	err := t.read(func(st *memoryState) error {
		for _, p := range st.photos {
			if p.OwnerID == ownerID && p.IsBackupCandidate() {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return search.OldestFirst(out[i].UploadDate, out[i].ID, out[j].UploadDate, out[j].ID)
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (t *memoryTx) StorageTotals(_ context.Context, ownerID uuid.UUID) (stats.StorageTotals, error) {
	var out stats.StorageTotals
	err := t.read(func(st *memoryState) error {
		for _, p := range st.photos {
			if p.OwnerID == ownerID {
				out.Count++
				out.Bytes += p.Size
			}
		}
		return nil
	})
	return out, err
}
