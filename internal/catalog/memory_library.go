package catalog

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/abduss/photovault/internal/stats"
	"github.com/google/uuid"
)

func (t *memoryTx) CreateMetadata(_ context.Context, photoID uuid.UUID, patch MetadataPatch) (PhotoMetadata, error) {
	var out PhotoMetadata
	err := t.write(func(st *memoryState) error {
		if _, ok := st.photos[photoID]; !ok {
			return fmt.Errorf("create metadata: %w: photo", ErrIntegrityViolation)
		}
		if _, ok := st.metadata[photoID]; ok {
			return fmt.Errorf("create metadata: %w: photo_id", ErrUniqueViolation)
		}
		now := t.now()
		out = PhotoMetadata{ID: uuid.New(), PhotoID: photoID, CreatedAt: now, UpdatedAt: now}
		patch.applyTo(&out)
		st.metadata[photoID] = out
		return nil
	})
	return out, err
}

func (t *memoryTx) UpdateMetadata(_ context.Context, photoID uuid.UUID, patch MetadataPatch) (PhotoMetadata, error) {
	var out PhotoMetadata
	err := t.write(func(st *memoryState) error {
		m, ok := st.metadata[photoID]
		if !ok {
			return fmt.Errorf("update metadata: %w", ErrNotFound)
		}
		patch.applyTo(&m)
		m.UpdatedAt = t.now()
		st.metadata[photoID] = m
		out = m
		return nil
	})
	return out, err
}

func (t *memoryTx) GetMetadata(_ context.Context, photoID uuid.UUID) (PhotoMetadata, error) {
	var out PhotoMetadata
	err := t.read(func(st *memoryState) error {
		m, ok := st.metadata[photoID]
		if !ok {
			return fmt.Errorf("get metadata: %w", ErrNotFound)
		}
		out = m
		return nil
	})
	return out, err
}

func (t *memoryTx) FindMetadata(_ context.Context, ownerID uuid.UUID, q MetadataQuery) ([]PhotoMetadata, error) {
	var out []PhotoMetadata
	err := t.read(func(st *memoryState) error {
		for pid, m := range st.metadata {
			if ownerID != uuid.Nil && st.photos[pid].OwnerID != ownerID {
				continue
			}
			if q.SceneType != "" && (m.SceneType == nil || *m.SceneType != q.SceneType ||
				m.SceneConfidence == nil || *m.SceneConfidence < q.MinConfidence) {
				continue
			}
			if q.MinFaces != nil && (m.FacesDetected == nil || *m.FacesDetected < *q.MinFaces) {
				continue
			}
			if q.Scored && m.AestheticScore == nil {
				continue
			}
			out = append(out, m)
		}
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i], out[j]
			var c int
			switch q.OrderBy {
			case OrderByFaces:
				c = compareDesc(intValue(a.FacesDetected), intValue(b.FacesDetected))
			case OrderByAesthetic:
				c = compareDesc(a.AestheticScore, b.AestheticScore)
			default:
				c = compareDesc(a.SceneConfidence, b.SceneConfidence)
			}
			if c != 0 {
				return c < 0
			}
			return bytes.Compare(a.PhotoID[:], b.PhotoID[:]) < 0
		})
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[:q.Limit]
		}
		return nil
	})
	return out, err
}

func intValue(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// compareDesc orders larger values first and missing values last.
func compareDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a > *b:
		return -1
	case *a < *b:
		return 1
	}
	return 0
}

func (t *memoryTx) MetadataTotals(_ context.Context, ownerID uuid.UUID) (stats.MetadataTotals, error) {
	var out stats.MetadataTotals
	err := t.read(func(st *memoryState) error {
		for pid, m := range st.metadata {
			if ownerID != uuid.Nil && st.photos[pid].OwnerID != ownerID {
				continue
			}
			out.Analyzed++
			if m.AestheticScore != nil {
				out.AestheticSum += *m.AestheticScore
				out.AestheticCount++
			}
			if m.FacesDetected != nil {
				out.FacesSum += int64(*m.FacesDetected)
				out.FacesCount++
			}
			if m.SceneType != nil {
				out.ScenesClassified++
			}
		}
		return nil
	})
	return out, err
}

func (t *memoryTx) CreateTag(_ context.Context, name string, description *string) (Tag, error) {
	var out Tag
	err := t.write(func(st *memoryState) error {
		if _, ok := st.tagNames[name]; ok {
			return fmt.Errorf("create tag: %w: name", ErrUniqueViolation)
		}
		now := t.now()
		out = Tag{ID: uuid.New(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
		st.tags[out.ID] = out
		st.tagNames[name] = out.ID
		return nil
	})
	return out, err
}

func (t *memoryTx) GetTag(_ context.Context, id uuid.UUID) (Tag, error) {
	var out Tag
	err := t.read(func(st *memoryState) error {
		tag, ok := st.tags[id]
		if !ok {
			return fmt.Errorf("get tag: %w", ErrNotFound)
		}
		out = tag
		return nil
	})
	return out, err
}

func (t *memoryTx) GetTagByName(_ context.Context, name string) (Tag, error) {
	var out Tag
	err := t.read(func(st *memoryState) error {
		id, ok := st.tagNames[name]
		if !ok {
			return fmt.Errorf("get tag by name: %w", ErrNotFound)
		}
		out = st.tags[id]
		return nil
	})
	return out, err
}

func (t *memoryTx) ListTags(_ context.Context) ([]Tag, error) {
	var out []Tag
	err := t.read(func(st *memoryState) error {
		for _, tag := range st.tags {
			out = append(out, tag)
		}
		sortTags(out)
		return nil
	})
	return out, err
}

func sortTags(tags []Tag) {
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
}

func (t *memoryTx) DeleteTag(_ context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := t.write(func(st *memoryState) error {
		tag, ok := st.tags[id]
		if !ok {
			return nil
		}
		delete(st.tags, id)
		delete(st.tagNames, tag.Name)
		for l := range st.photoTags {
			if l.right == id {
				delete(st.photoTags, l)
			}
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (t *memoryTx) TagPhoto(_ context.Context, photoID, tagID uuid.UUID, at time.Time) error {
	return t.write(func(st *memoryState) error {
		if _, ok := st.photos[photoID]; !ok {
			return fmt.Errorf("tag photo: %w", ErrNotFound)
		}
		if _, ok := st.tags[tagID]; !ok {
			return fmt.Errorf("tag photo: %w", ErrNotFound)
		}
		key := link{left: photoID, right: tagID}
		if _, ok := st.photoTags[key]; !ok {
			st.photoTags[key] = at
		}
		return nil
	})
}

func (t *memoryTx) UntagPhoto(_ context.Context, photoID, tagID uuid.UUID) (bool, error) {
	var removed bool
	err := t.write(func(st *memoryState) error {
		key := link{left: photoID, right: tagID}
		if _, ok := st.photoTags[key]; ok {
			delete(st.photoTags, key)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (t *memoryTx) PhotoTags(_ context.Context, photoID uuid.UUID) ([]Tag, error) {
	var out []Tag
	err := t.read(func(st *memoryState) error {
		for l := range st.photoTags {
			if l.left == photoID {
				out = append(out, st.tags[l.right])
			}
		}
		sortTags(out)
		return nil
	})
	return out, err
}

func (st *memoryState) checkCover(ownerID uuid.UUID, coverID *uuid.UUID) error {
	if coverID == nil {
		return nil
	}
	p, ok := st.photos[*coverID]
	if !ok {
		return fmt.Errorf("%w: cover photo does not exist", ErrIntegrityViolation)
	}
	if p.OwnerID != ownerID {
		return fmt.Errorf("%w: cover photo belongs to another user", ErrIntegrityViolation)
	}
	return nil
}

func (t *memoryTx) CreateAlbum(_ context.Context, in NewAlbum) (Album, error) {
	var out Album
	err := t.write(func(st *memoryState) error {
		if _, ok := st.users[in.OwnerID]; !ok {
			return fmt.Errorf("create album: %w: owner", ErrIntegrityViolation)
		}
		if err := st.checkCover(in.OwnerID, in.CoverPhotoID); err != nil {
			return err
		}
		now := t.now()
		out = Album{
			ID:           uuid.New(),
			OwnerID:      in.OwnerID,
			Name:         in.Name,
			Description:  in.Description,
			CoverPhotoID: in.CoverPhotoID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		st.albums[out.ID] = out
		return nil
	})
	return out, err
}

func (t *memoryTx) GetAlbum(_ context.Context, id uuid.UUID) (Album, error) {
	var out Album
	err := t.read(func(st *memoryState) error {
		a, ok := st.albums[id]
		if !ok {
			return fmt.Errorf("get album: %w", ErrNotFound)
		}
		out = a
		return nil
	})
	return out, err
}

func (t *memoryTx) ListAlbums(_ context.Context, ownerID uuid.UUID) ([]Album, error) {
	var out []Album
	err := t.read(func(st *memoryState) error {
		for _, a := range st.albums {
			if a.OwnerID == ownerID {
				out = append(out, a)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
		})
		return nil
	})
	return out, err
}

func (t *memoryTx) UpdateAlbum(_ context.Context, id uuid.UUID, patch AlbumPatch) (Album, error) {
	var out Album
	err := t.write(func(st *memoryState) error {
		a, ok := st.albums[id]
		if !ok {
			return fmt.Errorf("update album: %w", ErrNotFound)
		}
		if patch.CoverPhotoID.Set {
			if err := st.checkCover(a.OwnerID, patch.CoverPhotoID.Value); err != nil {
				return err
			}
		}
		patch.applyTo(&a)
		a.UpdatedAt = t.now()
		st.albums[id] = a
		out = a
		return nil
	})
	return out, err
}

func (t *memoryTx) DeleteAlbum(_ context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := t.write(func(st *memoryState) error {
		deleted = st.deleteAlbum(id)
		return nil
	})
	return deleted, err
}

func (t *memoryTx) AddToAlbum(_ context.Context, albumID, photoID uuid.UUID, at time.Time) error {
	return t.write(func(st *memoryState) error {
		a, ok := st.albums[albumID]
		if !ok {
			return fmt.Errorf("add to album: %w", ErrNotFound)
		}
		p, ok := st.photos[photoID]
		if !ok {
			return fmt.Errorf("add to album: %w", ErrNotFound)
		}
		if a.OwnerID != p.OwnerID {
			return fmt.Errorf("add to album: %w: photo belongs to another user", ErrIntegrityViolation)
		}
		key := link{left: photoID, right: albumID}
		if _, ok := st.photoAlbums[key]; !ok {
			st.photoAlbums[key] = at
		}
		return nil
	})
}

func (t *memoryTx) RemoveFromAlbum(_ context.Context, albumID, photoID uuid.UUID) (bool, error) {
	var removed bool
	err := t.write(func(st *memoryState) error {
		key := link{left: photoID, right: albumID}
		if _, ok := st.photoAlbums[key]; ok {
			delete(st.photoAlbums, key)
			removed = true
		}
		return nil
	})
	return removed, err
}
