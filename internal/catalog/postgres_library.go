package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/photovault/internal/stats"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const metadataColumns = `m.id, m.photo_id, m.color_profile, m.dominant_colors, m.faces_detected, m.face_locations,
m.scene_type, m.scene_confidence, m.blur_score, m.exposure_score, m.aesthetic_score, m.raw_exif, m.created_at, m.updated_at`

func scanMetadata(row pgx.Row) (PhotoMetadata, error) {
	var m PhotoMetadata
	err := row.Scan(
		&m.ID,
		&m.PhotoID,
		&m.ColorProfile,
		&m.DominantColors,
		&m.FacesDetected,
		&m.FaceLocations,
		&m.SceneType,
		&m.SceneConfidence,
		&m.BlurScore,
		&m.ExposureScore,
		&m.AestheticScore,
		&m.RawExif,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

func (t *postgresTx) CreateMetadata(ctx context.Context, photoID uuid.UUID, patch MetadataPatch) (PhotoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var m PhotoMetadata
	patch.applyTo(&m)

	query := `
INSERT INTO photo_metadata AS m (id, photo_id, color_profile, dominant_colors, faces_detected, face_locations,
    scene_type, scene_confidence, blur_score, exposure_score, aesthetic_score, raw_exif)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + metadataColumns + `;`

	stored, err := scanMetadata(t.db.QueryRow(ctx, query,
		uuid.New(),
		photoID,
		m.ColorProfile,
		m.DominantColors,
		m.FacesDetected,
		m.FaceLocations,
		m.SceneType,
		m.SceneConfidence,
		m.BlurScore,
		m.ExposureScore,
		m.AestheticScore,
		m.RawExif,
	))
	if err != nil {
		return PhotoMetadata{}, fmt.Errorf("create metadata: %w", translate(err))
	}
	return stored, nil
}

func (t *postgresTx) UpdateMetadata(ctx context.Context, photoID uuid.UUID, patch MetadataPatch) (PhotoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var l setList
	fields := []struct {
		column string
		set    bool
		value  any
	}{
		{"color_profile", patch.ColorProfile.Set, patch.ColorProfile.Value},
		{"dominant_colors", patch.DominantColors.Set, patch.DominantColors.Value},
		{"faces_detected", patch.FacesDetected.Set, patch.FacesDetected.Value},
		{"face_locations", patch.FaceLocations.Set, patch.FaceLocations.Value},
		{"scene_type", patch.SceneType.Set, patch.SceneType.Value},
		{"scene_confidence", patch.SceneConfidence.Set, patch.SceneConfidence.Value},
		{"blur_score", patch.BlurScore.Set, patch.BlurScore.Value},
		{"exposure_score", patch.ExposureScore.Set, patch.ExposureScore.Value},
		{"aesthetic_score", patch.AestheticScore.Set, patch.AestheticScore.Value},
		{"raw_exif", patch.RawExif.Set, patch.RawExif.Value},
	}
	for _, f := range fields {
		if f.set {
			l.add(f.column, f.value)
		}
	}
	l.sets = append(l.sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE photo_metadata m SET %s WHERE m.photo_id = %s RETURNING %s;`,
		strings.Join(l.sets, ", "), l.where(photoID), metadataColumns)

	m, err := scanMetadata(t.db.QueryRow(ctx, query, l.args...))
	if err != nil {
		return PhotoMetadata{}, fmt.Errorf("update metadata: %w", translate(err))
	}
	return m, nil
}

func (t *postgresTx) GetMetadata(ctx context.Context, photoID uuid.UUID) (PhotoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	m, err := scanMetadata(t.db.QueryRow(ctx, `SELECT `+metadataColumns+` FROM photo_metadata m WHERE m.photo_id = $1;`, photoID))
	if err != nil {
		return PhotoMetadata{}, fmt.Errorf("get metadata: %w", translate(err))
	}
	return m, nil
}

// metadataQuerySQL renders FindMetadata's query. A nil owner searches every user.
func metadataQuerySQL(ownerID uuid.UUID, q MetadataQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if ownerID != uuid.Nil {
		conds = append(conds, "p.user_id = "+arg(ownerID))
	}
	if q.SceneType != "" {
		conds = append(conds, "m.scene_type = "+arg(q.SceneType), "m.scene_confidence >= "+arg(q.MinConfidence))
	}
	if q.MinFaces != nil {
		conds = append(conds, "m.faces_detected >= "+arg(*q.MinFaces))
	}
	if q.Scored {
		conds = append(conds, "m.aesthetic_score IS NOT NULL")
	}

	query := `SELECT ` + metadataColumns + ` FROM photo_metadata m JOIN photos p ON p.id = m.photo_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	switch q.OrderBy {
	case OrderByFaces:
		query += ` ORDER BY m.faces_detected DESC NULLS LAST, m.photo_id ASC`
	case OrderByAesthetic:
		query += ` ORDER BY m.aesthetic_score DESC NULLS LAST, m.photo_id ASC`
	default:
		query += ` ORDER BY m.scene_confidence DESC NULLS LAST, m.photo_id ASC`
	}
	if q.Limit > 0 {
		query += ` LIMIT ` + arg(q.Limit)
	}
	return query + ";", args
}

func (t *postgresTx) FindMetadata(ctx context.Context, ownerID uuid.UUID, q MetadataQuery) ([]PhotoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query, args := metadataQuerySQL(ownerID, q)
	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find metadata: %w", translate(err))
	}
	defer rows.Close()

	var out []PhotoMetadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}
	return out, nil
}

func (t *postgresTx) MetadataTotals(ctx context.Context, ownerID uuid.UUID) (stats.MetadataTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT COUNT(m.id),
       COALESCE(SUM(m.aesthetic_score), 0),
       COUNT(m.aesthetic_score),
       COALESCE(SUM(m.faces_detected), 0)::BIGINT,
       COUNT(m.faces_detected),
       COUNT(m.scene_type)
FROM photo_metadata m
JOIN photos p ON p.id = m.photo_id
WHERE $1::UUID = '00000000-0000-0000-0000-000000000000' OR p.user_id = $1;`

	var out stats.MetadataTotals
	err := t.db.QueryRow(ctx, query, ownerID).Scan(
		&out.Analyzed,
		&out.AestheticSum,
		&out.AestheticCount,
		&out.FacesSum,
		&out.FacesCount,
		&out.ScenesClassified,
	)
	if err != nil {
		return stats.MetadataTotals{}, fmt.Errorf("metadata totals: %w", translate(err))
	}
	return out, nil
}

const tagColumns = `id, name, description, created_at, updated_at`

func scanTag(row pgx.Row) (Tag, error) {
	var tag Tag
	err := row.Scan(&tag.ID, &tag.Name, &tag.Description, &tag.CreatedAt, &tag.UpdatedAt)
	return tag, err
}

func (t *postgresTx) CreateTag(ctx context.Context, name string, description *string) (Tag, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `INSERT INTO tags (id, name, description) VALUES ($1, $2, $3) RETURNING ` + tagColumns + `;`
	tag, err := scanTag(t.db.QueryRow(ctx, query, uuid.New(), name, description))
	if err != nil {
		return Tag{}, fmt.Errorf("create tag: %w", translate(err))
	}
	return tag, nil
}

func (t *postgresTx) GetTag(ctx context.Context, id uuid.UUID) (Tag, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := scanTag(t.db.QueryRow(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = $1;`, id))
	if err != nil {
		return Tag{}, fmt.Errorf("get tag: %w", translate(err))
	}
	return tag, nil
}

func (t *postgresTx) GetTagByName(ctx context.Context, name string) (Tag, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := scanTag(t.db.QueryRow(ctx, `SELECT `+tagColumns+` FROM tags WHERE name = $1;`, name))
	if err != nil {
		return Tag{}, fmt.Errorf("get tag by name: %w", translate(err))
	}
	return tag, nil
}

func (t *postgresTx) ListTags(ctx context.Context) ([]Tag, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	return t.queryTags(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY name ASC;`)
}

func (t *postgresTx) PhotoTags(ctx context.Context, photoID uuid.UUID) ([]Tag, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT t.id, t.name, t.description, t.created_at, t.updated_at
FROM tags t
JOIN photo_tags pt ON pt.tag_id = t.id
WHERE pt.photo_id = $1
ORDER BY t.name ASC;`
	return t.queryTags(ctx, query, photoID)
}

func (t *postgresTx) queryTags(ctx context.Context, query string, args ...any) ([]Tag, error) {
	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", translate(err))
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

func (t *postgresTx) DeleteTag(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.deleteByID(ctx, "tags", id)
}

func (t *postgresTx) TagPhoto(ctx context.Context, photoID, tagID uuid.UUID, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO photo_tags (photo_id, tag_id, added_at)
VALUES ($1, $2, $3)
ON CONFLICT (photo_id, tag_id) DO NOTHING;`
	if _, err := t.db.Exec(ctx, query, photoID, tagID, at); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("tag photo: %w", ErrNotFound)
		}
		return fmt.Errorf("tag photo: %w", translate(err))
	}
	return nil
}

func (t *postgresTx) UntagPhoto(ctx context.Context, photoID, tagID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := t.db.Exec(ctx, `DELETE FROM photo_tags WHERE photo_id = $1 AND tag_id = $2;`, photoID, tagID)
	if err != nil {
		return false, fmt.Errorf("untag photo: %w", translate(err))
	}
	return tag.RowsAffected() > 0, nil
}

const albumColumns = `id, user_id, name, description, cover_photo_id, created_at, updated_at`

func scanAlbum(row pgx.Row) (Album, error) {
	var a Album
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Description, &a.CoverPhotoID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// checkCover verifies that the cover photo exists and belongs to ownerID.
func (t *postgresTx) checkCover(ctx context.Context, ownerID uuid.UUID, coverID *uuid.UUID) error {
	if coverID == nil {
		return nil
	}
	var photoOwner uuid.UUID
	err := t.db.QueryRow(ctx, `SELECT user_id FROM photos WHERE id = $1;`, *coverID).Scan(&photoOwner)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("%w: cover photo does not exist", ErrIntegrityViolation)
	}
	if err != nil {
		return fmt.Errorf("check cover photo: %w", translate(err))
	}
	if photoOwner != ownerID {
		return fmt.Errorf("%w: cover photo belongs to another user", ErrIntegrityViolation)
	}
	return nil
}

func (t *postgresTx) CreateAlbum(ctx context.Context, in NewAlbum) (Album, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if err := t.checkCover(ctx, in.OwnerID, in.CoverPhotoID); err != nil {
		return Album{}, err
	}

	query := `
INSERT INTO albums (id, user_id, name, description, cover_photo_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + albumColumns + `;`

	a, err := scanAlbum(t.db.QueryRow(ctx, query, uuid.New(), in.OwnerID, in.Name, in.Description, in.CoverPhotoID))
	if err != nil {
		return Album{}, fmt.Errorf("create album: %w", translate(err))
	}
	return a, nil
}

func (t *postgresTx) GetAlbum(ctx context.Context, id uuid.UUID) (Album, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	a, err := scanAlbum(t.db.QueryRow(ctx, `SELECT `+albumColumns+` FROM albums WHERE id = $1;`, id))
	if err != nil {
		return Album{}, fmt.Errorf("get album: %w", translate(err))
	}
	return a, nil
}

func (t *postgresTx) ListAlbums(ctx context.Context, ownerID uuid.UUID) ([]Album, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := t.db.Query(ctx, `SELECT `+albumColumns+` FROM albums WHERE user_id = $1 ORDER BY created_at DESC, id ASC;`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", translate(err))
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, fmt.Errorf("scan album: %w", err)
		}
		albums = append(albums, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate albums: %w", err)
	}
	return albums, nil
}

func (t *postgresTx) UpdateAlbum(ctx context.Context, id uuid.UUID, patch AlbumPatch) (Album, error) {
	current, err := t.GetAlbum(ctx, id)
	if err != nil {
		return Album{}, err
	}
	if patch.CoverPhotoID.Set {
		if err := t.checkCover(ctx, current.OwnerID, patch.CoverPhotoID.Value); err != nil {
			return Album{}, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var l setList
	if patch.Name.Set {
		l.add("name", patch.Name.Value)
	}
	if patch.Description.Set {
		l.add("description", patch.Description.Value)
	}
	if patch.CoverPhotoID.Set {
		l.add("cover_photo_id", patch.CoverPhotoID.Value)
	}
	l.sets = append(l.sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE albums SET %s WHERE id = %s RETURNING %s;`,
		strings.Join(l.sets, ", "), l.where(id), albumColumns)

	a, err := scanAlbum(t.db.QueryRow(ctx, query, l.args...))
	if err != nil {
		return Album{}, fmt.Errorf("update album: %w", translate(err))
	}
	return a, nil
}

func (t *postgresTx) DeleteAlbum(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.deleteByID(ctx, "albums", id)
}

func (t *postgresTx) AddToAlbum(ctx context.Context, albumID, photoID uuid.UUID, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var albumOwner, photoOwner uuid.UUID
	err := t.db.QueryRow(ctx, `
SELECT a.user_id, p.user_id
FROM albums a, photos p
WHERE a.id = $1 AND p.id = $2;`, albumID, photoID).Scan(&albumOwner, &photoOwner)
	if err != nil {
		return fmt.Errorf("add to album: %w", translate(err))
	}
	if albumOwner != photoOwner {
		return fmt.Errorf("add to album: %w: photo belongs to another user", ErrIntegrityViolation)
	}

	query := `
INSERT INTO photo_albums (photo_id, album_id, added_at)
VALUES ($1, $2, $3)
ON CONFLICT (photo_id, album_id) DO NOTHING;`
	if _, err := t.db.Exec(ctx, query, photoID, albumID, at); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("add to album: %w", ErrNotFound)
		}
		return fmt.Errorf("add to album: %w", translate(err))
	}
	return nil
}

func (t *postgresTx) RemoveFromAlbum(ctx context.Context, albumID, photoID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := t.db.Exec(ctx, `DELETE FROM photo_albums WHERE album_id = $1 AND photo_id = $2;`, albumID, photoID)
	if err != nil {
		return false, fmt.Errorf("remove from album: %w", translate(err))
	}
	return tag.RowsAffected() > 0, nil
}
