package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/search"
	"github.com/abduss/photovault/internal/stats"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const photoColumns = `p.id, p.user_id, p.filename, p.filepath, p.size, p.upload_date,
p.storage_status, p.failure_reason, p.retry_count, p.backup_status, p.backup_path, p.restore_status,
p.is_encrypted, p.encryption_date, p.encryption_method, p.version, p.version_date, p.created_at, p.updated_at`

func scanPhoto(row pgx.Row) (Photo, error) {
	var (
		p         Photo
		storageSt string
		backupSt  string
		restoreSt *string
		encrypted bool
		encDate   *time.Time
		encMethod *string
	)
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Filename,
		&p.Filepath,
		&p.Size,
		&p.UploadDate,
		&storageSt,
		&p.FailureReason,
		&p.RetryCount,
		&backupSt,
		&p.BackupPath,
		&restoreSt,
		&encrypted,
		&encDate,
		&encMethod,
		&p.Version,
		&p.VersionDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Photo{}, err
	}

	p.Storage = lifecycle.StorageStatus(storageSt)
	p.Backup = lifecycle.BackupStatus(backupSt)
	if restoreSt != nil {
		p.Restore = lifecycle.RestoreStatus(*restoreSt)
	}
	if encrypted && encDate != nil && encMethod != nil {
		p.Encryption = &lifecycle.Encryption{Method: *encMethod, Date: *encDate}
	}
	return p, nil
}

func collectPhotos(rows pgx.Rows) ([]Photo, error) {
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return photos, nil
}

func restoreValue(r lifecycle.RestoreStatus) *string {
	if r == lifecycle.RestoreAbsent {
		return nil
	}
	v := string(r)
	return &v
}

func (t *postgresTx) CreatePhoto(ctx context.Context, in NewPhoto) (Photo, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	uploaded := in.UploadDate
	if uploaded.IsZero() {
		uploaded = time.Now().UTC()
	}
	state := lifecycle.Initial(uploaded)

	query := `
INSERT INTO photos AS p (id, user_id, filename, filepath, size, upload_date, storage_status, retry_count, backup_status, version, version_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
RETURNING ` + photoColumns + `;`

	p, err := scanPhoto(t.db.QueryRow(ctx, query,
		uuid.New(),
		in.OwnerID,
		in.Filename,
		in.Filepath,
		in.Size,
		uploaded,
		string(state.Storage),
		string(state.Backup),
		state.Version,
		state.VersionDate,
	))
	if err != nil {
		return Photo{}, fmt.Errorf("create photo: %w", translate(err))
	}
	return p, nil
}

func (t *postgresTx) GetPhoto(ctx context.Context, id uuid.UUID) (Photo, error) {
	return t.getPhoto(ctx, id, "")
}

func (t *postgresTx) LockPhoto(ctx context.Context, id uuid.UUID) (Photo, error) {
	return t.getPhoto(ctx, id, " FOR UPDATE")
}

func (t *postgresTx) getPhoto(ctx context.Context, id uuid.UUID, lock string) (Photo, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + photoColumns + ` FROM photos p WHERE p.id = $1` + lock + `;`
	p, err := scanPhoto(t.db.QueryRow(ctx, query, id))
	if err != nil {
		return Photo{}, fmt.Errorf("get photo: %w", translate(err))
	}
	return p, nil
}

func (t *postgresTx) ListPhotos(ctx context.Context, ownerID uuid.UUID, page search.Page) ([]Photo, error) {
	return t.SearchPhotos(ctx, ownerID, search.Filter{}, page)
}

func (t *postgresTx) SearchPhotos(ctx context.Context, ownerID uuid.UUID, filter search.Filter, page search.Page) ([]Photo, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	q := search.BuildSQL(photoColumns, ownerID, filter, page)
	rows, err := t.db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("search photos: %w", translate(err))
	}
	return collectPhotos(rows)
}

func (t *postgresTx) UpdatePhoto(ctx context.Context, id uuid.UUID, patch PhotoPatch) (Photo, error) {
	if patch.Empty() {
		return t.GetPhoto(ctx, id)
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query, args := photoUpdateSQL(id, patch)
	p, err := scanPhoto(t.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Photo{}, fmt.Errorf("update photo: %w", translate(err))
	}
	return p, nil
}

// photoUpdateSQL renders the partial UPDATE for patch; the id is always the last argument.
func photoUpdateSQL(id uuid.UUID, patch PhotoPatch) (string, []any) {
	var l setList
	if patch.Filename.Set {
		l.add("filename", patch.Filename.Value)
	}
	if patch.Filepath.Set {
		l.add("filepath", patch.Filepath.Value)
	}
	if patch.Size.Set {
		l.add("size", patch.Size.Value)
	}
	if patch.Storage.Set {
		l.add("storage_status", string(patch.Storage.Value))
	}
	if patch.FailureReason.Set {
		l.add("failure_reason", patch.FailureReason.Value)
	}
	if patch.RetryCount.Set {
		l.add("retry_count", patch.RetryCount.Value)
	}
	if patch.Backup.Set {
		l.add("backup_status", string(patch.Backup.Value))
	}
	if patch.BackupPath.Set {
		l.add("backup_path", patch.BackupPath.Value)
	}
	if patch.Restore.Set {
		l.add("restore_status", restoreValue(patch.Restore.Value))
	}
	if patch.Encryption.Set {
		if enc := patch.Encryption.Value; enc != nil {
			l.add("is_encrypted", true)
			l.add("encryption_method", enc.Method)
			l.add("encryption_date", enc.Date)
		} else {
			l.add("is_encrypted", false)
			l.add("encryption_method", nil)
			l.add("encryption_date", nil)
		}
	}
	if patch.Version.Set {
		// versions never move backwards
		l.raw("version = GREATEST(p.version, $%d)", patch.Version.Value)
	}
	if patch.VersionDate.Set {
		l.add("version_date", patch.VersionDate.Value)
	}
	l.sets = append(l.sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE photos p SET %s WHERE p.id = %s RETURNING %s;`,
		strings.Join(l.sets, ", "), l.where(id), photoColumns)
	return query, l.args
}

func (t *postgresTx) DeletePhoto(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.deleteByID(ctx, "photos", id)
}

func (t *postgresTx) BackupCandidates(ctx context.Context, ownerID uuid.UUID, limit int) ([]Photo, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if limit <= 0 {
		limit = stats.DefaultBackupCandidates
	}

	query := `
SELECT ` + photoColumns + `
FROM photos p
WHERE p.user_id = $1 AND p.storage_status = 'completed' AND p.backup_status = 'pending'
ORDER BY p.upload_date ASC, p.id ASC
LIMIT $2;`

	rows, err := t.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("backup candidates: %w", translate(err))
	}
	return collectPhotos(rows)
}

func (t *postgresTx) StorageTotals(ctx context.Context, ownerID uuid.UUID) (stats.StorageTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var out stats.StorageTotals
	err := t.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0)::BIGINT FROM photos WHERE user_id = $1;`, ownerID).
		Scan(&out.Count, &out.Bytes)
	if err != nil {
		return stats.StorageTotals{}, fmt.Errorf("storage totals: %w", translate(err))
	}
	return out, nil
}
