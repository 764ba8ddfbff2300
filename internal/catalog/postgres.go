package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/quota"
	"github.com/abduss/photovault/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// PostgresStore is the PostgreSQL catalog backend.
type PostgresStore struct {
	pool *pgxpool.Pool
	*postgresTx
}

// NewPostgresStore builds a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, postgresTx: &postgresTx{db: pool}}
}

// WithTx runs fn in a single database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return storage.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &postgresTx{db: tx})
	})
}

// postgresTx implements Tx over either the pool or an open transaction.
type postgresTx struct {
	db storage.DBTX
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// translate maps driver errors onto catalog, quota and lifecycle error kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	case "23503":
		return fmt.Errorf("%w: %s", ErrIntegrityViolation, pgErr.ConstraintName)
	case "23514":
		switch {
		case pgErr.ConstraintName == "users_storage_used_chk":
			return fmt.Errorf("%w: %s", quota.ErrQuotaExceeded, pgErr.ConstraintName)
		case strings.HasPrefix(pgErr.ConstraintName, "photos_") && pgErr.ConstraintName != "photos_size_check":
			return fmt.Errorf("%w: %s", lifecycle.ErrInvalidTransition, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w: %s", ErrIntegrityViolation, pgErr.ConstraintName)
	}
	return err
}

// setList accumulates SET clauses and their arguments for partial updates.
type setList struct {
	sets []string
	args []any
}

func (l *setList) add(column string, value any) {
	l.args = append(l.args, value)
	l.sets = append(l.sets, fmt.Sprintf("%s = $%d", column, len(l.args)))
}

func (l *setList) raw(clause string, value any) {
	l.args = append(l.args, value)
	l.sets = append(l.sets, fmt.Sprintf(clause, len(l.args)))
}

func (l *setList) where(value any) string {
	l.args = append(l.args, value)
	return fmt.Sprintf("$%d", len(l.args))
}

const userColumns = `id, username, email, password_hash, is_admin, storage_quota, storage_used, encryption_enabled, backup_enabled,
backup_frequency_days, last_backup_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.StorageQuota,
		&u.StorageUsed,
		&u.EncryptionEnabled,
		&u.BackupEnabled,
		&u.BackupFrequencyDays,
		&u.LastBackupAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (t *postgresTx) CreateUser(ctx context.Context, in NewUser) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if in.StorageQuota <= 0 {
		in.StorageQuota = DefaultStorageQuota
	}

	query := `
INSERT INTO users (id, username, email, password_hash, storage_quota, storage_used, backup_frequency_days)
VALUES ($1, $2, $3, $4, $5, 0, $6)
RETURNING ` + userColumns + `;`

	u, err := scanUser(t.db.QueryRow(ctx, query,
		uuid.New(),
		strings.TrimSpace(in.Username),
		strings.ToLower(strings.TrimSpace(in.Email)),
		in.PasswordHash,
		in.StorageQuota,
		DefaultBackupFrequencyDays,
	))
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", translate(err))
	}
	return u, nil
}

func (t *postgresTx) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	u, err := scanUser(t.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, id))
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", translate(err))
	}
	return u, nil
}

func (t *postgresTx) GetUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	u, err := scanUser(t.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1;`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", translate(err))
	}
	return u, nil
}

func (t *postgresTx) UpdateUser(ctx context.Context, id uuid.UUID, patch UserPatch) (User, error) {
	if patch.Empty() {
		return t.GetUser(ctx, id)
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var l setList
	if patch.StorageQuota.Set {
		l.add("storage_quota", patch.StorageQuota.Value)
	}
	if patch.EncryptionEnabled.Set {
		l.add("encryption_enabled", patch.EncryptionEnabled.Value)
	}
	if patch.BackupEnabled.Set {
		l.add("backup_enabled", patch.BackupEnabled.Value)
	}
	if patch.BackupFrequencyDays.Set {
		l.add("backup_frequency_days", patch.BackupFrequencyDays.Value)
	}
	if patch.LastBackupAt.Set {
		l.add("last_backup_at", patch.LastBackupAt.Value)
	}
	l.sets = append(l.sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = %s RETURNING %s;`,
		strings.Join(l.sets, ", "), l.where(id), userColumns)

	u, err := scanUser(t.db.QueryRow(ctx, query, l.args...))
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", translate(err))
	}
	return u, nil
}

func (t *postgresTx) DeleteUser(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.deleteByID(ctx, "users", id)
}

func (t *postgresTx) LockUsage(ctx context.Context, userID uuid.UUID) (quota.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var u quota.Usage
	err := t.db.QueryRow(ctx, `SELECT storage_quota, storage_used FROM users WHERE id = $1 FOR UPDATE;`, userID).
		Scan(&u.Quota, &u.Used)
	if err != nil {
		return quota.Usage{}, fmt.Errorf("lock usage: %w", translate(err))
	}
	return u, nil
}

func (t *postgresTx) SetUsed(ctx context.Context, userID uuid.UUID, used int64) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := t.db.Exec(ctx, `UPDATE users SET storage_used = $2, updated_at = NOW() WHERE id = $1;`, userID, used)
	if err != nil {
		return fmt.Errorf("set storage used: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// deleteByID removes one row by primary key. table is always a constant.
func (t *postgresTx) deleteByID(ctx context.Context, table string, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := t.db.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1;`, id)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, translate(err))
	}
	return tag.RowsAffected() > 0, nil
}
