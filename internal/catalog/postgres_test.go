package catalog

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/quota"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateMapsDriverErrors(t *testing.T) {
	plain := errors.New("connection reset")

	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "photos_user_id_filepath_key"}, ErrUniqueViolation},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "photos_user_id_fkey"}, ErrIntegrityViolation},
		{"quota check", &pgconn.PgError{Code: "23514", ConstraintName: "users_storage_used_chk"}, quota.ErrQuotaExceeded},
		{"lifecycle check", &pgconn.PgError{Code: "23514", ConstraintName: "photos_backup_path_chk"}, lifecycle.ErrInvalidTransition},
		{"size check", &pgconn.PgError{Code: "23514", ConstraintName: "photos_size_check"}, ErrIntegrityViolation},
		{"other check", &pgconn.PgError{Code: "23514", ConstraintName: "albums_name_chk"}, ErrIntegrityViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tc.in), tc.want)
		})
	}

	assert.NoError(t, translate(nil))
	assert.Same(t, plain, translate(plain))

	serialization := &pgconn.PgError{Code: "40001"}
	assert.Same(t, error(serialization), translate(serialization))
}

func TestPhotoUpdateSQLEncryptionAndVersion(t *testing.T) {
	id := uuid.New()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	query, args := photoUpdateSQL(id, PhotoPatch{
		Backup:     Some(lifecycle.BackupPending),
		Encryption: Some(&lifecycle.Encryption{Method: "aes-256-gcm", Date: at}),
		Version:    Some(3),
	})

	assert.True(t, strings.HasPrefix(query, "UPDATE photos p SET backup_status = $1, "))
	assert.Contains(t, query, "is_encrypted = $2, encryption_method = $3, encryption_date = $4")
	assert.Contains(t, query, "version = GREATEST(p.version, $5)")
	assert.Contains(t, query, "updated_at = NOW() WHERE p.id = $6 RETURNING ")
	require.Len(t, args, 6)
	assert.Equal(t, "pending", args[0])
	assert.Equal(t, true, args[1])
	assert.Equal(t, "aes-256-gcm", args[2])
	assert.Equal(t, at, args[3])
	assert.Equal(t, 3, args[4])
	assert.Equal(t, id, args[5])
}

func TestPhotoUpdateSQLClearsEncryptionAsATriple(t *testing.T) {
	id := uuid.New()

	query, args := photoUpdateSQL(id, PhotoPatch{
		Encryption: Some[*lifecycle.Encryption](nil),
		Restore:    Some(lifecycle.RestoreAbsent),
	})

	assert.Contains(t, query, "restore_status = $1, is_encrypted = $2, encryption_method = $3, encryption_date = $4")
	assert.NotContains(t, query, "GREATEST")
	require.Len(t, args, 5)
	assert.Nil(t, args[0])
	assert.Equal(t, false, args[1])
	assert.Nil(t, args[2])
	assert.Nil(t, args[3])
	assert.Equal(t, id, args[4])
}

func TestMetadataQuerySQLComposesPredicates(t *testing.T) {
	owner := uuid.New()
	faces := 2

	query, args := metadataQuerySQL(owner, MetadataQuery{
		SceneType:     "beach",
		MinConfidence: 0.5,
		MinFaces:      &faces,
		Scored:        true,
		OrderBy:       OrderByFaces,
		Limit:         10,
	})

	assert.Contains(t, query, "p.user_id = $1 AND m.scene_type = $2 AND m.scene_confidence >= $3 AND m.faces_detected >= $4")
	assert.Contains(t, query, "m.aesthetic_score IS NOT NULL")
	assert.Contains(t, query, "ORDER BY m.faces_detected DESC NULLS LAST, m.photo_id ASC LIMIT $5;")
	assert.Equal(t, []any{owner, "beach", 0.5, 2, 10}, args)
}

func TestMetadataQuerySQLWithoutOwnerSearchesEveryone(t *testing.T) {
	query, args := metadataQuerySQL(uuid.Nil, MetadataQuery{})

	assert.NotContains(t, query, "WHERE")
	assert.NotContains(t, query, "LIMIT")
	assert.True(t, strings.HasSuffix(query, "ORDER BY m.scene_confidence DESC NULLS LAST, m.photo_id ASC;"))
	assert.Empty(t, args)

	query, _ = metadataQuerySQL(uuid.Nil, MetadataQuery{OrderBy: OrderByAesthetic})
	assert.Contains(t, query, "ORDER BY m.aesthetic_score DESC NULLS LAST")
}
