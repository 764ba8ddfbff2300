package objectstore

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptorRoundTrip(t *testing.T) {
	enc, err := NewEncryptor("server-secret")
	require.NoError(t, err)

	owner, photo := uuid.New(), uuid.New()
	sealed, err := enc.Seal(owner, photo, []byte("jpeg bytes"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "jpeg bytes")

	plain, err := enc.Open(owner, photo, sealed)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(plain))
}

func TestEncryptorRejectsForeignKeyOrPhoto(t *testing.T) {
	enc, err := NewEncryptor("server-secret")
	require.NoError(t, err)

	owner, photo := uuid.New(), uuid.New()
	sealed, err := enc.Seal(owner, photo, []byte("jpeg bytes"))
	require.NoError(t, err)

	_, err = enc.Open(uuid.New(), photo, sealed)
	require.ErrorIs(t, err, ErrCiphertext)
	_, err = enc.Open(owner, uuid.New(), sealed)
	require.ErrorIs(t, err, ErrCiphertext)
	_, err = enc.Open(owner, photo, sealed[:4])
	require.ErrorIs(t, err, ErrCiphertext)
}

func TestNewEncryptorRequiresSecret(t *testing.T) {
	_, err := NewEncryptor("")
	require.ErrorIs(t, err, ErrEncryptionDisabled)
}

func TestObjectKeyIsUniquePerCall(t *testing.T) {
	owner := uuid.New()
	a := ObjectKey(owner, "beach.JPG")
	b := ObjectKey(owner, "beach.JPG")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, owner.String()+"/"))
	assert.True(t, strings.HasSuffix(a, ".JPG"))
}

func TestSplitBackupPath(t *testing.T) {
	bucket, object, ok := splitBackupPath("photos-backup/owner/key.jpg")
	require.True(t, ok)
	assert.Equal(t, "photos-backup", bucket)
	assert.Equal(t, "owner/key.jpg", object)

	for _, bad := range []string{"", "nobucket", "/key", "bucket/"} {
		_, _, ok := splitBackupPath(bad)
		assert.False(t, ok, bad)
	}
}
