package photo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/config"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/objectstore"
	"github.com/abduss/photovault/internal/quota"
	"github.com/abduss/photovault/internal/search"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, quotaBytes int64) (*Service, *catalog.MemoryStore, *fakeObjects, catalog.User) {
	t.Helper()
	store := catalog.NewMemoryStore()
	objects := newFakeObjects()
	svc := NewService(store, objects, lifecycle.DefaultPolicy(), config.StorageConfig{MaxUploadBytes: 1024}, nil)
	user := mustUser(t, store, "alice", quotaBytes)
	return svc, store, objects, user
}

func mustUser(t *testing.T, store *catalog.MemoryStore, name string, quotaBytes int64) catalog.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), catalog.NewUser{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		StorageQuota: quotaBytes,
	})
	require.NoError(t, err)
	return u
}

func usedBytes(t *testing.T, store *catalog.MemoryStore, userID uuid.UUID) int64 {
	t.Helper()
	u, err := store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.StorageUsed
}

func TestCreateRejectsOverQuotaWithoutOrphan(t *testing.T) {
	svc, store, _, user := newTestService(t, 2000)
	ctx := context.Background()

	a, err := svc.Create(ctx, user.ID, CreateInput{Filename: "a.jpg", Filepath: "u/a.jpg", Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StoragePending, a.Storage)
	assert.Equal(t, int64(1000), usedBytes(t, store, user.ID))

	_, err = svc.Create(ctx, user.ID, CreateInput{Filename: "b.jpg", Filepath: "u/b.jpg", Size: 1500})
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)
	assert.Equal(t, int64(1000), usedBytes(t, store, user.ID))

	list, err := svc.List(ctx, user.ID, search.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestCreateDuplicateFilepathKeepsQuota(t *testing.T) {
	svc, store, _, user := newTestService(t, 2000)
	ctx := context.Background()

	_, err := svc.Create(ctx, user.ID, CreateInput{Filename: "a.jpg", Filepath: "u/a.jpg", Size: 100})
	require.NoError(t, err)
	_, err = svc.Create(ctx, user.ID, CreateInput{Filename: "a.jpg", Filepath: "u/a.jpg", Size: 100})
	require.ErrorIs(t, err, catalog.ErrUniqueViolation)
	assert.Equal(t, int64(100), usedBytes(t, store, user.ID))
}

func TestUploadStoresContent(t *testing.T) {
	svc, store, objects, user := newTestService(t, 2000)
	content := []byte("hello photo")

	p, err := svc.Upload(context.Background(), user.ID, "beach.jpg", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if p.Storage != lifecycle.StorageCompleted {
		t.Fatalf("expected stored photo, got %s", p.Storage)
	}
	if !strings.HasPrefix(p.Filepath, user.ID.String()+"/") || !strings.HasSuffix(p.Filepath, ".jpg") {
		t.Fatalf("unexpected object key %q", p.Filepath)
	}
	if got := objects.object(p.Filepath); !bytes.Equal(got, content) {
		t.Fatalf("stored bytes differ: %q", got)
	}
	if used := usedBytes(t, store, user.ID); used != int64(len(content)) {
		t.Fatalf("expected %d bytes used, got %d", len(content), used)
	}
	if p.IsEncrypted() {
		t.Fatalf("expected plaintext upload")
	}
}

func TestUploadLimits(t *testing.T) {
	svc, store, _, user := newTestService(t, 1<<20)
	ctx := context.Background()

	_, err := svc.Upload(ctx, user.ID, "big.jpg", bytes.NewReader(make([]byte, 1025)))
	require.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.Upload(ctx, user.ID, "empty.jpg", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrEmptyUpload)
	assert.Zero(t, usedBytes(t, store, user.ID))
}

func TestUploadFailureThenRetry(t *testing.T) {
	svc, _, objects, user := newTestService(t, 2000)
	ctx := context.Background()
	content := []byte("retry me")

	objects.failPut = true
	p, err := svc.Upload(ctx, user.ID, "a.png", bytes.NewReader(content))
	require.ErrorIs(t, err, ErrTransport)
	require.Equal(t, lifecycle.StorageFailed, p.Storage)
	require.NotNil(t, p.FailureReason)
	assert.Contains(t, *p.FailureReason, "put failed")

	_, err = svc.RetryStorage(ctx, user.ID, p.ID, bytes.NewReader([]byte("other size!")))
	require.ErrorIs(t, err, ErrSizeMismatch)

	objects.failPut = false
	retried, err := svc.RetryStorage(ctx, user.ID, p.ID, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StorageCompleted, retried.Storage)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Nil(t, retried.FailureReason)
	assert.Equal(t, 1, retried.Version)
}

func TestRetryCeilingLeavesPhotoFailed(t *testing.T) {
	store := catalog.NewMemoryStore()
	objects := newFakeObjects()
	svc := NewService(store, objects, lifecycle.Policy{MaxRetries: 1}, config.StorageConfig{}, nil)
	user := mustUser(t, store, "bob", 2000)
	ctx := context.Background()
	content := []byte("abc")

	objects.failPut = true
	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader(content))
	require.ErrorIs(t, err, ErrTransport)

	p, err = svc.RetryStorage(ctx, user.ID, p.ID, bytes.NewReader(content))
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, p.RetryCount)

	_, err = svc.RetryStorage(ctx, user.ID, p.ID, bytes.NewReader(content))
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	got, err := svc.Get(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StorageFailed, got.Storage)
	assert.Equal(t, 1, got.RetryCount)

	candidates, err := svc.BackupCandidates(ctx, user.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestDeleteReleasesQuotaAndObject(t *testing.T) {
	svc, store, objects, user := newTestService(t, 2000)
	other := mustUser(t, store, "mallory", 2000)
	ctx := context.Background()

	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	_, err = svc.Backup(ctx, user.ID, p.ID)
	require.NoError(t, err)
	require.True(t, objects.hasBackup(p.Filepath))

	removed, err := svc.Delete(ctx, other.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, removed, "other users cannot delete")

	removed, err = svc.Delete(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Zero(t, usedBytes(t, store, user.ID))
	assert.Nil(t, objects.object(p.Filepath))
	assert.False(t, objects.hasBackup(p.Filepath), "backup copy is removed with the photo")

	removed, err = svc.Delete(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestForeignPhotosAreHidden(t *testing.T) {
	svc, store, _, user := newTestService(t, 2000)
	other := mustUser(t, store, "mallory", 2000)
	ctx := context.Background()

	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)

	_, err = svc.Get(ctx, other.ID, p.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = svc.SetBackupStatus(ctx, other.ID, p.ID, lifecycle.BackupFailed, "")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, _, err = svc.Download(ctx, other.ID, p.ID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestReplaceContentBumpsVersion(t *testing.T) {
	svc, store, objects, user := newTestService(t, 100)
	ctx := context.Background()

	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader(make([]byte, 10)))
	require.NoError(t, err)
	p, err = svc.Backup(ctx, user.ID, p.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.BackupCompleted, p.Backup)

	replaced, err := svc.ReplaceContent(ctx, user.ID, p.ID, bytes.NewReader(make([]byte, 40)))
	require.NoError(t, err)
	assert.Equal(t, 2, replaced.Version)
	assert.Equal(t, int64(40), replaced.Size)
	assert.Equal(t, lifecycle.StorageCompleted, replaced.Storage)
	assert.Equal(t, lifecycle.BackupPending, replaced.Backup)
	assert.Nil(t, replaced.BackupPath)
	assert.Equal(t, int64(40), usedBytes(t, store, user.ID))
	assert.Len(t, objects.object(p.Filepath), 40)

	_, err = svc.ReplaceContent(ctx, user.ID, p.ID, bytes.NewReader(make([]byte, 101)))
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)
}

func TestReplaceContentOverQuota(t *testing.T) {
	svc, store, _, user := newTestService(t, 50)
	ctx := context.Background()

	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader(make([]byte, 30)))
	require.NoError(t, err)

	_, err = svc.ReplaceContent(ctx, user.ID, p.ID, bytes.NewReader(make([]byte, 60)))
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)

	got, err := svc.Get(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, int64(30), got.Size)
	assert.Equal(t, int64(30), usedBytes(t, store, user.ID))
}

func TestBackupAndRestore(t *testing.T) {
	svc, _, objects, user := newTestService(t, 2000)
	ctx := context.Background()

	pending, err := svc.Create(ctx, user.ID, CreateInput{Filename: "x.jpg", Filepath: "u/x.jpg", Size: 1})
	require.NoError(t, err)
	_, err = svc.Backup(ctx, user.ID, pending.ID)
	require.ErrorIs(t, err, ErrNotStored)

	_, err = svc.Restore(ctx, user.ID, pending.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader([]byte("original")))
	require.NoError(t, err)

	p, err = svc.Backup(ctx, user.ID, p.ID)
	require.NoError(t, err)
	require.NotNil(t, p.BackupPath)
	assert.Equal(t, "backup/"+p.Filepath, *p.BackupPath)

	_, err = svc.Backup(ctx, user.ID, p.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	objects.put(p.Filepath, []byte("corrupted"))
	objects.failRestore = true
	_, err = svc.Restore(ctx, user.ID, p.ID)
	require.ErrorIs(t, err, ErrTransport)
	got, err := svc.Get(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RestoreNone, got.Restore)

	objects.failRestore = false
	restored, err := svc.Restore(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RestoreCompleted, restored.Restore)
	assert.Equal(t, []byte("original"), objects.object(p.Filepath))
}

func TestRestoreAfterEncryptionChangeNeedsNewBackup(t *testing.T) {
	svc, _, objects, user := newTestService(t, 2000)
	ctx := context.Background()
	enc, err := objectstore.NewEncryptor("test-secret")
	require.NoError(t, err)
	svc.WithCipher(enc)

	content := []byte("original")
	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader(content))
	require.NoError(t, err)
	_, err = svc.Backup(ctx, user.ID, p.ID)
	require.NoError(t, err)

	p, err = svc.Encrypt(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BackupPending, p.Backup)
	assert.Nil(t, p.BackupPath)
	assert.False(t, objects.hasBackup(p.Filepath), "plaintext backup is dropped")

	_, err = svc.Restore(ctx, user.ID, p.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = svc.Backup(ctx, user.ID, p.ID)
	require.NoError(t, err)
	restored, err := svc.Restore(ctx, user.ID, p.ID)
	require.NoError(t, err)
	require.True(t, restored.IsEncrypted())

	_, rc, err := svc.Download(ctx, user.ID, p.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	p, err = svc.Decrypt(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BackupPending, p.Backup)
	_, err = svc.Backup(ctx, user.ID, p.ID)
	require.NoError(t, err)
	_, err = svc.Restore(ctx, user.ID, p.ID)
	require.NoError(t, err)

	_, rc, err = svc.Download(ctx, user.ID, p.ID)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestBackupFailureCanBeRetried(t *testing.T) {
	svc, _, objects, user := newTestService(t, 2000)
	ctx := context.Background()

	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader([]byte("bytes")))
	require.NoError(t, err)

	objects.failBackup[p.Filepath] = true
	_, err = svc.Backup(ctx, user.ID, p.ID)
	require.ErrorIs(t, err, ErrTransport)
	got, err := svc.Get(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BackupFailed, got.Backup)

	delete(objects.failBackup, p.Filepath)
	got, err = svc.Backup(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BackupCompleted, got.Backup)
}

func TestRunBackups(t *testing.T) {
	svc, store, objects, user := newTestService(t, 2000)
	ctx := context.Background()

	_, err := svc.RunBackups(ctx, user.ID)
	require.ErrorIs(t, err, ErrBackupDisabled)

	_, err = store.UpdateUser(ctx, user.ID, catalog.UserPatch{BackupEnabled: catalog.Some(true)})
	require.NoError(t, err)

	ok1, err := svc.Upload(ctx, user.ID, "1.jpg", bytes.NewReader([]byte("one")))
	require.NoError(t, err)
	bad, err := svc.Upload(ctx, user.ID, "2.jpg", bytes.NewReader([]byte("two")))
	require.NoError(t, err)
	_, err = svc.Create(ctx, user.ID, CreateInput{Filename: "3.jpg", Filepath: "u/3.jpg", Size: 3})
	require.NoError(t, err)
	objects.failBackup[bad.Filepath] = true

	report, err := svc.RunBackups(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, []uuid.UUID{ok1.ID}, report.Completed)
	assert.Equal(t, []uuid.UUID{bad.ID}, report.Failed)

	u, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, u.LastBackupAt)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, _, objects, user := newTestService(t, 2000)
	ctx := context.Background()
	content := []byte("secret sunset")

	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader(content))
	require.NoError(t, err)

	_, err = svc.Encrypt(ctx, user.ID, p.ID)
	require.ErrorIs(t, err, ErrEncryptionUnavailable)

	enc, err := objectstore.NewEncryptor("test-secret")
	require.NoError(t, err)
	svc.WithCipher(enc)

	p, err = svc.Encrypt(ctx, user.ID, p.ID)
	require.NoError(t, err)
	require.True(t, p.IsEncrypted())
	assert.Equal(t, objectstore.MethodXChaCha20Poly1305, p.Encryption.Method)
	assert.NotEqual(t, content, objects.object(p.Filepath))

	_, err = svc.Encrypt(ctx, user.ID, p.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = svc.PresignedURL(ctx, user.ID, p.ID)
	require.ErrorIs(t, err, ErrEncryptedContent)

	_, rc, err := svc.Download(ctx, user.ID, p.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	p, err = svc.Decrypt(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, p.IsEncrypted())
	assert.Equal(t, content, objects.object(p.Filepath))

	u, err := svc.PresignedURL(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Contains(t, u.URL, p.Filepath)
}

func TestUploadEncryptsForOptedInUsers(t *testing.T) {
	svc, store, objects, user := newTestService(t, 2000)
	ctx := context.Background()
	enc, err := objectstore.NewEncryptor("test-secret")
	require.NoError(t, err)
	svc.WithCipher(enc)

	_, err = store.UpdateUser(ctx, user.ID, catalog.UserPatch{EncryptionEnabled: catalog.Some(true)})
	require.NoError(t, err)

	content := []byte("private")
	p, err := svc.Upload(ctx, user.ID, "a.jpg", bytes.NewReader(content))
	require.NoError(t, err)
	require.True(t, p.IsEncrypted())
	assert.Equal(t, int64(len(content)), usedBytes(t, store, user.ID))
	assert.NotEqual(t, content, objects.object(p.Filepath))

	_, rc, err := svc.Download(ctx, user.ID, p.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestStatusSettersEnforceLifecycle(t *testing.T) {
	svc, _, _, user := newTestService(t, 2000)
	ctx := context.Background()

	p, err := svc.Create(ctx, user.ID, CreateInput{Filename: "a.jpg", Filepath: "u/a.jpg", Size: 10})
	require.NoError(t, err)

	_, err = svc.SetRestoreStatus(ctx, user.ID, p.ID, lifecycle.RestoreInProgress)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = svc.SetBackupStatus(ctx, user.ID, p.ID, lifecycle.BackupCompleted, "")
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = svc.SetStorageStatus(ctx, user.ID, p.ID, lifecycle.StorageFailed, "")
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	got, err := svc.Get(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.State, got.State)

	done, err := svc.SetStorageStatus(ctx, user.ID, p.ID, lifecycle.StorageCompleted, "")
	require.NoError(t, err)
	done, err = svc.SetBackupStatus(ctx, user.ID, done.ID, lifecycle.BackupCompleted, "external/a.jpg")
	require.NoError(t, err)
	done, err = svc.SetRestoreStatus(ctx, user.ID, done.ID, lifecycle.RestoreInProgress)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RestoreInProgress, done.Restore)

	_, err = svc.MarkEncrypted(ctx, user.ID, done.ID, "aes-256-gcm")
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "a running restore would overwrite the encrypted bytes")
	_, err = svc.SetRestoreStatus(ctx, user.ID, done.ID, lifecycle.RestoreCompleted)
	require.NoError(t, err)

	enc, err := svc.MarkEncrypted(ctx, user.ID, done.ID, "aes-256-gcm")
	require.NoError(t, err)
	require.NotNil(t, enc.Encryption)
	assert.False(t, enc.Encryption.Date.IsZero())
	assert.Equal(t, lifecycle.BackupPending, enc.Backup)
	assert.Nil(t, enc.BackupPath)

	dec, err := svc.MarkDecrypted(ctx, user.ID, done.ID)
	require.NoError(t, err)
	assert.Nil(t, dec.Encryption)
}

func TestTagging(t *testing.T) {
	svc, store, _, user := newTestService(t, 2000)
	other := mustUser(t, store, "mallory", 2000)
	ctx := context.Background()

	mine, err := svc.Create(ctx, user.ID, CreateInput{Filename: "a.jpg", Filepath: "u/a.jpg", Size: 1})
	require.NoError(t, err)
	theirs, err := svc.Create(ctx, other.ID, CreateInput{Filename: "b.jpg", Filepath: "m/b.jpg", Size: 1})
	require.NoError(t, err)

	tag, err := svc.TagPhoto(ctx, user.ID, mine.ID, "nature")
	require.NoError(t, err)
	again, err := svc.TagPhoto(ctx, other.ID, theirs.ID, " nature ")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, again.ID)

	_, err = svc.TagPhoto(ctx, other.ID, mine.ID, "nature")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	list, err := svc.ListByTag(ctx, user.ID, "nature", search.Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	detail, err := svc.GetWithMetadata(ctx, user.ID, mine.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Metadata)
	require.Len(t, detail.Tags, 1)

	removed, err := svc.UntagPhoto(ctx, user.ID, mine.ID, "nature")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = svc.UntagPhoto(ctx, user.ID, mine.ID, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = svc.GetTag(ctx, "nature")
	require.NoError(t, err, "tags outlive their associations")
}

func TestMetadataQueriesAndStats(t *testing.T) {
	svc, store, _, user := newTestService(t, 2000)
	other := mustUser(t, store, "mallory", 2000)
	ctx := context.Background()

	beach := "beach"
	scores := []struct {
		owner      uuid.UUID
		confidence float64
		faces      int
		aesthetic  *float64
	}{
		{user.ID, 0.9, 2, ptr(0.8)},
		{user.ID, 0.6, 0, nil},
		{user.ID, 0.75, 5, ptr(0.4)},
		{other.ID, 0.99, 9, ptr(0.99)},
	}
	ids := make([]uuid.UUID, len(scores))
	for i, s := range scores {
		p, err := svc.Create(ctx, s.owner, CreateInput{
			Filename: "p.jpg",
			Filepath: uuid.NewString(),
			Size:     100,
		})
		require.NoError(t, err)
		ids[i] = p.ID
		_, err = svc.CreateMetadata(ctx, s.owner, p.ID, catalog.MetadataPatch{
			SceneType:       catalog.Some(&beach),
			SceneConfidence: catalog.Some(ptr(s.confidence)),
			FacesDetected:   catalog.Some(ptr(s.faces)),
			AestheticScore:  catalog.Some(s.aesthetic),
		})
		require.NoError(t, err)
	}

	_, err := svc.CreateMetadata(ctx, other.ID, ids[0], catalog.MetadataPatch{})
	require.ErrorIs(t, err, catalog.ErrNotFound)

	scene, err := svc.PhotosByScene(ctx, user.ID, "beach", 0)
	require.NoError(t, err)
	require.Len(t, scene, 2)
	assert.Equal(t, ids[0], scene[0].PhotoID)
	assert.Equal(t, ids[2], scene[1].PhotoID)

	faces, err := svc.PhotosWithFaces(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, ids[2], faces[0].PhotoID)

	top, err := svc.TopAesthetic(ctx, user.ID, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, ids[0], top[0].PhotoID)

	st, err := svc.StorageStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Count)
	assert.Equal(t, int64(300), st.TotalBytes)

	ms, err := svc.MetadataStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ms.Analyzed)
	assert.InDelta(t, 0.6, ms.AvgAesthetic, 1e-9)
}

func TestCreateMetadataBatchIsAllOrNothing(t *testing.T) {
	svc, store, _, user := newTestService(t, 2000)
	other := mustUser(t, store, "mallory", 2000)
	ctx := context.Background()

	create := func(owner uuid.UUID) uuid.UUID {
		p, err := svc.Create(ctx, owner, CreateInput{Filename: "p.jpg", Filepath: uuid.NewString(), Size: 10})
		require.NoError(t, err)
		return p.ID
	}
	first, second, third := create(user.ID), create(user.ID), create(user.ID)
	foreign := create(other.ID)
	scene := func(name string) catalog.MetadataPatch {
		return catalog.MetadataPatch{SceneType: catalog.Some(&name), SceneConfidence: catalog.Some(ptr(0.9))}
	}

	list, err := svc.CreateMetadataBatch(ctx, user.ID, []MetadataEntry{
		{PhotoID: first, Patch: scene("beach")},
		{PhotoID: second, Patch: scene("city")},
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].PhotoID)
	assert.Equal(t, "city", *list[1].SceneType)

	_, err = svc.CreateMetadataBatch(ctx, user.ID, []MetadataEntry{
		{PhotoID: third, Patch: scene("forest")},
		{PhotoID: foreign, Patch: scene("forest")},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = svc.GetMetadata(ctx, user.ID, third)
	assert.ErrorIs(t, err, catalog.ErrNotFound, "a foreign photo rolls back the whole batch")

	_, err = svc.CreateMetadataBatch(ctx, user.ID, []MetadataEntry{
		{PhotoID: third, Patch: scene("forest")},
		{PhotoID: uuid.New(), Patch: scene("forest")},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = svc.CreateMetadataBatch(ctx, user.ID, []MetadataEntry{
		{PhotoID: third, Patch: scene("forest")},
		{PhotoID: first, Patch: scene("forest")},
	})
	require.ErrorIs(t, err, catalog.ErrUniqueViolation)
	_, err = svc.GetMetadata(ctx, user.ID, third)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	kept, err := svc.GetMetadata(ctx, user.ID, first)
	require.NoError(t, err)
	assert.Equal(t, "beach", *kept.SceneType)

	list, err = svc.CreateMetadataBatch(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func ptr[T any](v T) *T {
	return &v
}

var errPut = errors.New("put failed")

type fakeObjects struct {
	mu          sync.Mutex
	objects     map[string][]byte
	backups     map[string][]byte
	failPut     bool
	failRestore bool
	failBackup  map[string]bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		objects:    make(map[string][]byte),
		backups:    make(map[string][]byte),
		failBackup: make(map[string]bool),
	}
}

func (f *fakeObjects) object(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

func (f *fakeObjects) put(key string, b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = b
}

func (f *fakeObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.failPut {
		return errPut
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	f.put(key, b)
	return nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b := f.object(key)
	if b == nil {
		return nil, objectstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjects) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) Backup(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBackup[key] {
		return "", errors.New("backup bucket unavailable")
	}
	f.backups[key] = append([]byte(nil), f.objects[key]...)
	return "backup/" + key, nil
}

func (f *fakeObjects) RemoveBackup(ctx context.Context, backupPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.backups, strings.TrimPrefix(backupPath, "backup/"))
	return nil
}

func (f *fakeObjects) hasBackup(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.backups[key]
	return ok
}

func (f *fakeObjects) Restore(ctx context.Context, backupPath, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRestore {
		return errors.New("backup bucket unavailable")
	}
	b, ok := f.backups[strings.TrimPrefix(backupPath, "backup/")]
	if !ok {
		return objectstore.ErrObjectNotFound
	}
	f.objects[key] = append([]byte(nil), b...)
	return nil
}

func (f *fakeObjects) PresignGet(ctx context.Context, key, filename string) (string, time.Time, error) {
	return "https://objects.test/" + key + "?sig=1", time.Now().Add(time.Minute), nil
}
