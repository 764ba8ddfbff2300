package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/abduss/photovault/internal/album"
	"github.com/abduss/photovault/internal/auth"
	"github.com/abduss/photovault/internal/catalog"
	"github.com/abduss/photovault/internal/config"
	"github.com/abduss/photovault/internal/lifecycle"
	"github.com/abduss/photovault/internal/photo"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := catalog.NewMemoryStore()
	authService := auth.NewService(store, auth.NewMemoryTokens(), config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		BcryptCost:         4,
	}, 2000)
	photoService := photo.NewService(store, newMemoryObjects(), lifecycle.DefaultPolicy(), config.StorageConfig{}, nil)

	return NewRouter(Dependencies{
		Config:       config.Config{Metrics: config.MetricsConfig{PrometheusPath: "/metrics"}},
		AuthService:  authService,
		PhotoService: photoService,
		AlbumService: album.NewService(store),
	})
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/photos", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPhotoQuotaFlow(t *testing.T) {
	router := newTestRouter(t)

	body := `{"username":"alice","email":"alice@example.com","password":"StrongPass1!"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var registered struct {
		User struct {
			StorageQuota int64 `json:"storage_quota"`
		} `json:"user"`
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	require.NotEmpty(t, registered.Tokens.AccessToken)
	assert.Equal(t, int64(2000), registered.User.StorageQuota)
	token := registered.Tokens.AccessToken

	first := bytes.Repeat([]byte("a"), 1000)
	rec = upload(t, router, token, "a.jpg", first)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var stored catalog.Photo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, lifecycle.StorageCompleted, stored.Storage)
	assert.Equal(t, int64(1000), stored.Size)

	rec = upload(t, router, token, "b.jpg", bytes.Repeat([]byte("b"), 1500))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	rec = authed(router, token, http.MethodGet, "/v1/photos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Photos []catalog.Photo `json:"photos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Photos, 1)

	rec = authed(router, token, http.MethodGet, "/v1/photos/"+stored.ID.String()+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, rec.Body.Bytes())

	rec = authed(router, token, http.MethodGet, "/v1/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me catalog.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, int64(1000), me.StorageUsed)

	rec = authed(router, token, http.MethodPost, "/v1/albums", bytes.NewBufferString(`{"name":"trip"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created catalog.Album
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = authed(router, token, http.MethodPost, "/v1/albums/"+created.ID.String()+"/photos",
		bytes.NewBufferString(`{"photo_id":"`+stored.ID.String()+`"}`))
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = authed(router, token, http.MethodPost, "/v1/metadata/batch",
		bytes.NewBufferString(`{"entries":[{"photo_id":"`+stored.ID.String()+`","scene_type":"beach","scene_confidence":0.9}]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var batch struct {
		Metadata []catalog.PhotoMetadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	require.Len(t, batch.Metadata, 1)
	assert.Equal(t, stored.ID, batch.Metadata[0].PhotoID)

	rec = authed(router, token, http.MethodPost, "/v1/metadata/batch", bytes.NewBufferString(`{"entries":[]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = authed(router, token, http.MethodDelete, "/v1/photos/"+stored.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = authed(router, token, http.MethodGet, "/v1/me", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, int64(0), me.StorageUsed)
}

func upload(t *testing.T, router http.Handler, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/photos", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func authed(router http.Handler, token, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// memoryObjects is a byte store kept in a map.
type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memoryObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryObjects) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) Backup(ctx context.Context, key string) (string, error) {
	return "backup/" + key, nil
}

func (m *memoryObjects) RemoveBackup(ctx context.Context, backupPath string) error {
	return nil
}

func (m *memoryObjects) Restore(ctx context.Context, backupPath, key string) error {
	return nil
}

func (m *memoryObjects) PresignGet(ctx context.Context, key, filename string) (string, time.Time, error) {
	return "http://objects.local/" + key, time.Now().Add(time.Minute), nil
}
