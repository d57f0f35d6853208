package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sudan-digital-archive/archive-api/internal/archive"
	catalogmemory "github.com/sudan-digital-archive/archive-api/internal/catalog/memory"
	"github.com/sudan-digital-archive/archive-api/internal/config"
	storagememory "github.com/sudan-digital-archive/archive-api/internal/storage/memory"
	"github.com/sudan-digital-archive/archive-api/internal/telemetry"
)

func init() {
	telemetry.Init()
}

type fakeStarter struct {
	mu       sync.Mutex
	requests []archive.ArchiveRequest
}

func (f *fakeStarter) Start(_ context.Context, req archive.ArchiveRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *fakeStarter, *catalogmemory.Catalog, *storagememory.BlobStore) {
	t.Helper()
	starter := &fakeStarter{}
	cat := catalogmemory.New()
	store := storagememory.NewBlobStore()
	srv := NewServer(context.Background(), starter, cat, store, cfg, zap.NewNop())
	return srv, starter, cat, store
}

func validBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"url":               "https://example.sd/page",
		"metadata_language": "en",
		"metadata_title":    "A page",
		"metadata_subjects": []int{1},
		"requested_by":      "curator@example.sd",
		"metadata_time":     time.Unix(1700000000, 0).UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	return body
}

func TestSubmitArchive_AcceptsAndStartsSaga(t *testing.T) {
	t.Parallel()

	srv, starter, _, _ := newTestServer(t, defaultConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/archives/", bytes.NewReader(validBody(t)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, starter.count())
	require.Equal(t, "https://example.sd/page", starter.requests[0].URL)
	require.Equal(t, archive.LanguageEnglish, starter.requests[0].Language)
}

func TestSubmitArchive_RejectsInvalidBodies(t *testing.T) {
	t.Parallel()

	srv, starter, _, _ := newTestServer(t, defaultConfig(t))

	cases := map[string]map[string]any{
		"missing url": {
			"metadata_language": "en", "metadata_title": "x",
			"requested_by": "a@b.sd", "metadata_time": "2024-01-01T00:00:00Z",
		},
		"bad scheme": {
			"url": "ftp://example.sd", "metadata_language": "en", "metadata_title": "x",
			"requested_by": "a@b.sd", "metadata_time": "2024-01-01T00:00:00Z",
		},
		"bad language": {
			"url": "https://example.sd", "metadata_language": "fr", "metadata_title": "x",
			"requested_by": "a@b.sd", "metadata_time": "2024-01-01T00:00:00Z",
		},
		"blank title": {
			"url": "https://example.sd", "metadata_language": "en", "metadata_title": "   ",
			"requested_by": "a@b.sd", "metadata_time": "2024-01-01T00:00:00Z",
		},
		"bad email": {
			"url": "https://example.sd", "metadata_language": "en", "metadata_title": "x",
			"requested_by": "not-an-email", "metadata_time": "2024-01-01T00:00:00Z",
		},
		"missing time": {
			"url": "https://example.sd", "metadata_language": "en", "metadata_title": "x",
			"requested_by": "a@b.sd",
		},
	}
	for name, payload := range cases {
		body, err := json.Marshal(payload)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/v1/archives/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code, "case %q", name)
	}
	require.Zero(t, starter.count(), "invalid requests never start a saga")
}

func TestGetArchive_ReturnsRecordWithSignedURL(t *testing.T) {
	t.Parallel()

	srv, _, cat, store := newTestServer(t, defaultConfig(t))

	require.NoError(t, store.Upload(context.Background(), "wacz/k1.wacz", []byte("wacz"), "application/wacz"))
	id, err := cat.WriteRecord(context.Background(), archive.ArchivedRecord{
		URL:        "https://example.sd/page",
		Language:   archive.LanguageEnglish,
		Title:      "A page",
		StorageKey: "wacz/k1.wacz",
		Status:     archive.StatusComplete,
		RecordDate: time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/archives/1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp archiveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, id, resp.ID)
	require.Equal(t, "A page", resp.Title)
	require.Equal(t, "memory://wacz/k1.wacz", resp.WaczURL)
}

func TestGetArchive_NotFound(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, defaultConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/archives/99", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyMiddleware_RejectsMissingKey(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	srv, _, _, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
