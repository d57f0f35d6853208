// Package api exposes the HTTP interface for the archive service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sudan-digital-archive/archive-api/internal/archive"
	"github.com/sudan-digital-archive/archive-api/internal/catalog"
	"github.com/sudan-digital-archive/archive-api/internal/config"
	"github.com/sudan-digital-archive/archive-api/internal/telemetry"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
)

// SagaStarter launches one archival saga and returns immediately.
type SagaStarter interface {
	Start(ctx context.Context, req archive.ArchiveRequest)
}

// Server wires HTTP handlers to the orchestrator and the read-side leaves.
type Server struct {
	router  chi.Router
	starter SagaStarter
	catalog archive.CatalogWriter
	store   archive.ArtifactStore
	cfg     config.Config
	logger  *zap.Logger
	// sagaCtx outlives individual requests: sagas keep running after
	// the triggering request/response cycle has finished.
	sagaCtx context.Context
}

// NewServer constructs a Server with middleware and routes. sagaCtx is
// the long-lived context sagas run under; it should end only at process
// shutdown.
func NewServer(
	sagaCtx context.Context,
	starter SagaStarter,
	cat archive.CatalogWriter,
	store archive.ArtifactStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		starter: starter,
		catalog: cat,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		sagaCtx: sagaCtx,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/archives", func(r chi.Router) {
			r.Post("/", s.submitArchive)
			r.Get("/{archive_id}", s.getArchive)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type createArchiveRequest struct {
	URL            string    `json:"url"`
	Language       string    `json:"metadata_language"`
	Title          string    `json:"metadata_title"`
	Description    string    `json:"metadata_description"`
	Subjects       []int     `json:"metadata_subjects"`
	Private        bool      `json:"is_private"`
	BrowserProfile string    `json:"browser_profile"`
	RequestedBy    string    `json:"requested_by"`
	RecordDate     time.Time `json:"metadata_time"`
}

// submitArchive accepts one archive request and launches its saga. The
// response only acknowledges acceptance; the saga's outcome is never
// part of any HTTP response.
func (s *Server) submitArchive(w http.ResponseWriter, r *http.Request) {
	var req createArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	archiveReq, err := req.toArchiveRequest()
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	s.starter.Start(s.sagaCtx, archiveReq)
	writeJSON(s.logger, w, http.StatusCreated, map[string]string{"status": "accepted"})
}

func (r createArchiveRequest) toArchiveRequest() (archive.ArchiveRequest, error) {
	parsed, err := neturl.Parse(r.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return archive.ArchiveRequest{}, fmt.Errorf("url must be a valid http(s) URL")
	}
	lang := archive.Language(r.Language)
	if lang != archive.LanguageEnglish && lang != archive.LanguageArabic {
		return archive.ArchiveRequest{}, fmt.Errorf("metadata_language must be en or ar")
	}
	title := strings.TrimSpace(r.Title)
	if title == "" || len(title) > maxTitleLength {
		return archive.ArchiveRequest{}, fmt.Errorf("metadata_title must be 1-%d characters", maxTitleLength)
	}
	if len(r.Description) > maxDescriptionLength {
		return archive.ArchiveRequest{}, fmt.Errorf("metadata_description must be at most %d characters", maxDescriptionLength)
	}
	if r.RequestedBy == "" || !strings.Contains(r.RequestedBy, "@") {
		return archive.ArchiveRequest{}, fmt.Errorf("requested_by must be an email address")
	}
	if r.RecordDate.IsZero() {
		return archive.ArchiveRequest{}, fmt.Errorf("metadata_time is required")
	}
	return archive.ArchiveRequest{
		URL:            r.URL,
		Language:       lang,
		Title:          title,
		Description:    r.Description,
		Subjects:       r.Subjects,
		Private:        r.Private,
		BrowserProfile: r.BrowserProfile,
		RequestedBy:    r.RequestedBy,
		RecordDate:     r.RecordDate,
	}, nil
}

type archiveResponse struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Language    string    `json:"metadata_language"`
	Title       string    `json:"metadata_title"`
	Description string    `json:"metadata_description,omitempty"`
	Subjects    []int     `json:"metadata_subjects"`
	Private     bool      `json:"is_private"`
	Status      string    `json:"crawl_status"`
	RecordDate  time.Time `json:"metadata_time"`
	WaczURL     string    `json:"wacz_url"`
}

// getArchive returns one catalog record with a short-lived signed URL
// for its stored artifact.
func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "archive_id"), 10, 64)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "archive id must be an integer")
		return
	}
	record, err := s.catalog.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(s.logger, w, http.StatusNotFound, "no such record")
			return
		}
		s.logger.Error("catalog read failed", zap.Int64("record_id", id), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "internal catalog error")
		return
	}
	url, err := s.store.SignedURL(r.Context(), record.StorageKey, s.cfg.SignedURLTTL())
	if err != nil {
		s.logger.Error("signed url generation failed",
			zap.String("storage_key", record.StorageKey),
			zap.Error(err),
		)
		writeError(s.logger, w, http.StatusInternalServerError, "error retrieving artifact url")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, archiveResponse{
		ID:          id,
		URL:         record.URL,
		Language:    string(record.Language),
		Title:       record.Title,
		Description: record.Description,
		Subjects:    record.Subjects,
		Private:     record.Private,
		Status:      record.Status,
		RecordDate:  record.RecordDate,
		WaczURL:     url,
	})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write response failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(logger, w, status, map[string]string{"error": message})
}
