// Package archive defines the domain model for archival sagas and the
// capability interfaces of the external systems they coordinate.
package archive

import (
	"strings"
	"time"
)

// Language identifies the metadata language of an archive request.
type Language string

// Supported metadata languages.
const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// CrawlOutcome is the observed state of a remote crawl at one poll.
type CrawlOutcome string

const (
	// OutcomePending means the crawl has not finished yet.
	OutcomePending CrawlOutcome = "pending"
	// OutcomeComplete means the crawl finished and its artifact is ready.
	OutcomeComplete CrawlOutcome = "complete"
	// OutcomeUnknown covers every other state the crawl service reports.
	OutcomeUnknown CrawlOutcome = "unknown"
)

// ArchiveRequest is the fully-validated input to one archival saga.
// It is constructed once by the caller and never mutated afterwards.
type ArchiveRequest struct {
	URL            string
	Language       Language
	Title          string
	Description    string
	Subjects       []int
	Private        bool
	BrowserProfile string
	RequestedBy    string
	RecordDate     time.Time
}

// CrawlHandle identifies an accepted crawl at the remote service.
// CrawlID names the crawl configuration, JobRunID the run it launched.
type CrawlHandle struct {
	CrawlID  string
	JobRunID string
}

// ArchivedRecord is the durable catalog entry written once per
// successful saga, only after the artifact is confirmed stored.
type ArchivedRecord struct {
	URL         string
	Language    Language
	Title       string
	Description string
	Subjects    []int
	Private     bool
	CrawlID     string
	JobRunID    string
	StorageKey  string
	Status      string
	RequestedBy string
	RecordDate  time.Time
}

// StatusComplete is the crawl status stored with every catalog entry;
// records are only written for crawls that reached completion.
const StatusComplete = "complete"

// NewArchivedRecord builds the catalog entry for a finished saga. Title
// and description are trimmed here so the catalog never stores padding.
func NewArchivedRecord(req ArchiveRequest, handle CrawlHandle, storageKey string) ArchivedRecord {
	return ArchivedRecord{
		URL:         req.URL,
		Language:    req.Language,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Subjects:    req.Subjects,
		Private:     req.Private,
		CrawlID:     handle.CrawlID,
		JobRunID:    handle.JobRunID,
		StorageKey:  storageKey,
		Status:      StatusComplete,
		RequestedBy: req.RequestedBy,
		RecordDate:  req.RecordDate,
	}
}
