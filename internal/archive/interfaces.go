package archive

import (
	"context"
	"time"
)

// CrawlClient talks to the remote crawl service. Implementations handle
// authentication, including a single transparent re-auth retry when a
// call fails on an expired credential; all other retry behavior belongs
// to the caller.
type CrawlClient interface {
	Create(ctx context.Context, url string, browserProfile string) (CrawlHandle, error)
	Status(ctx context.Context, handle CrawlHandle) (CrawlOutcome, error)
	Fetch(ctx context.Context, handle CrawlHandle) ([]byte, error)
}

// ArtifactStore persists crawl artifacts durably. Reads are exposed only
// as short-lived signed URLs, never as credentialed fetches.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// CatalogWriter writes the permanent catalog entry for a finished saga.
// WriteRecord is atomic; it either persists the whole record and returns
// its id, or persists nothing.
type CatalogWriter interface {
	WriteRecord(ctx context.Context, record ArchivedRecord) (int64, error)
	GetRecord(ctx context.Context, id int64) (ArchivedRecord, error)
}

// Notifier delivers a best-effort message to a single recipient. Send
// must return within a short bounded timeout.
type Notifier interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces storage keys and request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
