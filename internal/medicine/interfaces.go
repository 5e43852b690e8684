package medicine

import (
	"context"
	"time"
)

// Store persists medicine records. Implementations are append-only apart from
// UpdateImagePath.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Exists(ctx context.Context, externalID string) (bool, error)
	Insert(ctx context.Context, record Record) (int64, error)
	UpdateImagePath(ctx context.Context, externalID string, filename string) error
	Statistics(ctx context.Context) (Statistics, error)
	Close()
}

// Fetcher retrieves a URL with throttling and retries. A failed fetch is
// reported through FetchOutcome.Success, never as an error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchOutcome
}

// ImageStore downloads, validates and persists a record's primary image.
type ImageStore interface {
	Acquire(ctx context.Context, imageURL string, identity int64) (string, bool)
}

// Publisher announces newly inserted records.
type Publisher interface {
	PublishCreated(ctx context.Context, record Record) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
