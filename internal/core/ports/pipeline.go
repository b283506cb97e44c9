package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Document is a downloaded private file.
type Document struct {
	Bytes       []byte
	ContentType string
}

// URLSigner issues short-lived download URLs for private storage objects.
type URLSigner interface {
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// DocumentFetcher resolves a storage path to bytes. Failures are *domain.StageError.
type DocumentFetcher interface {
	Fetch(ctx context.Context, path string) (*Document, error)
}

// OCRProvider extracts plain text. Failures are *domain.StageError.
type OCRProvider interface {
	Name() string
	ExtractText(ctx context.Context, doc *Document) (string, error)
}

// Nudger asks workers to look at a request right now. Best effort.
type Nudger interface {
	Nudge(ctx context.Context, requestID uuid.UUID) error
}
