// Package store provides the persistence layer: a small key-value contract
// backed by Redis for pipeline state, and a document store backed by
// Elasticsearch for crawled pages. In-memory implementations back the tests.
package store

import (
	"context"
	"errors"

	"github.com/jonesrussell/prospector/internal/domain"
)

// ErrNotFound is returned when a key or document does not exist.
var ErrNotFound = errors.New("store: not found")

// KV is the minimal key-value contract the pipeline state repositories
// build on. Keys are scoped by collection; implementations own the
// physical key layout.
type KV interface {
	// Get reads the raw value for key in collection. Returns ErrNotFound
	// when the key is absent.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Put writes value under key in collection, replacing any prior value.
	Put(ctx context.Context, collection, key string, value []byte) error

	// Delete removes key from collection. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, collection, key string) error

	// Keys lists every key present in collection.
	Keys(ctx context.Context, collection string) ([]string, error)

	// SAdd adds members to the set stored at key in collection.
	SAdd(ctx context.Context, collection, key string, members ...string) error

	// SMembers returns all members of the set at key in collection.
	SMembers(ctx context.Context, collection, key string) ([]string, error)

	// Close releases the underlying connection.
	Close() error
}

// PageStore persists crawled page documents.
type PageStore interface {
	// Index writes a page document, replacing any document with the same ID.
	Index(ctx context.Context, page *domain.PageRecord) error

	// CountByDomain reports how many pages are stored for domain.
	CountByDomain(ctx context.Context, domainName string) (int, error)

	// Close releases the underlying connection.
	Close() error
}

// Collection names used across the pipeline. Keeping them in one place
// keeps the Redis key layout stable between runs.
const (
	CollectionDomainLog    = "domains"
	CollectionVetting      = "vetting"
	CollectionVariants     = "variants"
	CollectionCrawlState   = "crawl"
	CollectionAliases      = "aliases"
	CollectionFingerprints = "fingerprints"
)
