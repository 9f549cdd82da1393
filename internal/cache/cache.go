// Package cache implements C3: a fingerprint-keyed store for finished
// consensus results and a text-hash-keyed store for embeddings, with a
// Redis-backed implementation and a null fallback for backend outages.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is the capability set §4.3 requires. All operations must be safe
// under concurrent access from many request handlers; a miss is not an
// error.
type Cache interface {
	GetResult(ctx context.Context, fingerprint string) ([]byte, bool)
	PutResult(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error
	GetEmbedding(ctx context.Context, textHash string) ([]byte, bool)
	PutEmbedding(ctx context.Context, textHash string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// ResultKey builds the "res:<fingerprint>" key §4.3 specifies.
func ResultKey(fingerprint string) string { return "res:" + fingerprint }

// EmbeddingKey builds the "emb:<hash>" key §4.3 specifies.
func EmbeddingKey(hash string) string { return "emb:" + hash }

// TextHash hashes embedding input text into the key used by EmbeddingKey,
// via the same SHA-256 construction used for request fingerprints.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
