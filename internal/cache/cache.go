// Package cache is a content-addressed store for compiled Chunks,
// keyed by the SHA-256 of the source text that produced them. It has
// two interchangeable backends, local (sqlite) and remote (DynamoDB),
// and is wired in only at the CLI boundary: neither the compiler nor
// the VM package ever imports it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"loxvm/internal/chunk"
)

// Backend stores and retrieves compiled Chunks by content key.
type Backend interface {
	Get(ctx context.Context, key string) (*chunk.Chunk, bool, error)
	Put(ctx context.Context, key string, c *chunk.Chunk) error
	Close() error
}

// Key derives the cache key for a source string: the hex SHA-256
// digest. Two identical sources always hash to the same key; the
// Chunk's own uuid is not part of the key, since it's assigned fresh
// every compile and would defeat content addressing.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
