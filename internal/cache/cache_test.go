package cache

import (
	"context"
	"sync"
	"testing"

	"loxvm/internal/chunk"
)

func TestKeyIsDeterministicAndContentAddressed(t *testing.T) {
	a := Key(`print 1;`)
	b := Key(`print 1;`)
	if a != b {
		t.Fatalf("same source produced different keys: %s vs %s", a, b)
	}
	if Key(`print 2;`) == a {
		t.Fatal("different sources produced the same key")
	}
}

// memBackend is a minimal in-memory Backend used to test the
// interface contract independent of any real storage engine.
type memBackend struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{items: make(map[string][]byte)} }

func (m *memBackend) Get(_ context.Context, key string) (*chunk.Chunk, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	c, err := chunk.Decode(data)
	return c, true, err
}

func (m *memBackend) Put(_ context.Context, key string, c *chunk.Chunk) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = data
	return nil
}

func (m *memBackend) Close() error { return nil }

var _ Backend = (*memBackend)(nil)

func TestBackendRoundTripPreservesChunkID(t *testing.T) {
	b := newMemBackend()
	c := chunk.New()
	c.Write(byte(chunk.OpReturn), 1)

	ctx := context.Background()
	key := Key("source text")
	if err := b.Put(ctx, key, c); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := b.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ID != c.ID {
		t.Fatal("round trip lost the chunk ID")
	}
}

func TestBackendMissIsNotAnError(t *testing.T) {
	b := newMemBackend()
	_, ok, err := b.Get(context.Background(), Key("never stored"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss")
	}
}
