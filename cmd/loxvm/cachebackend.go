package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"loxvm/internal/cache"
	"loxvm/internal/chunk"
)

// openBackend wires the -cache flag to a concrete backend. "off" (the
// default) returns a nil Backend, which callers treat as "skip the
// cache" entirely.
func openBackend(ctx context.Context, kind, dsn string, logger *logrus.Logger) (cache.Backend, error) {
	switch kind {
	case "", "off":
		return nil, nil
	case "sqlite":
		path := dsn
		if path == "" {
			path = "loxvm-cache.sqlite"
		}
		return cache.NewSQLiteBackend(path, logger)
	case "dynamodb":
		if dsn == "" {
			return nil, fmt.Errorf("-cache=dynamodb requires -cache-dsn=<table name>")
		}
		return cache.NewDynamoDBBackend(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q (want sqlite, dynamodb, or off)", kind)
	}
}

// compileCached compiles source through compileFn, consulting backend
// first and filling it in on a miss. A nil backend always compiles
// fresh; its absence never changes what gets compiled, only whether
// the work is skipped. Caching is purely a speed optimization: a
// failure to read or write the backend is logged and otherwise
// ignored, never turned into a compile failure.
func compileCached(ctx context.Context, backend cache.Backend, source string, compileFn func(string) (*chunk.Chunk, error), logger *logrus.Logger) (*chunk.Chunk, error) {
	if backend == nil {
		return compileFn(source)
	}

	key := cache.Key(source)
	if c, ok, err := backend.Get(ctx, key); err == nil && ok {
		return c, nil
	} else if err != nil && logger != nil {
		logger.WithField("key", key).Warnf("cache get failed, compiling fresh: %v", err)
	}

	c, err := compileFn(source)
	if err != nil {
		return nil, err
	}
	if err := backend.Put(ctx, key, c); err != nil && logger != nil {
		logger.WithField("key", key).Warnf("cache put failed: %v", err)
	}
	return c, nil
}
