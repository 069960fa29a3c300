package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
)

// envelope is the persisted form of every entry.
type envelope struct {
	Schema   int             `json:"schema"`
	Checksum string          `json:"checksum"`
	Value    json.RawMessage `json:"value"`
}

// Cache is a typed view of one domain of a Store.
type Cache[T any] struct {
	store   Store
	domain  Domain
	schema  int
	log     *logger.Logger
	metrics *observability.Metrics
}

// New returns a Cache for domain. schema is the version of T's encoding;
// bump it whenever T changes shape so stale entries are discarded. log and
// metrics may be nil.
func New[T any](store Store, domain Domain, schema int, log *logger.Logger, metrics *observability.Metrics) *Cache[T] {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache[T]{
		store:   store,
		domain:  domain,
		schema:  schema,
		log:     log.WithComponent("cache").WithFields(logger.Fields(logger.FieldDomain, string(domain))),
		metrics: metrics,
	}
}

// Domain returns the namespace this cache reads and writes.
func (c *Cache[T]) Domain() Domain { return c.domain }

// Get returns the cached value and true on a hit. A malformed, tampered or
// outdated entry is deleted and reported as a miss. Only store I/O failures
// are returned as errors.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	data, err := c.store.Read(ctx, c.domain, key)
	if errors.Is(err, ErrNotFound) {
		c.metrics.RecordCacheLookup(ctx, string(c.domain), observability.CacheMiss)
		c.log.Debug("cache miss", logger.Fields(logger.FieldKey, key))
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	value, reason := c.decode(data)
	if reason != "" {
		c.metrics.RecordCacheLookup(ctx, string(c.domain), observability.CacheCorrupt)
		c.log.Warn("discarding cache entry", logger.Fields(logger.FieldKey, key, "reason", reason))
		if err := c.store.Delete(ctx, c.domain, key); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}

	c.metrics.RecordCacheLookup(ctx, string(c.domain), observability.CacheHit)
	c.log.Debug("cache hit", logger.Fields(logger.FieldKey, key))
	return value, true, nil
}

func (c *Cache[T]) decode(data []byte) (T, string) {
	var zero T
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return zero, "malformed document"
	}
	if env.Schema != c.schema {
		return zero, fmt.Sprintf("schema %d, want %d", env.Schema, c.schema)
	}
	if env.Checksum != checksum(env.Value) {
		return zero, "checksum mismatch"
	}
	var value T
	if err := json.Unmarshal(env.Value, &value); err != nil {
		return zero, "malformed value"
	}
	return value, ""
}

// Put stores value under key, replacing any previous entry.
func (c *Cache[T]) Put(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s/%s: %w", c.domain, key, err)
	}
	data, err := json.Marshal(envelope{Schema: c.schema, Checksum: checksum(raw), Value: raw})
	if err != nil {
		return fmt.Errorf("cache: encode %s/%s: %w", c.domain, key, err)
	}
	if err := c.store.Write(ctx, c.domain, key, data); err != nil {
		return err
	}
	c.log.Debug("cache stored", logger.Fields(logger.FieldKey, key))
	return nil
}

// Invalidate removes the entry for key, if any.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, c.domain, key); err != nil {
		return err
	}
	c.log.Debug("cache invalidated", logger.Fields(logger.FieldKey, key))
	return nil
}

func checksum(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
