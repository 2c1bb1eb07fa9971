package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CacheKey prefixes the JSON-encoded listing; the current generation is appended.
	CacheKey = "studentportal:students:all"
	// GenKey is bumped by every invalidation.
	GenKey = "studentportal:students:gen"
)

// DefaultCacheTTL applies when NewCached is given a non-positive ttl, so listings
// of superseded generations still expire.
const DefaultCacheTTL = 5 * time.Minute

// Cached is a read-through Redis cache in front of a Store.
// Listings are stored per generation: Invalidate bumps the generation, so a fill
// that read the store before an invalidation lands under a key nobody reads again.
type Cached struct {
	next Store
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCached wraps next.
func NewCached(next Store, rdb *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

func listingKey(gen int64) string {
	return fmt.Sprintf("%s:%d", CacheKey, gen)
}

// Insert writes through and invalidates the listing.
func (c *Cached) Insert(ctx context.Context, s Student) (Student, error) {
	out, err := c.next.Insert(ctx, s)
	if err != nil {
		return Student{}, err
	}
	if err := c.Invalidate(ctx); err != nil {
		log.Printf("cache: invalidate after insert failed: %v", err)
	}
	return out, nil
}

// ListAll serves from Redis when possible and falls back to the wrapped store.
func (c *Cached) ListAll(ctx context.Context) ([]Student, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		log.Printf("cache: read generation failed: %v", err)
		return c.next.ListAll(ctx)
	}
	key := listingKey(gen)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Student
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return cached, nil
		}
		log.Printf("cache: corrupt listing, refetching")
	case !errors.Is(err, redis.Nil):
		log.Printf("cache: get failed: %v", err)
	}

	records, err := c.next.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if payload, jerr := json.Marshal(records); jerr == nil {
		if serr := c.rdb.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			log.Printf("cache: set failed: %v", serr)
		}
	}
	return records, nil
}

func (c *Cached) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, GenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate moves readers to a new generation.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, GenKey).Err()
}

// Ping checks the wrapped store when it supports it.
func (c *Cached) Ping(ctx context.Context) error {
	if p, ok := c.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
