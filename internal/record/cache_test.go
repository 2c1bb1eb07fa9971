package record

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*Memory
	mu    sync.Mutex
	lists int
	// when set, the first ListAll reads the records, signals read and waits for release.
	read    chan struct{}
	release chan struct{}
}

func (c *countingStore) ListAll(ctx context.Context) ([]Student, error) {
	c.mu.Lock()
	c.lists++
	first := c.lists == 1
	c.mu.Unlock()

	out, err := c.Memory.ListAll(ctx)
	if first && c.read != nil {
		close(c.read)
		<-c.release
	}
	return out, err
}

func newCached(t *testing.T) (*Cached, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	inner := &countingStore{Memory: NewMemory(student("A", "Ann"))}
	return NewCached(inner, rdb, time.Minute), inner, mr
}

func TestCached_ReadThrough(t *testing.T) {
	ctx := context.Background()
	c, inner, mr := newCached(t)

	first, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, mr.Exists(listingKey(0)))

	second, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.Equal(t, 1, inner.lists, "second read served from redis")
}

func TestCached_InsertInvalidates(t *testing.T) {
	ctx := context.Background()
	c, inner, mr := newCached(t)

	_, err := c.ListAll(ctx)
	require.NoError(t, err)
	_, err = c.Insert(ctx, student("B", "Bob"))
	require.NoError(t, err)
	gen, err := mr.Get(GenKey)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, inner.lists)
	assert.True(t, mr.Exists(listingKey(1)))
}

func TestCached_ExternalInvalidate(t *testing.T) {
	ctx := context.Background()
	c, inner, _ := newCached(t)

	_, _ = c.ListAll(ctx)
	_, err := inner.Memory.Insert(ctx, student("C", "Cid"))
	require.NoError(t, err)

	stale, _ := c.ListAll(ctx)
	assert.Len(t, stale, 1)

	require.NoError(t, c.Invalidate(ctx))
	fresh, _ := c.ListAll(ctx)
	assert.Len(t, fresh, 2)
}

// A fill that read the store before an insert must not hide the insert from later reads.
func TestCached_SlowFillDoesNotHideInsert(t *testing.T) {
	ctx := context.Background()
	c, inner, _ := newCached(t)
	inner.read = make(chan struct{})
	inner.release = make(chan struct{})

	done := make(chan []Student, 1)
	go func() {
		out, err := c.ListAll(ctx)
		assert.NoError(t, err)
		done <- out
	}()

	<-inner.read
	_, err := c.Insert(ctx, student("B", "Bob"))
	require.NoError(t, err)
	close(inner.release)
	assert.Len(t, <-done, 1, "the slow read saw the old collection")

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// Same interleaving, with the invalidation coming from the worker instead of Insert.
func TestCached_SlowFillDoesNotOutliveWorkerInvalidate(t *testing.T) {
	ctx := context.Background()
	c, inner, _ := newCached(t)
	inner.read = make(chan struct{})
	inner.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.ListAll(ctx)
	}()

	<-inner.read
	_, err := inner.Memory.Insert(ctx, student("B", "Bob"))
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	close(inner.release)
	<-done

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCached_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	c, inner, mr := newCached(t)
	mr.Close()

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, inner.lists)
}

func TestNewCached_DefaultTTL(t *testing.T) {
	c := NewCached(NewMemory(), nil, 0)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}
