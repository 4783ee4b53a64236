package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutiecart/internal/storage"
)

// slowStorage delays reads the way a Redis or SQLite round trip would, which
// widens the read-modify-write window.
type slowStorage struct {
	storage.Storage
	delay time.Duration
}

func (s slowStorage) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.Storage.Get(ctx, key)
}

func TestRegistrySharesStorePerSession(t *testing.T) {
	r := NewRegistry(storage.NewMemory(), quietLogger(), 0)

	a := r.For("session-a")
	assert.Same(t, a, r.For("session-a"))
	assert.NotSame(t, a, r.For("session-b"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistrySessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(storage.NewMemory(), quietLogger(), 0)

	r.For("session-a").Add(ctx, LineItem{ID: "x", Title: "X", Price: 1, Qty: 2})

	assert.Equal(t, 2, r.For("session-a").Count(ctx))
	assert.Zero(t, r.For("session-b").Count(ctx))
}

func TestRegistryEvictionKeepsData(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(storage.NewMemory(), quietLogger(), 1)

	first := r.For("session-a")
	first.Add(ctx, LineItem{ID: "x", Title: "X", Price: 1, Qty: 1})
	r.For("session-b")

	require.Equal(t, 1, r.Len())
	again := r.For("session-a")
	assert.NotSame(t, first, again)
	assert.Equal(t, 1, again.Count(ctx))
}

func TestRegistryConcurrentAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(slowStorage{Storage: storage.NewMemory(), delay: time.Millisecond}, quietLogger(), 0)

	const adds = 50
	var wg sync.WaitGroup
	for range adds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.For("session-a").Add(ctx, LineItem{ID: "kiss-001", Title: "Fake Fight", Price: 1, Qty: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, adds, r.For("session-a").Count(ctx))
}
