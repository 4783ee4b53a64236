package qtysync

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutiecart/internal/cart"
	"cutiecart/internal/storage"
)

func newStore() (*cart.Store, *storage.Memory) {
	mem := storage.NewMemory()
	return cart.New(mem, slog.New(slog.NewTextHandler(io.Discard, nil))), mem
}

func TestControlFor(t *testing.T) {
	assert.Equal(t, Control{ProductID: "x", Qty: 0, ShowAdd: true}, ControlFor("x", 0))
	assert.Equal(t, Control{ProductID: "x", Qty: 2, ShowStepper: true}, ControlFor("x", 2))
}

func TestReconcileAllOnPageLoad(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore()

	// Cart filled by a previous page using a different Store instance.
	cart.New(mem, nil).Add(ctx, cart.LineItem{ID: "hug-001", Title: "Full Attention", Price: 1, Qty: 2})

	grid := NewGrid("kiss-001", "hug-001")
	badge := &Badge{}
	New(store, grid, badge).ReconcileAll(ctx)

	assert.Equal(t, []Control{
		{ProductID: "kiss-001", Qty: 0, ShowAdd: true},
		{ProductID: "hug-001", Qty: 2, ShowStepper: true},
	}, grid.Controls())
	assert.Equal(t, 2, badge.Count())
}

func TestReconcileAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	store.Add(ctx, cart.LineItem{ID: "kiss-001", Title: "Fake Fight", Price: 1, Qty: 3})

	grid := NewGrid("kiss-001", "hug-001", "movie-001")
	badge := &Badge{}
	s := New(store, grid, badge)

	s.ReconcileAll(ctx)
	first, firstBadge := grid.Controls(), badge.Count()
	s.ReconcileAll(ctx)

	assert.Equal(t, first, grid.Controls())
	assert.Equal(t, firstBadge, badge.Count())
}

func TestAttachedSyncFollowsMutations(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	grid := NewGrid("kiss-001", "hug-001")
	badge := &Badge{}
	detach := New(store, grid, badge).Attach(ctx)
	defer detach()

	store.Add(ctx, cart.LineItem{ID: "kiss-001", Title: "Fake Fight", Price: 1, Qty: 1})
	c, ok := grid.Control("kiss-001")
	require.True(t, ok)
	assert.Equal(t, ControlFor("kiss-001", 1), c)
	assert.Equal(t, 1, badge.Count())

	store.SetQuantity(ctx, "kiss-001", 4)
	c, _ = grid.Control("kiss-001")
	assert.Equal(t, 4, c.Qty)
	assert.Equal(t, 4, badge.Count())

	store.Remove(ctx, "kiss-001")
	c, _ = grid.Control("kiss-001")
	assert.True(t, c.ShowAdd)
	assert.False(t, c.ShowStepper)
	assert.Equal(t, 0, badge.Count())
}

func TestClearRepaintsEveryProduct(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	grid := NewGrid("kiss-001", "hug-001")
	badge := &Badge{}
	defer New(store, grid, badge).Attach(ctx)()

	store.Add(ctx, cart.LineItem{ID: "kiss-001", Title: "A", Price: 1, Qty: 1})
	store.Add(ctx, cart.LineItem{ID: "hug-001", Title: "B", Price: 1, Qty: 2})
	store.Clear(ctx)

	for _, c := range grid.Controls() {
		assert.Equal(t, ControlFor(c.ProductID, 0), c)
	}
	assert.Equal(t, 0, badge.Count())
}

func TestProductsOffScreenOnlyTouchBadge(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	grid := NewGrid("kiss-001")
	badge := &Badge{}
	defer New(store, grid, badge).Attach(ctx)()

	store.Add(ctx, cart.LineItem{ID: "game-001", Title: "Screen Share", Price: 2, Qty: 1})

	_, ok := grid.Control("game-001")
	assert.False(t, ok)
	assert.Equal(t, 1, badge.Count())
}

func TestBadgeOnlyPage(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	badge := &Badge{}
	defer New(store, nil, badge).Attach(ctx)()

	store.Add(ctx, cart.LineItem{ID: "x", Title: "X", Price: 1, Qty: 5})
	assert.Equal(t, 5, badge.Count())
}
