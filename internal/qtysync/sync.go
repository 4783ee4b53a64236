// Package qtysync keeps the per-product quantity controls and the cart badge in
// step with the cart Store. Views never hold their own cart state: every repaint
// re-queries the Store.
package qtysync

import (
	"context"
	"sync"

	"cutiecart/internal/cart"
)

// Control is the visible state of one product's cart affordance.
// Exactly one of ShowAdd and ShowStepper is true.
type Control struct {
	ProductID   string `json:"product_id"`
	Qty         int    `json:"qty"`
	ShowAdd     bool   `json:"show_add"`
	ShowStepper bool   `json:"show_stepper"`
}

// ControlFor derives the control state for a quantity.
func ControlFor(productID string, qty int) Control {
	return Control{
		ProductID:   productID,
		Qty:         qty,
		ShowAdd:     qty <= 0,
		ShowStepper: qty > 0,
	}
}

// Grid holds one Control per product currently on screen, in display order.
type Grid struct {
	mu       sync.RWMutex
	order    []string
	controls map[string]Control
}

// NewGrid creates a grid for the given products, all initially showing "add".
func NewGrid(productIDs ...string) *Grid {
	g := &Grid{
		order:    append([]string(nil), productIDs...),
		controls: make(map[string]Control, len(productIDs)),
	}
	for _, id := range productIDs {
		g.controls[id] = ControlFor(id, 0)
	}
	return g
}

// Has reports whether the product is rendered in this grid.
func (g *Grid) Has(productID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.controls[productID]
	return ok
}

// ProductIDs returns the rendered products in display order.
func (g *Grid) ProductIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Paint replaces the control of a rendered product. Unrendered products are ignored.
func (g *Grid) Paint(c Control) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.controls[c.ProductID]; ok {
		g.controls[c.ProductID] = c
	}
}

// Control returns the current control for a product.
func (g *Grid) Control(productID string) (Control, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.controls[productID]
	return c, ok
}

// Controls returns every control in display order.
func (g *Grid) Controls() []Control {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Control, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.controls[id])
	}
	return out
}

// Badge shows the cart item count.
type Badge struct {
	mu    sync.RWMutex
	count int
}

// Set updates the displayed count.
func (b *Badge) Set(n int) {
	b.mu.Lock()
	b.count = n
	b.mu.Unlock()
}

// Count returns the displayed count.
func (b *Badge) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Sync wires a Store to the views rendered for one page.
// Either view may be nil when the page does not show it.
type Sync struct {
	store *cart.Store
	grid  *Grid
	badge *Badge
}

// New creates a Sync. Call Attach to start following store mutations.
func New(store *cart.Store, grid *Grid, badge *Badge) *Sync {
	return &Sync{store: store, grid: grid, badge: badge}
}

// Attach subscribes to the store once; every later mutation repaints the affected
// product and the badge. ctx is used for the re-queries triggered by mutations.
// The returned function detaches.
func (s *Sync) Attach(ctx context.Context) (detach func()) {
	return s.store.Subscribe(func(c cart.Change) {
		if c.Kind == cart.ChangeClear {
			s.ReconcileAll(ctx)
			return
		}
		s.Reconcile(ctx, c.ID)
	})
}

// Reconcile repaints one product's control and the badge from the Store.
func (s *Sync) Reconcile(ctx context.Context, productID string) {
	if s.grid != nil && s.grid.Has(productID) {
		s.grid.Paint(ControlFor(productID, s.store.Quantity(ctx, productID)))
	}
	s.repaintBadge(ctx)
}

// ReconcileAll repaints every rendered product and the badge. Used on page load so a
// cart filled on another page renders correctly. Idempotent.
func (s *Sync) ReconcileAll(ctx context.Context) {
	if s.grid != nil {
		items := s.store.Items(ctx)
		qty := make(map[string]int, len(items))
		for _, it := range items {
			qty[it.ID] = it.Qty
		}
		for _, id := range s.grid.ProductIDs() {
			s.grid.Paint(ControlFor(id, qty[id]))
		}
	}
	s.repaintBadge(ctx)
}

func (s *Sync) repaintBadge(ctx context.Context) {
	if s.badge != nil {
		s.badge.Set(s.store.Count(ctx))
	}
}
