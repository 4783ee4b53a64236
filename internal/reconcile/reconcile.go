// Package reconcile computes the changes that turn the current cart (or coupon set)
// into a desired one, so full-state PUT requests can be applied through the
// ordinary cart and coupon operations.
package reconcile

import (
	"context"
	"fmt"

	"cutiecart/internal/cart"
)

// CartDiff describes the mutations needed to reconcile a cart.
// Apply in order: Remove → Update → Add.
type CartDiff struct {
	ToAdd    []DesiredItem // ids in desired but not current
	ToRemove []string      // ids in current but not desired
	ToUpdate []QtyChange   // ids in both with different quantities
}

// QtyChange is a quantity change for a line item already in the cart.
type QtyChange struct {
	ID          string
	OldQuantity int
	NewQuantity int
}

// DesiredItem is one entry of the requested cart.
type DesiredItem struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

// IsEmpty returns true if no line item changes are needed.
func (d *CartDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0
}

// DiffCart computes the delta between the current cart and the desired state.
// Desired entries with qty <= 0 mean "not in the cart". When an id repeats, the
// last entry wins. Results follow cart order for removals and updates and request
// order for additions.
func DiffCart(current []cart.LineItem, desired []DesiredItem) *CartDiff {
	diff := &CartDiff{}

	want := make(map[string]int, len(desired))
	var order []string
	for _, d := range desired {
		if _, seen := want[d.ID]; !seen {
			order = append(order, d.ID)
		}
		want[d.ID] = d.Qty
	}

	have := make(map[string]int, len(current))
	for _, it := range current {
		have[it.ID] = it.Qty
		qty, ok := want[it.ID]
		switch {
		case !ok || qty <= 0:
			diff.ToRemove = append(diff.ToRemove, it.ID)
		case qty != it.Qty:
			diff.ToUpdate = append(diff.ToUpdate, QtyChange{ID: it.ID, OldQuantity: it.Qty, NewQuantity: qty})
		}
	}

	for _, id := range order {
		qty := want[id]
		if _, exists := have[id]; exists || qty <= 0 {
			continue
		}
		diff.ToAdd = append(diff.ToAdd, DesiredItem{ID: id, Qty: qty})
	}

	return diff
}

// ProductLookup resolves an id to the line item data stored in the cart.
type ProductLookup func(id string) (cart.LineItem, bool)

// UnknownProductError lists requested ids the lookup could not resolve.
type UnknownProductError struct {
	IDs []string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown products: %v", e.IDs)
}

// ApplyCart applies diff to store. Every added id is resolved first; if any is
// unknown nothing is changed.
func ApplyCart(ctx context.Context, store *cart.Store, diff *CartDiff, lookup ProductLookup) error {
	adds := make([]cart.LineItem, 0, len(diff.ToAdd))
	var unknown []string
	for _, d := range diff.ToAdd {
		item, ok := lookup(d.ID)
		if !ok {
			unknown = append(unknown, d.ID)
			continue
		}
		item.Qty = d.Qty
		adds = append(adds, item)
	}
	if len(unknown) > 0 {
		return &UnknownProductError{IDs: unknown}
	}

	for _, id := range diff.ToRemove {
		store.Remove(ctx, id)
	}
	for _, u := range diff.ToUpdate {
		store.SetQuantity(ctx, u.ID, u.NewQuantity)
	}
	for _, item := range adds {
		store.Add(ctx, item)
	}
	return nil
}

// CodeDiff describes the toggles needed to reconcile a coupon set.
type CodeDiff struct {
	ToApply  []string // codes in desired but not current
	ToRemove []string // codes in current but not desired
}

// IsEmpty returns true if no coupon changes are needed.
func (d *CodeDiff) IsEmpty() bool {
	return len(d.ToApply) == 0 && len(d.ToRemove) == 0
}

// Toggles returns every code whose membership must flip, removals first.
func (d *CodeDiff) Toggles() []string {
	out := make([]string, 0, len(d.ToApply)+len(d.ToRemove))
	out = append(out, d.ToRemove...)
	return append(out, d.ToApply...)
}

// DiffCodes computes the set difference between current and desired codes,
// preserving the input order of each list.
func DiffCodes(currentCodes, desiredCodes []string) *CodeDiff {
	diff := &CodeDiff{}

	currentSet := make(map[string]bool, len(currentCodes))
	for _, code := range currentCodes {
		currentSet[code] = true
	}
	desiredSet := make(map[string]bool, len(desiredCodes))
	for _, code := range desiredCodes {
		desiredSet[code] = true
	}

	seen := make(map[string]bool, len(desiredCodes))
	for _, code := range desiredCodes {
		if !currentSet[code] && !seen[code] {
			diff.ToApply = append(diff.ToApply, code)
			seen[code] = true
		}
	}
	for _, code := range currentCodes {
		if !desiredSet[code] {
			diff.ToRemove = append(diff.ToRemove, code)
		}
	}

	return diff
}
