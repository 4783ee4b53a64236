package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"cutiecart/internal/cart"
	"cutiecart/internal/storage"
)

func TestDiffCart_EmptyToItems(t *testing.T) {
	desired := []DesiredItem{
		{ID: "kiss-001", Qty: 2},
		{ID: "hug-001", Qty: 1},
	}

	diff := DiffCart(nil, desired)

	if !reflect.DeepEqual(diff.ToAdd, desired) {
		t.Errorf("ToAdd = %v, want %v", diff.ToAdd, desired)
	}
	if len(diff.ToRemove) != 0 {
		t.Errorf("ToRemove = %d, want 0", len(diff.ToRemove))
	}
	if len(diff.ToUpdate) != 0 {
		t.Errorf("ToUpdate = %d, want 0", len(diff.ToUpdate))
	}
}

func TestDiffCart_ItemsToEmpty(t *testing.T) {
	current := []cart.LineItem{
		{ID: "kiss-001", Qty: 2},
		{ID: "hug-001", Qty: 1},
	}

	diff := DiffCart(current, nil)

	want := []string{"kiss-001", "hug-001"}
	if !reflect.DeepEqual(diff.ToRemove, want) {
		t.Errorf("ToRemove = %v, want %v", diff.ToRemove, want)
	}
	if len(diff.ToAdd) != 0 || len(diff.ToUpdate) != 0 {
		t.Errorf("unexpected adds/updates: %+v", diff)
	}
}

func TestDiffCart_QuantityUpdate(t *testing.T) {
	current := []cart.LineItem{{ID: "kiss-001", Qty: 2}}
	desired := []DesiredItem{{ID: "kiss-001", Qty: 5}}

	diff := DiffCart(current, desired)

	if len(diff.ToUpdate) != 1 {
		t.Fatalf("ToUpdate = %d, want 1", len(diff.ToUpdate))
	}
	u := diff.ToUpdate[0]
	if u.ID != "kiss-001" || u.OldQuantity != 2 || u.NewQuantity != 5 {
		t.Errorf("update = %+v", u)
	}
}

func TestDiffCart_ZeroMeansRemove(t *testing.T) {
	current := []cart.LineItem{{ID: "kiss-001", Qty: 2}}
	desired := []DesiredItem{{ID: "kiss-001", Qty: 0}, {ID: "hug-001", Qty: -1}}

	diff := DiffCart(current, desired)

	if !reflect.DeepEqual(diff.ToRemove, []string{"kiss-001"}) {
		t.Errorf("ToRemove = %v", diff.ToRemove)
	}
	if len(diff.ToAdd) != 0 {
		t.Errorf("ToAdd = %v, non-positive entries must not be added", diff.ToAdd)
	}
}

func TestDiffCart_NoChange(t *testing.T) {
	current := []cart.LineItem{{ID: "kiss-001", Qty: 2}}
	desired := []DesiredItem{{ID: "kiss-001", Qty: 2}}

	if diff := DiffCart(current, desired); !diff.IsEmpty() {
		t.Errorf("expected empty diff, got %+v", diff)
	}
}

func TestDiffCart_LastDuplicateWins(t *testing.T) {
	desired := []DesiredItem{{ID: "kiss-001", Qty: 1}, {ID: "kiss-001", Qty: 4}}

	diff := DiffCart(nil, desired)

	want := []DesiredItem{{ID: "kiss-001", Qty: 4}}
	if !reflect.DeepEqual(diff.ToAdd, want) {
		t.Errorf("ToAdd = %v, want %v", diff.ToAdd, want)
	}
}

func TestDiffCart_MixedOperations(t *testing.T) {
	current := []cart.LineItem{
		{ID: "a", Qty: 1}, // keep
		{ID: "b", Qty: 2}, // update
		{ID: "c", Qty: 1}, // remove
	}
	desired := []DesiredItem{
		{ID: "d", Qty: 3}, // add
		{ID: "a", Qty: 1},
		{ID: "b", Qty: 7},
	}

	diff := DiffCart(current, desired)

	if !reflect.DeepEqual(diff.ToAdd, []DesiredItem{{ID: "d", Qty: 3}}) {
		t.Errorf("ToAdd = %v", diff.ToAdd)
	}
	if !reflect.DeepEqual(diff.ToRemove, []string{"c"}) {
		t.Errorf("ToRemove = %v", diff.ToRemove)
	}
	if !reflect.DeepEqual(diff.ToUpdate, []QtyChange{{ID: "b", OldQuantity: 2, NewQuantity: 7}}) {
		t.Errorf("ToUpdate = %v", diff.ToUpdate)
	}
}

func testStore() *cart.Store {
	return cart.New(storage.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func lookup(id string) (cart.LineItem, bool) {
	products := map[string]cart.LineItem{
		"a": {ID: "a", Title: "A", Price: 1},
		"b": {ID: "b", Title: "B", Price: 2},
		"d": {ID: "d", Title: "D", Price: 3},
	}
	it, ok := products[id]
	return it, ok
}

func TestApplyCart(t *testing.T) {
	ctx := context.Background()
	store := testStore()
	store.Add(ctx, cart.LineItem{ID: "a", Title: "A", Price: 1, Qty: 1})
	store.Add(ctx, cart.LineItem{ID: "b", Title: "B", Price: 2, Qty: 2})

	desired := []DesiredItem{{ID: "b", Qty: 5}, {ID: "d", Qty: 1}}
	if err := ApplyCart(ctx, store, DiffCart(store.Items(ctx), desired), lookup); err != nil {
		t.Fatalf("ApplyCart: %v", err)
	}

	want := []cart.LineItem{
		{ID: "b", Title: "B", Price: 2, Qty: 5},
		{ID: "d", Title: "D", Price: 3, Qty: 1},
	}
	if got := store.Items(ctx); !reflect.DeepEqual(got, want) {
		t.Errorf("Items = %v, want %v", got, want)
	}
}

func TestApplyCart_UnknownProductChangesNothing(t *testing.T) {
	ctx := context.Background()
	store := testStore()
	store.Add(ctx, cart.LineItem{ID: "a", Title: "A", Price: 1, Qty: 1})

	desired := []DesiredItem{{ID: "zzz", Qty: 1}}
	err := ApplyCart(ctx, store, DiffCart(store.Items(ctx), desired), lookup)

	var unknown *UnknownProductError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownProductError", err)
	}
	if !reflect.DeepEqual(unknown.IDs, []string{"zzz"}) {
		t.Errorf("IDs = %v", unknown.IDs)
	}
	if store.Quantity(ctx, "a") != 1 {
		t.Error("cart changed despite unknown product")
	}
}

func TestDiffCodes(t *testing.T) {
	tests := []struct {
		name        string
		current     []string
		desired     []string
		wantApply   []string
		wantRemove  []string
		wantToggles []string
	}{
		{
			name:        "empty to codes",
			desired:     []string{"PRINCESS"},
			wantApply:   []string{"PRINCESS"},
			wantToggles: []string{"PRINCESS"},
		},
		{
			name:        "codes to empty",
			current:     []string{"PRINCESS", "DaWifey"},
			wantRemove:  []string{"PRINCESS", "DaWifey"},
			wantToggles: []string{"PRINCESS", "DaWifey"},
		},
		{
			name:        "replace",
			current:     []string{"PRINCESS"},
			desired:     []string{"DaWifey"},
			wantApply:   []string{"DaWifey"},
			wantRemove:  []string{"PRINCESS"},
			wantToggles: []string{"PRINCESS", "DaWifey"},
		},
		{
			name:        "no change",
			current:     []string{"PRINCESS"},
			desired:     []string{"PRINCESS"},
			wantToggles: []string{},
		},
		{
			name:        "duplicate desired",
			desired:     []string{"PRINCESS", "PRINCESS"},
			wantApply:   []string{"PRINCESS"},
			wantToggles: []string{"PRINCESS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := DiffCodes(tt.current, tt.desired)
			if !reflect.DeepEqual(diff.ToApply, tt.wantApply) {
				t.Errorf("ToApply = %v, want %v", diff.ToApply, tt.wantApply)
			}
			if !reflect.DeepEqual(diff.ToRemove, tt.wantRemove) {
				t.Errorf("ToRemove = %v, want %v", diff.ToRemove, tt.wantRemove)
			}
			if got := diff.Toggles(); !reflect.DeepEqual(got, tt.wantToggles) {
				t.Errorf("Toggles = %v, want %v", got, tt.wantToggles)
			}
			if diff.IsEmpty() != (len(tt.wantToggles) == 0) {
				t.Errorf("IsEmpty = %v", diff.IsEmpty())
			}
		})
	}
}
