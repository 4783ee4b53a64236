// Package cart owns the shopper's cart: an ordered list of line items persisted
// under a single storage key and read-modify-written on every mutation.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"cutiecart/internal/storage"
)

// StorageKey is the reserved key holding the serialized cart.
const StorageKey = "cutiecart.cart.v1"

// MaxQty caps a single line item's quantity. Adds and quantity changes past it are
// clamped, which keeps Count and Total well inside int range.
const MaxQty = 999

// MaxPrice caps a line item's unit price.
const MaxPrice = 1_000_000

// LineItem is one product's entry in the cart.
// Price is an abstract unit, not a currency amount.
type LineItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price int    `json:"price"`
	Qty   int    `json:"qty"`
}

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind string

const (
	ChangeAdd      ChangeKind = "add"
	ChangeRemove   ChangeKind = "remove"
	ChangeQuantity ChangeKind = "quantity"
	ChangeClear    ChangeKind = "clear"
)

// Change is emitted to subscribers after a mutation has been persisted.
// ID is empty for ChangeClear. Subscribers re-query the Store for current state.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Store is the single source of truth for what is in a cart.
//
// Storage failures never reach the caller: unreadable or malformed data reads as
// an empty cart and is overwritten on the next mutation; failed writes are logged.
type Store struct {
	st     storage.Storage
	logger *slog.Logger

	mu sync.Mutex // serializes read-modify-write within this Store

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates a Store persisting to st.
func New(st storage.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		st:     st,
		logger: logger,
		subs:   make(map[int]func(Change)),
	}
}

// Add increments the quantity of an existing line item by item.Qty, or appends
// item as a new line item. A non-positive item.Qty counts as 1 and the resulting
// quantity is clamped to MaxQty.
func (s *Store) Add(ctx context.Context, item LineItem) {
	qty := clampQty(item.Qty)

	s.mu.Lock()
	items := s.read(ctx)
	if i := indexOf(items, item.ID); i >= 0 {
		items[i].Qty = clampQty(items[i].Qty + qty)
	} else {
		items = append(items, LineItem{ID: item.ID, Title: item.Title, Price: item.Price, Qty: qty})
	}
	s.write(ctx, items)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeAdd, ID: item.ID})
}

// Remove deletes the line item with the given id. Missing ids are a no-op,
// but the (unchanged) collection is still persisted.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	items := s.read(ctx)
	kept := items[:0]
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	s.write(ctx, kept)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeRemove, ID: id})
}

// SetQuantity sets the quantity of an existing line item to qty clamped to
// [1, MaxQty]. Callers wanting zero must call Remove. Missing ids are a no-op.
func (s *Store) SetQuantity(ctx context.Context, id string, qty int) {
	s.mu.Lock()
	items := s.read(ctx)
	i := indexOf(items, id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	items[i].Qty = clampQty(qty)
	s.write(ctx, items)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeQuantity, ID: id})
}

// Adjust moves an existing line item's quantity by delta in one read-modify-write.
// A result of zero or less removes the line item; a result past MaxQty is clamped.
// It reports the new quantity and whether the item was in the cart; missing ids
// are left alone.
func (s *Store) Adjust(ctx context.Context, id string, delta int) (qty int, ok bool) {
	delta = max(-MaxQty, min(MaxQty, delta))

	s.mu.Lock()
	items := s.read(ctx)
	i := indexOf(items, id)
	if i < 0 {
		s.mu.Unlock()
		return 0, false
	}
	kind := ChangeQuantity
	if qty = items[i].Qty + delta; qty <= 0 {
		qty, kind = 0, ChangeRemove
		items = append(items[:i], items[i+1:]...)
	} else {
		qty = min(MaxQty, qty)
		items[i].Qty = qty
	}
	s.write(ctx, items)
	s.mu.Unlock()

	s.emit(Change{Kind: kind, ID: id})
	return qty, true
}

// Deduct takes the given line items' quantities out of the cart in one
// read-modify-write, removing line items that drop to zero. Units added after
// the snapshot was taken stay in the cart. It returns what is left.
func (s *Store) Deduct(ctx context.Context, taken []LineItem) []LineItem {
	s.mu.Lock()
	items := s.read(ctx)
	kept := items[:0]
	for _, it := range items {
		if j := indexOf(taken, it.ID); j >= 0 {
			it.Qty -= taken[j].Qty
		}
		if it.Qty > 0 {
			kept = append(kept, it)
		}
	}
	s.write(ctx, kept)
	left := append([]LineItem(nil), kept...)
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeClear})
	return left
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.write(ctx, []LineItem{})
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeClear})
}

// Count returns the sum of all quantities.
func (s *Store) Count(ctx context.Context) int {
	n := 0
	for _, it := range s.Items(ctx) {
		n += it.Qty
	}
	return n
}

// Total returns the sum of price × qty across line items.
func (s *Store) Total(ctx context.Context) int {
	total := 0
	for _, it := range s.Items(ctx) {
		total += it.Price * it.Qty
	}
	return total
}

// Quantity returns the quantity held for id, or 0 when absent.
func (s *Store) Quantity(ctx context.Context, id string) int {
	items := s.Items(ctx)
	if i := indexOf(items, id); i >= 0 {
		return items[i].Qty
	}
	return 0
}

// Items returns a snapshot of the current line items. The slice is never nil and
// does not reflect later mutations.
func (s *Store) Items(ctx context.Context) []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

// Subscribe registers fn to be called after every mutation. The returned function
// removes the subscription. fn runs on the mutating goroutine, after the store lock
// has been released, so it may call back into the Store.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// read loads the persisted collection. Caller holds s.mu.
func (s *Store) read(ctx context.Context) []LineItem {
	raw, err := s.st.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.WarnContext(ctx, "cart read failed", slog.String("error", err.Error()))
		}
		return []LineItem{}
	}
	return decode(ctx, s.logger, raw)
}

// write persists items. Failures are logged and otherwise ignored. Caller holds s.mu.
func (s *Store) write(ctx context.Context, items []LineItem) {
	if items == nil {
		items = []LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		s.logger.WarnContext(ctx, "cart encode failed", slog.String("error", err.Error()))
		return
	}
	if err := s.st.Set(ctx, StorageKey, raw, 0); err != nil {
		s.logger.WarnContext(ctx, "cart write failed", slog.String("error", err.Error()))
	}
}

// decode parses the stored form. Malformed JSON yields an empty cart; entries that
// break line item invariants (empty id, qty < 1, price outside [0, MaxPrice]) are
// dropped, quantities are clamped to MaxQty and duplicate ids merged.
func decode(ctx context.Context, logger *slog.Logger, raw []byte) []LineItem {
	var stored []LineItem
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.WarnContext(ctx, "cart data malformed, treating as empty", slog.String("error", err.Error()))
		return []LineItem{}
	}

	items := make([]LineItem, 0, len(stored))
	for _, it := range stored {
		if it.ID == "" || it.Qty < 1 || it.Price < 0 || it.Price > MaxPrice {
			continue
		}
		it.Qty = min(MaxQty, it.Qty)
		if i := indexOf(items, it.ID); i >= 0 {
			items[i].Qty = min(MaxQty, items[i].Qty+it.Qty)
			continue
		}
		items = append(items, it)
	}
	return items
}

// clampQty maps a requested quantity into [1, MaxQty].
func clampQty(qty int) int {
	return max(1, min(MaxQty, qty))
}

func indexOf(items []LineItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
