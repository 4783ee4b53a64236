// Package catalogue holds the static product list and the entry points the product
// grid uses to change the cart.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cutiecart/internal/cart"
)

var (
	// ErrUnknownProduct is returned for ids that are not in the catalogue.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrStepTooLarge is returned when one step would move more than cart.MaxQty units.
	ErrStepTooLarge = errors.New("step too large")
)

// Product is one catalogue entry.
type Product struct {
	ID     string   `json:"id" yaml:"id"`
	Title  string   `json:"title" yaml:"title"`
	Desc   string   `json:"desc" yaml:"desc"`
	Price  int      `json:"price" yaml:"price"`
	Badges []string `json:"badges,omitempty" yaml:"badges"`
	Image  string   `json:"image,omitempty" yaml:"image"`
}

// Catalogue is an ordered, read-only product list.
type Catalogue struct {
	products []Product
	byID     map[string]int
}

// New builds a catalogue, rejecting duplicate or empty ids and prices outside
// [0, cart.MaxPrice].
func New(products []Product) (*Catalogue, error) {
	c := &Catalogue{
		products: append([]Product(nil), products...),
		byID:     make(map[string]int, len(products)),
	}
	for i, p := range c.products {
		if p.ID == "" {
			return nil, fmt.Errorf("product %d: id is required", i)
		}
		if p.Price < 0 || p.Price > cart.MaxPrice {
			return nil, fmt.Errorf("product %s: price must be between 0 and %d", p.ID, cart.MaxPrice)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("product %s: duplicate id", p.ID)
		}
		c.byID[p.ID] = i
	}
	return c, nil
}

// Load reads a YAML product list from path: a sequence of mappings keyed by the
// Product yaml tags (id, title, desc, price, badges, image).
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}
	var products []Product
	if err := yaml.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parsing catalogue: %w", err)
	}
	return New(products)
}

// Products returns the catalogue in display order.
func (c *Catalogue) Products() []Product {
	return append([]Product(nil), c.products...)
}

// IDs returns product ids in display order.
func (c *Catalogue) IDs() []string {
	ids := make([]string, len(c.products))
	for i, p := range c.products {
		ids[i] = p.ID
	}
	return ids
}

// Lookup finds a product by id.
func (c *Catalogue) Lookup(id string) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Default returns the built-in storefront catalogue.
func Default() *Catalogue {
	c, err := New(defaultProducts)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultProducts = []Product{
	{
		ID:     "kiss-001",
		Title:  "Fake Fight 😤",
		Desc:   "You can get mad at me for no reason and I will be sowwwy.",
		Price:  1,
		Badges: []string{"Sweet", "Instant Joy"},
		Image:  "./assets/img/angry.gif",
	},
	{
		ID:     "hug-001",
		Title:  "Full Attention 🧐",
		Desc:   "I will give you my full attention even if I am werking.",
		Price:  1,
		Badges: []string{"Comfort", "Warmth"},
		Image:  "./assets/img/attention.gif",
	},
	{
		ID:     "attention-001",
		Title:  "Complimentsss 🥰",
		Desc:   "I will tell you how much I love you and why you are the bestesttt.",
		Price:  1,
		Badges: []string{"Focused", "Cute"},
		Image:  "./assets/img/compliment.gif",
	},
	{
		ID:     "cuddle-001",
		Title:  "Otpeeeeee 📲💵💳",
		Desc:   "I will give you all OTPs without asking what they are for.",
		Price:  2,
		Badges: []string{"Cozy", "Playlist"},
		Image:  "./assets/img/otp.gif",
	},
	{
		ID:     "movie-001",
		Title:  "Vlog Time🍿",
		Desc:   "I will watch whatever vlogs you want to watch with me.",
		Price:  2,
		Badges: []string{"Snacks", "Cuddles"},
		Image:  "./assets/img/watch.gif",
	},
	{
		ID:     "game-001",
		Title:  "Screen Share Shopping 🛒",
		Desc:   "You show me dresses and I will do 👍👎",
		Price:  2,
		Badges: []string{"Fun", "Competitive"},
		Image:  "./assets/img/tonibear-bear.gif",
	},
}

// Renderer is the product grid's handle on the cart: the add button and the
// plus/minus stepper. Views attached to the Store repaint themselves on each change.
type Renderer struct {
	catalogue *Catalogue
	store     *cart.Store
}

// NewRenderer binds a catalogue to a cart Store.
func NewRenderer(c *Catalogue, store *cart.Store) *Renderer {
	return &Renderer{catalogue: c, store: store}
}

// Add puts one unit of the product in the cart.
func (r *Renderer) Add(ctx context.Context, productID string) error {
	p, ok := r.catalogue.Lookup(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	r.store.Add(ctx, cart.LineItem{ID: p.ID, Title: p.Title, Price: p.Price, Qty: 1})
	return nil
}

// Increment is the stepper's plus button; identical to Add.
func (r *Renderer) Increment(ctx context.Context, productID string) error {
	return r.Add(ctx, productID)
}

// Decrement is the stepper's minus button. Dropping to zero removes the line item.
// Decrementing a product that is not in the cart is a no-op.
func (r *Renderer) Decrement(ctx context.Context, productID string) error {
	return r.Step(ctx, productID, -1)
}

// Step presses plus or minus |delta| times in one cart update. A positive delta
// adds the product when it is not in the cart yet; a negative one on an absent
// product is a no-op. |delta| is limited to cart.MaxQty.
func (r *Renderer) Step(ctx context.Context, productID string, delta int) error {
	p, ok := r.catalogue.Lookup(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	if delta > cart.MaxQty || delta < -cart.MaxQty {
		return fmt.Errorf("%w: %d", ErrStepTooLarge, delta)
	}
	if _, ok := r.store.Adjust(ctx, productID, delta); !ok && delta > 0 {
		r.store.Add(ctx, cart.LineItem{ID: p.ID, Title: p.Title, Price: p.Price, Qty: delta})
	}
	return nil
}
