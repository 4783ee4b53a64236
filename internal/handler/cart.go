package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"cutiecart/internal/cart"
	"cutiecart/internal/catalogue"
	"cutiecart/internal/model"
	"cutiecart/internal/reconcile"
)

// addItemRequest is the body of POST /cart/items.
type addItemRequest struct {
	ID string `json:"id"`
}

// setQuantityRequest is the body of PUT /cart/items/{id}.
type setQuantityRequest struct {
	Qty int `json:"qty"`
}

// replaceCartRequest is the body of PUT /cart. Items absent from the list, or
// listed with qty <= 0, are removed.
type replaceCartRequest struct {
	Items []reconcile.DesiredItem `json:"items"`
}

// handleProducts returns the product grid reconciled with the session's cart.
// GET /products
func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.productsView(r.Context(), s))
}

// handleGetCart returns the cart.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView(r.Context(), s))
}

// handleReplaceCart sets the full cart contents.
// PUT /cart
func (h *Handler) handleReplaceCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req replaceCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	for _, d := range req.Items {
		if d.Qty > cart.MaxQty {
			h.writeError(w, model.NewValidationError("items", fmt.Sprintf("%s: qty must be at most %d", d.ID, cart.MaxQty)))
			return
		}
	}

	diff := reconcile.DiffCart(s.cart.Items(ctx), req.Items)
	h.logger.InfoContext(ctx, "replacing cart",
		slog.Int("add", len(diff.ToAdd)),
		slog.Int("remove", len(diff.ToRemove)),
		slog.Int("update", len(diff.ToUpdate)),
	)

	if !diff.IsEmpty() {
		if err := reconcile.ApplyCart(ctx, s.cart, diff, h.lookup); err != nil {
			h.writeError(w, err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, h.cartView(ctx, s))
}

// handleClearCart empties the cart.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	s.cart.Clear(ctx)
	h.writeJSON(w, http.StatusOK, h.cartView(ctx, s))
}

// handleAddItem adds one unit of a product.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ID == "" {
		h.writeError(w, model.NewValidationError("id", "product id required"))
		return
	}

	view, err := h.mutateItem(r.Context(), s, req.ID, func(rd *catalogue.Renderer) error {
		return rd.Add(r.Context(), req.ID)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleIncrement is the stepper's plus button.
// POST /cart/items/{id}/increment
func (h *Handler) handleIncrement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.stepItem(w, r, id, func(rd *catalogue.Renderer) error {
		return rd.Increment(r.Context(), id)
	})
}

// handleDecrement is the stepper's minus button; reaching zero removes the item.
// POST /cart/items/{id}/decrement
func (h *Handler) handleDecrement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.stepItem(w, r, id, func(rd *catalogue.Renderer) error {
		return rd.Decrement(r.Context(), id)
	})
}

func (h *Handler) stepItem(w http.ResponseWriter, r *http.Request, id string, fn func(*catalogue.Renderer) error) {
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.mutateItem(r.Context(), s, id, fn)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleSetQuantity sets a line item's quantity. Zero and below are rejected;
// removal goes through DELETE.
// PUT /cart/items/{id}
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Qty <= 0 {
		h.writeError(w, model.NewValidationError("qty", "must be at least 1; use DELETE to remove"))
		return
	}
	if req.Qty > cart.MaxQty {
		h.writeError(w, model.NewValidationError("qty", fmt.Sprintf("must be at most %d", cart.MaxQty)))
		return
	}
	if s.cart.Quantity(ctx, id) == 0 {
		h.writeError(w, model.NewNotFoundError("cart item"))
		return
	}

	view, err := h.mutateItem(ctx, s, id, func(*catalogue.Renderer) error {
		s.cart.SetQuantity(ctx, id, req.Qty)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleRemoveItem removes a line item. Removing an absent item succeeds.
// DELETE /cart/items/{id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	view, err := h.mutateItem(ctx, s, id, func(*catalogue.Renderer) error {
		s.cart.Remove(ctx, id)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// lookup resolves catalogue products for reconcile.ApplyCart.
func (h *Handler) lookup(id string) (cart.LineItem, bool) {
	p, ok := h.catalogue.Lookup(id)
	if !ok {
		return cart.LineItem{}, false
	}
	return cart.LineItem{ID: p.ID, Title: p.Title, Price: p.Price}, true
}
