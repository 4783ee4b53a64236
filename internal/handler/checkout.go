package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"cutiecart/internal/checkout"
	"cutiecart/internal/negotiation"
	"cutiecart/internal/reconcile"
)

// replaceCouponsRequest is the body of PUT /checkout/coupons.
type replaceCouponsRequest struct {
	Codes []string `json:"codes"`
}

// dryRunRequest is the body of PUT /session/dry-run. A null enabled clears the
// session preference.
type dryRunRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleGetCheckout renders the checkout page.
// GET /checkout
func (h *Handler) handleGetCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dry, source := h.resolveDryRun(ctx, s, negotiation.FromContext(ctx).DryRun, r.Host)
	h.writeJSON(w, http.StatusOK, h.checkoutView(ctx, s, dry, source))
}

// handleToggleCoupon flips one coupon. Unknown and locked codes are left as they are.
// POST /checkout/coupons/{code}/toggle
func (h *Handler) handleToggleCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")

	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	changed := s.coupons.Toggle(code)
	h.logger.InfoContext(ctx, "coupon toggled",
		slog.String("code", code),
		slog.Bool("changed", changed),
		slog.Bool("applied", s.coupons.IsApplied(code)),
	)
	h.writeJSON(w, http.StatusOK, h.couponsView(ctx, s, changed))
}

// handleReplaceCoupons sets the full applied set.
// PUT /checkout/coupons
func (h *Handler) handleReplaceCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req replaceCouponsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	changed := h.applyCoupons(s, req.Codes)
	h.writeJSON(w, http.StatusOK, h.couponsView(ctx, s, changed))
}

// applyCoupons toggles the session's coupons towards codes and reports whether
// anything flipped.
func (h *Handler) applyCoupons(s *shopper, codes []string) bool {
	diff := reconcile.DiffCodes(s.coupons.AppliedList(), codes)
	changed := false
	for _, code := range diff.Toggles() {
		if s.coupons.Toggle(code) {
			changed = true
		}
	}
	return changed
}

// handleSubmitCheckout places the order. The body is optional; an empty body
// submits with every field defaulted.
// POST /checkout
func (h *Handler) handleSubmitCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var form checkout.Form
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &form); err != nil {
			h.writeError(w, err)
			return
		}
	}

	view, err := h.submit(ctx, s, form, negotiation.FromContext(ctx).DryRun, r.Host)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Location", view.Redirect)
	h.writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) submit(ctx context.Context, s *shopper, form checkout.Form, request *bool, host string) (*OrderView, error) {
	dry, source := h.resolveDryRun(ctx, s, request, host)

	h.logger.InfoContext(ctx, "submitting checkout",
		slog.String("session", s.id),
		slog.Bool("dry_run", dry),
		slog.String("dry_run_source", string(source)),
	)

	res, err := h.checkout.Submit(ctx, checkout.Session{
		ID:      s.id,
		Cart:    s.cart,
		Coupons: s.coupons,
		Storage: s.storage,
		DryRun:  dry,
	}, form)
	if err != nil {
		return nil, err
	}

	// The coupon page starts over for the next order.
	h.coupons.Reset(s.id)

	return &OrderView{
		Result:       res,
		Summary:      res.Order.Summary(),
		DryRunSource: source,
	}, nil
}

// handleConfirmation shows the last placed order id once.
// GET /confirmation
func (h *Handler) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ConfirmationView{
		OrderID: checkout.Confirmation(r.Context(), s.storage, h.logger),
	})
}

// handleSetDryRun stores the session's dry-run preference.
// PUT /session/dry-run
func (h *Handler) handleSetDryRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.requestShopper(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req dryRunRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if req.Enabled == nil {
		err = s.storage.Delete(ctx, DryRunKey)
	} else {
		raw, _ := json.Marshal(*req.Enabled)
		err = s.storage.Set(ctx, DryRunKey, raw, 0)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	dry, source := h.resolveDryRun(ctx, s, nil, r.Host)
	h.writeJSON(w, http.StatusOK, DryRunView{
		Enabled:   req.Enabled,
		Effective: dry,
		Source:    source,
	})
}
