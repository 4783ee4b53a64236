package handler

import (
	"context"

	"cutiecart/internal/cart"
	"cutiecart/internal/catalogue"
	"cutiecart/internal/checkout"
	"cutiecart/internal/delivery"
	"cutiecart/internal/notify"
	"cutiecart/internal/qtysync"
)

// The view types below are the JSON projections shared by the REST routes and
// the MCP tools.

// ProductsView is the product grid after a page-load reconcile.
type ProductsView struct {
	Products []catalogue.Product `json:"products"`
	Controls []qtysync.Control   `json:"controls"`
	Badge    int                 `json:"badge"`
}

// CartView is the cart contents with its derived totals.
type CartView struct {
	Items []cart.LineItem `json:"items"`
	Count int             `json:"count"`
	Total int             `json:"total"`
}

// ItemView is returned by single-product mutations: the repainted control, the
// badge and the resulting cart.
type ItemView struct {
	Control qtysync.Control `json:"control"`
	Badge   int             `json:"badge"`
	Cart    CartView        `json:"cart"`
}

// CouponView is one coupon toggle.
type CouponView struct {
	Code    string `json:"code"`
	Label   string `json:"label,omitempty"`
	Applied bool   `json:"applied"`
	Locked  bool   `json:"locked,omitempty"`
}

// PaymentOptionView is one payment radio.
type PaymentOptionView struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

// CheckoutView is the checkout page: summary, coupons, payment and delivery defaults.
type CheckoutView struct {
	Cart           CartView            `json:"cart"`
	Summary        string              `json:"summary"`
	Coupons        []CouponView        `json:"coupons"`
	AppliedCoupons []string            `json:"applied_coupons"`
	CouponStatus   string              `json:"coupon_status"`
	PaymentLocked  bool                `json:"payment_locked"`
	PaymentOptions []PaymentOptionView `json:"payment_options"`
	DefaultPayment string              `json:"default_payment"`
	Delivery       delivery.Selection  `json:"delivery"`
	DryRun         bool                `json:"dry_run"`
	DryRunSource   notify.DryRunSource `json:"dry_run_source"`
}

// CouponsView is the coupon section after a toggle.
type CouponsView struct {
	Coupons        []CouponView `json:"coupons"`
	AppliedCoupons []string     `json:"applied_coupons"`
	CouponStatus   string       `json:"coupon_status"`
	PaymentLocked  bool         `json:"payment_locked"`
	Summary        string       `json:"summary"`
	Changed        bool         `json:"changed"`
}

// OrderView is a placed order as returned by submit.
type OrderView struct {
	*checkout.Result
	Summary      string              `json:"summary"`
	DryRunSource notify.DryRunSource `json:"dry_run_source"`
}

// ConfirmationView is the confirmation page.
type ConfirmationView struct {
	OrderID string `json:"order_id"`
}

// DryRunView reports a session's dry-run preference and the effective outcome.
type DryRunView struct {
	Enabled   *bool               `json:"enabled"`
	Effective bool                `json:"effective"`
	Source    notify.DryRunSource `json:"source"`
}

func (h *Handler) cartView(ctx context.Context, s *shopper) CartView {
	items := s.cart.Items(ctx)
	v := CartView{Items: items}
	for _, it := range items {
		v.Count += it.Qty
		v.Total += it.Price * it.Qty
	}
	return v
}

// grid renders the product grid and badge for s and reconciles them with the cart.
func (h *Handler) grid(ctx context.Context, s *shopper) (*qtysync.Sync, *qtysync.Grid, *qtysync.Badge) {
	grid := qtysync.NewGrid(h.catalogue.IDs()...)
	badge := &qtysync.Badge{}
	sync := qtysync.New(s.cart, grid, badge)
	sync.ReconcileAll(ctx)
	return sync, grid, badge
}

func (h *Handler) productsView(ctx context.Context, s *shopper) ProductsView {
	_, grid, badge := h.grid(ctx, s)
	return ProductsView{
		Products: h.catalogue.Products(),
		Controls: grid.Controls(),
		Badge:    badge.Count(),
	}
}

// mutateItem runs fn against the cart with the grid attached, so the returned
// control and badge are the ones repainted by the mutation itself.
func (h *Handler) mutateItem(ctx context.Context, s *shopper, productID string, fn func(*catalogue.Renderer) error) (*ItemView, error) {
	sync, grid, badge := h.grid(ctx, s)
	detach := sync.Attach(ctx)
	defer detach()

	if err := fn(catalogue.NewRenderer(h.catalogue, s.cart)); err != nil {
		return nil, err
	}

	control, _ := grid.Control(productID)
	return &ItemView{
		Control: control,
		Badge:   badge.Count(),
		Cart:    h.cartView(ctx, s),
	}, nil
}

func (h *Handler) couponViews(s *shopper) []CouponView {
	defs := h.coupons.Vocabulary().Definitions()
	out := make([]CouponView, len(defs))
	for i, d := range defs {
		out[i] = CouponView{
			Code:    d.Code,
			Label:   d.Label,
			Applied: s.coupons.IsApplied(d.Code),
			Locked:  d.Locked,
		}
	}
	return out
}

func (h *Handler) couponsView(ctx context.Context, s *shopper, changed bool) CouponsView {
	applied := s.coupons.AppliedList()
	return CouponsView{
		Coupons:        h.couponViews(s),
		AppliedCoupons: applied,
		CouponStatus:   s.coupons.StatusText(),
		PaymentLocked:  s.coupons.PaymentLocked(),
		Summary:        checkout.SummaryText(s.cart.Count(ctx), applied),
		Changed:        changed,
	}
}

func (h *Handler) checkoutView(ctx context.Context, s *shopper, dryRun bool, source notify.DryRunSource) CheckoutView {
	cv := h.cartView(ctx, s)
	applied := s.coupons.AppliedList()
	locked := s.coupons.PaymentLocked()

	options := make([]PaymentOptionView, len(checkout.PaymentOptions))
	for i, o := range checkout.PaymentOptions {
		options[i] = PaymentOptionView{Value: o.Value, Label: o.Label, Disabled: locked}
	}

	return CheckoutView{
		Cart:           cv,
		Summary:        checkout.SummaryText(cv.Count, applied),
		Coupons:        h.couponViews(s),
		AppliedCoupons: applied,
		CouponStatus:   s.coupons.StatusText(),
		PaymentLocked:  locked,
		PaymentOptions: options,
		DefaultPayment: checkout.DefaultPaymentChoice,
		Delivery:       delivery.EnsureDefaults(delivery.Selection{}, h.now().In(h.loc)),
		DryRun:         dryRun,
		DryRunSource:   source,
	}
}
