// Package checkout turns a shopper's cart into a placed order.
//
// A submission validates the cart, snapshots it into an Order, asks the
// notification gateway to tell the operator, and then always finalizes: the order
// id is handed to the confirmation view and the cart is cleared. Notification
// problems become status messages, never checkout failures.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"cutiecart/internal/cart"
	"cutiecart/internal/coupon"
	"cutiecart/internal/delivery"
	"cutiecart/internal/model"
	"cutiecart/internal/notify"
	"cutiecart/internal/storage"
)

// ConfirmationPath is where the shopper is sent after finalizing.
const ConfirmationPath = "/confirmation"

// ErrSubmitInProgress is wrapped by the conflict returned for a double submit.
var ErrSubmitInProgress = errors.New("checkout already in progress")

// Session is everything a submission reads from and writes to for one shopper.
type Session struct {
	ID      string
	Cart    *cart.Store
	Coupons *coupon.State
	Storage storage.Storage // session-scoped, receives the handoff slot
	DryRun  bool            // resolved notify.ResolveDryRun outcome
}

// Form is the submitted checkout form.
type Form struct {
	BuyerName     string             `json:"buyer_name"`
	BuyerEmail    string             `json:"buyer_email"`
	PaymentChoice string             `json:"payment_choice"`
	Note          string             `json:"note"`
	Delivery      delivery.Selection `json:"delivery"`
}

// Result reports a finalized submission.
type Result struct {
	Order        *Order        `json:"order"`
	Notification notify.Result `json:"notification"`
	// Messages are the status lines shown to the shopper, in order.
	Messages []string `json:"messages"`
	// Warning is set when the notification outcome deserves the shopper's attention.
	Warning  bool   `json:"warning"`
	Redirect string `json:"redirect"`
}

// Options configures an Orchestrator. Gateway is required.
type Options struct {
	Gateway    notify.Gateway
	Logger     *slog.Logger
	HandoffTTL time.Duration
	// Location is the shop's local time zone for delivery defaults.
	Location *time.Location
	Now      func() time.Time
	NewID    func() (string, error)
	Observer Observer
}

// Orchestrator runs checkout submissions.
type Orchestrator struct {
	gateway    notify.Gateway
	logger     *slog.Logger
	handoffTTL time.Duration
	loc        *time.Location
	now        func() time.Time
	newID      func() (string, error)
	observer   Observer

	submissions   metric.Int64Counter
	notifications metric.Int64Counter

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Gateway == nil {
		return nil, errors.New("checkout: gateway is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HandoffTTL <= 0 {
		opts.HandoffTTL = DefaultHandoffTTL
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewOrderID
	}

	meter := otel.Meter("cutiecart/internal/checkout")
	submissions, err := meter.Int64Counter("cutiecart.checkout.submissions",
		metric.WithDescription("Checkout submissions by outcome"))
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("cutiecart.checkout.notifications",
		metric.WithDescription("Order notification attempts by status"))
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		gateway:       opts.Gateway,
		logger:        opts.Logger,
		handoffTTL:    opts.HandoffTTL,
		loc:           opts.Location,
		now:           opts.Now,
		newID:         opts.NewID,
		observer:      opts.Observer,
		submissions:   submissions,
		notifications: notifications,
		inFlight:      make(map[string]struct{}),
	}, nil
}

// Submit places an order from the session's cart.
//
// An empty cart is rejected with model.ErrEmptyCart before anything changes. A
// second submit for the same session while one is running is rejected with a
// conflict. Once the order has been built the submission always finalizes, and
// cancelling ctx no longer stops it.
func (o *Orchestrator) Submit(ctx context.Context, sess Session, form Form) (*Result, error) {
	if !o.acquire(sess.ID) {
		o.record(ctx, "in_progress")
		apiErr := model.NewConflictError("Your order is already being placed, hang on 💌")
		apiErr.Err = errors.Join(model.ErrConflict, ErrSubmitInProgress)
		return nil, apiErr
	}
	defer o.release(sess.ID)

	m := newMachine(sess.ID, o.observer)
	if err := m.to(StateValidating); err != nil {
		return nil, model.NewInternalError(err)
	}

	items := sess.Cart.Items(ctx)
	if len(items) == 0 {
		_ = m.to(StateIdle)
		o.record(ctx, "empty_cart")
		return nil, model.NewEmptyCartError()
	}
	if err := form.Delivery.Validate(); err != nil {
		_ = m.to(StateIdle)
		o.record(ctx, "invalid")
		return nil, model.NewValidationError("delivery", err.Error())
	}

	if err := m.to(StateBuildingOrder); err != nil {
		return nil, model.NewInternalError(err)
	}
	order, err := o.buildOrder(sess, form, items)
	if err != nil {
		_ = m.to(StateFailed)
		o.record(ctx, "failed")
		return nil, model.NewInternalError(err)
	}

	// From here on the order counts as placed.
	ctx = context.WithoutCancel(ctx)

	_ = m.to(StateNotifying)
	res := o.gateway.Send(ctx, order.Notice(), notify.SendOptions{DryRun: sess.DryRun})
	o.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(res.Status))))

	_ = m.to(StateFinalizing)
	o.finalize(ctx, sess, order)
	_ = m.to(StateDone)

	o.record(ctx, "placed")
	o.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.OrderID),
		slog.Int("items", order.TotalQuantity),
		slog.String("notification", string(res.Status)),
	)

	return &Result{
		Order:        order,
		Notification: res,
		Messages:     []string{res.Message(), "Order " + order.OrderID + " placed 💗"},
		Warning:      res.Warning(),
		Redirect:     ConfirmationPath,
	}, nil
}

func (o *Orchestrator) buildOrder(sess Session, form Form, items []cart.LineItem) (*Order, error) {
	id, err := o.newID()
	if err != nil {
		return nil, err
	}

	now := o.now().In(o.loc)
	var coupons []string
	if sess.Coupons != nil {
		coupons = sess.Coupons.AppliedList()
	}
	if coupons == nil {
		coupons = []string{}
	}

	qty, total := 0, 0
	for _, it := range items {
		qty += it.Qty
		total += it.Price * it.Qty
	}

	return &Order{
		OrderID:        id,
		Items:          items,
		TotalQuantity:  qty,
		Total:          total,
		AppliedCoupons: coupons,
		Delivery:       delivery.EnsureDefaults(form.Delivery, now),
		PaymentChoice:  form.PaymentChoice,
		PaymentLabel:   PaymentLabel(form.PaymentChoice, coupons),
		BuyerName:      strings.TrimSpace(form.BuyerName),
		BuyerEmail:     strings.TrimSpace(form.BuyerEmail),
		Note:           strings.TrimSpace(form.Note),
		CreatedAt:      now,
	}, nil
}

// finalize hands the order id to the confirmation view and takes the ordered
// units out of the cart. Anything added while the notification was in flight
// stays. A failed handoff write is logged; the confirmation view then shows the
// fallback id.
func (o *Orchestrator) finalize(ctx context.Context, sess Session, order *Order) {
	if sess.Storage != nil {
		if err := sess.Storage.Set(ctx, HandoffKey, []byte(order.OrderID), o.handoffTTL); err != nil {
			o.logger.WarnContext(ctx, "order handoff write failed",
				slog.String("order_id", order.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
	if left := sess.Cart.Deduct(ctx, order.Items); len(left) > 0 {
		o.logger.InfoContext(ctx, "items added during checkout kept",
			slog.String("order_id", order.OrderID),
			slog.Int("lines", len(left)),
		)
	}
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[sessionID]; busy {
		return false
	}
	o.inFlight[sessionID] = struct{}{}
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	delete(o.inFlight, sessionID)
	o.mu.Unlock()
}

func (o *Orchestrator) record(ctx context.Context, outcome string) {
	o.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
