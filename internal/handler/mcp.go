// MCP transport handler for CutieCart using the official MCP Go SDK.
// Exposes the storefront, cart and checkout operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cutiecart/internal/cart"
	"cutiecart/internal/catalogue"
	"cutiecart/internal/checkout"
	"cutiecart/internal/delivery"
	"cutiecart/internal/model"
	"cutiecart/internal/negotiation"
	"cutiecart/internal/notify"
)

// === MCP Tool Input/Output Types ===
// Every tool is keyed by the shopper session it acts on. MCP clients have no
// cookie jar, so the session travels as an argument.

// SessionInput is the input schema for tools that only need a session.
type SessionInput struct {
	Session string `json:"session" jsonschema:"shopper session id (UUID)"`
}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	Session   string `json:"session" jsonschema:"shopper session id (UUID)"`
	ProductID string `json:"product_id" jsonschema:"catalogue product id"`
	Qty       int    `json:"qty,omitempty" jsonschema:"units to add, default 1, at most 999"`
}

// ChangeQuantityInput is the input schema for change_quantity.
type ChangeQuantityInput struct {
	Session   string `json:"session" jsonschema:"shopper session id (UUID)"`
	ProductID string `json:"product_id" jsonschema:"catalogue product id"`
	Delta     int    `json:"delta" jsonschema:"stepper presses: positive adds, negative removes; reaching zero drops the item; at most 999 either way"`
}

// RemoveFromCartInput is the input schema for remove_from_cart.
type RemoveFromCartInput struct {
	Session   string `json:"session" jsonschema:"shopper session id (UUID)"`
	ProductID string `json:"product_id" jsonschema:"product id of the line item"`
}

// ToggleCouponInput is the input schema for toggle_coupon.
type ToggleCouponInput struct {
	Session string `json:"session" jsonschema:"shopper session id (UUID)"`
	Code    string `json:"code" jsonschema:"coupon code, case-sensitive"`
}

// ViewCheckoutInput is the input schema for view_checkout.
type ViewCheckoutInput struct {
	Session string `json:"session" jsonschema:"shopper session id (UUID)"`
	DryRun  *bool  `json:"dry_run,omitempty" jsonschema:"preview with notification dry run forced on or off"`
	API     string `json:"api,omitempty" jsonschema:"API version the client was written against"`
}

// PlaceOrderInput is the input schema for place_order.
type PlaceOrderInput struct {
	Session       string `json:"session" jsonschema:"shopper session id (UUID)"`
	BuyerName     string `json:"buyer_name,omitempty" jsonschema:"buyer name"`
	BuyerEmail    string `json:"buyer_email,omitempty" jsonschema:"buyer email"`
	PaymentChoice string `json:"payment_choice,omitempty" jsonschema:"payment option value; ignored while a coupon is applied"`
	Note          string `json:"note,omitempty" jsonschema:"note for the order"`
	DeliveryDate  string `json:"delivery_date,omitempty" jsonschema:"YYYY-MM-DD, defaults to today"`
	DeliveryTime  string `json:"delivery_time,omitempty" jsonschema:"HH:MM, defaults to the next whole hour"`
	DryRun        *bool  `json:"dry_run,omitempty" jsonschema:"simulate the order email for this call only"`
	API           string `json:"api,omitempty" jsonschema:"API version the client was written against"`
}

// PlacedOrder is the output of place_order.
type PlacedOrder struct {
	OrderID            string              `json:"order_id"`
	Summary            string              `json:"summary"`
	Items              []cart.LineItem     `json:"items"`
	Total              int                 `json:"total"`
	PaymentLabel       string              `json:"payment_label"`
	Delivery           delivery.Selection  `json:"delivery"`
	Notification       notify.Status       `json:"notification"`
	NotificationReason string              `json:"notification_reason,omitempty"`
	Messages           []string            `json:"messages"`
	Warning            bool                `json:"warning"`
	Redirect           string              `json:"redirect"`
	DryRunSource       notify.DryRunSource `json:"dry_run_source"`
}

// NewMCPServer creates an MCP server with the CutieCart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cutiecart",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "CutieCart - a tiny storefront. Pick a session UUID and pass it to every tool; " +
				"list products, fill the cart, toggle coupons, then place the order.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List the catalogue with each product's cart control and the cart badge.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "Show the cart line items, item count and total.",
	}, h.mcpViewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add units of a product to the cart.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "change_quantity",
		Description: "Press a line item's stepper. Decrementing to zero removes the item.",
	}, h.mcpChangeQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a line item from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_coupon",
		Description: "Apply or remove a coupon. Any applied coupon makes the order free.",
	}, h.mcpToggleCoupon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_checkout",
		Description: "Show the checkout page: summary, coupons, payment options and delivery defaults.",
	}, h.mcpViewCheckout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "place_order",
		Description: "Place the order from the cart. The ordered units leave the cart once the order is placed.",
	}, h.mcpPlaceOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "confirmation",
		Description: "Read the last placed order id. It can be read once.",
	}, h.mcpConfirmation)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *ProductsView, error) {
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	view := h.productsView(ctx, s)
	return nil, &view, nil
}

func (h *Handler) mcpViewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *CartView, error) {
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	view := h.cartView(ctx, s)
	return nil, &view, nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *ItemView, error) {
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	if input.Qty < 0 {
		return nil, nil, fmt.Errorf("qty must not be negative")
	}
	if input.Qty > cart.MaxQty {
		return nil, nil, h.mcpError(model.NewValidationError("qty", fmt.Sprintf("must be at most %d", cart.MaxQty)))
	}

	view, err := h.mutateItem(ctx, s, input.ProductID, func(rd *catalogue.Renderer) error {
		if input.Qty <= 1 {
			return rd.Add(ctx, input.ProductID)
		}
		item, ok := h.lookup(input.ProductID)
		if !ok {
			return fmt.Errorf("%w: %s", catalogue.ErrUnknownProduct, input.ProductID)
		}
		item.Qty = input.Qty
		s.cart.Add(ctx, item)
		return nil
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, view, nil
}

func (h *Handler) mcpChangeQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ChangeQuantityInput,
) (*mcp.CallToolResult, *ItemView, error) {
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	if input.Delta == 0 {
		return nil, nil, fmt.Errorf("delta must not be zero")
	}

	view, err := h.mutateItem(ctx, s, input.ProductID, func(rd *catalogue.Renderer) error {
		return rd.Step(ctx, input.ProductID, input.Delta)
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, view, nil
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveFromCartInput,
) (*mcp.CallToolResult, *ItemView, error) {
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}

	view, err := h.mutateItem(ctx, s, input.ProductID, func(*catalogue.Renderer) error {
		s.cart.Remove(ctx, input.ProductID)
		return nil
	})
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, view, nil
}

func (h *Handler) mcpToggleCoupon(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ToggleCouponInput,
) (*mcp.CallToolResult, *CouponsView, error) {
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	view := h.couponsView(ctx, s, s.coupons.Toggle(input.Code))
	return nil, &view, nil
}

func (h *Handler) mcpViewCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCheckoutInput,
) (*mcp.CallToolResult, *CheckoutView, error) {
	opts, err := h.mcpNegotiate(input.DryRun, input.API)
	if err != nil {
		return nil, nil, err
	}
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	dry, source := h.resolveDryRun(ctx, s, opts.DryRun, "")
	view := h.checkoutView(ctx, s, dry, source)
	return nil, &view, nil
}

func (h *Handler) mcpPlaceOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PlaceOrderInput,
) (*mcp.CallToolResult, *PlacedOrder, error) {
	opts, err := h.mcpNegotiate(input.DryRun, input.API)
	if err != nil {
		return nil, nil, err
	}
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	form := checkout.Form{
		BuyerName:     input.BuyerName,
		BuyerEmail:    input.BuyerEmail,
		PaymentChoice: input.PaymentChoice,
		Note:          input.Note,
		Delivery:      delivery.Selection{Date: input.DeliveryDate, Time: input.DeliveryTime},
	}

	// MCP calls carry no shopper-facing host, so loopback detection does not apply.
	view, err := h.submit(ctx, s, form, opts.DryRun, "")
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	order := view.Order
	return nil, &PlacedOrder{
		OrderID:            order.OrderID,
		Summary:            view.Summary,
		Items:              order.Items,
		Total:              order.Total,
		PaymentLabel:       order.PaymentLabel,
		Delivery:           order.Delivery,
		Notification:       view.Notification.Status,
		NotificationReason: view.Notification.Reason,
		Messages:           view.Messages,
		Warning:            view.Warning,
		Redirect:           view.Redirect,
		DryRunSource:       view.DryRunSource,
	}, nil
}

func (h *Handler) mcpConfirmation(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *ConfirmationView, error) {
	s, err := h.sessionShopper(input.Session)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, &ConfirmationView{
		OrderID: checkout.Confirmation(ctx, s.storage, h.logger),
	}, nil
}

// mcpError converts errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	apiErr := h.apiError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		// Don't leak internal error details
		return fmt.Errorf("internal error")
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}

// mcpNegotiate validates the client options carried as tool arguments.
func (h *Handler) mcpNegotiate(dryRun *bool, apiVersion string) (negotiation.Options, error) {
	opts, err := negotiation.ForMCP(dryRun, apiVersion)
	if err != nil {
		var verErr *negotiation.VersionError
		if errors.As(err, &verErr) {
			return opts, fmt.Errorf("%s: %s", verErr.Code, verErr.Message)
		}
		return opts, fmt.Errorf("%s: %v", negotiation.OptionsInvalid, err)
	}
	return opts, nil
}
