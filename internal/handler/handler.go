// Package handler provides the HTTP handlers for the CutieCart API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cutiecart/internal/cart"
	"cutiecart/internal/catalogue"
	"cutiecart/internal/checkout"
	"cutiecart/internal/coupon"
	"cutiecart/internal/middleware"
	"cutiecart/internal/model"
	"cutiecart/internal/notify"
	"cutiecart/internal/reconcile"
	"cutiecart/internal/storage"
)

// DryRunKey holds a session's sticky dry-run preference.
const DryRunKey = "cutiecart.dryrun"

// Options configures a Handler. Catalogue, Storage, Coupons and Checkout are required.
type Options struct {
	Catalogue *catalogue.Catalogue
	Storage   storage.Storage
	Coupons   *coupon.Registry
	Checkout  *checkout.Orchestrator
	Logger    *slog.Logger

	// Carts shares one cart.Store per session; nil builds one over Storage.
	Carts *cart.Registry

	// DryRun is the configured notification default; nil leaves it to loopback detection.
	DryRun *bool
	// LoopbackDryRun turns on dry run for requests addressed to a loopback host.
	LoopbackDryRun bool

	// Location and Now drive the delivery defaults shown on the checkout view.
	Location *time.Location
	Now      func() time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	catalogue      *catalogue.Catalogue
	storage        storage.Storage
	carts          *cart.Registry
	coupons        *coupon.Registry
	checkout       *checkout.Orchestrator
	logger         *slog.Logger
	dryRun         *bool
	loopbackDryRun bool
	loc            *time.Location
	now            func() time.Time
}

// New creates a Handler.
func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Carts == nil {
		opts.Carts = cart.NewRegistry(opts.Storage, opts.Logger, 0)
	}
	return &Handler{
		catalogue:      opts.Catalogue,
		storage:        opts.Storage,
		carts:          opts.Carts,
		coupons:        opts.Coupons,
		checkout:       opts.Checkout,
		logger:         opts.Logger,
		dryRun:         opts.DryRun,
		loopbackDryRun: opts.LoopbackDryRun,
		loc:            opts.Location,
		now:            opts.Now,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Storefront
	mux.HandleFunc("GET /products", h.handleProducts)

	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("PUT /cart", h.handleReplaceCart)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("POST /cart/items/{id}/increment", h.handleIncrement)
	mux.HandleFunc("POST /cart/items/{id}/decrement", h.handleDecrement)
	mux.HandleFunc("PUT /cart/items/{id}", h.handleSetQuantity)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveItem)

	// Checkout
	mux.HandleFunc("GET /checkout", h.handleGetCheckout)
	mux.HandleFunc("POST /checkout/coupons/{code}/toggle", h.handleToggleCoupon)
	mux.HandleFunc("PUT /checkout/coupons", h.handleReplaceCoupons)
	mux.HandleFunc("POST /checkout", h.handleSubmitCheckout)
	mux.HandleFunc("GET "+checkout.ConfirmationPath, h.handleConfirmation)

	mux.HandleFunc("PUT /session/dry-run", h.handleSetDryRun)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// shopper is one session's view of the shared backends.
type shopper struct {
	id      string
	storage storage.Storage
	cart    *cart.Store
	coupons *coupon.State
}

// shopper binds a session id to its namespaced storage, cart and coupon state.
// The cart Store comes from the registry so concurrent requests share its lock.
func (h *Handler) shopper(id string) *shopper {
	return &shopper{
		id:      id,
		storage: storage.Namespace(h.storage, id),
		cart:    h.carts.For(id),
		coupons: h.coupons.For(id),
	}
}

// requestShopper resolves the session set by the Session middleware.
func (h *Handler) requestShopper(r *http.Request) (*shopper, error) {
	id := middleware.SessionID(r.Context())
	if id == "" {
		return nil, model.NewValidationError("session", "session required")
	}
	return h.shopper(id), nil
}

// sessionShopper resolves a session id passed explicitly, as MCP tools do.
func (h *Handler) sessionShopper(id string) (*shopper, error) {
	if id == "" {
		return nil, model.NewValidationError("session", "session is required")
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, model.NewValidationError("session", "must be a UUID")
	}
	return h.shopper(u.String()), nil
}

// stickyDryRun reads the session's stored dry-run preference; nil when unset.
func (h *Handler) stickyDryRun(ctx context.Context, s *shopper) *bool {
	raw, err := s.storage.Get(ctx, DryRunKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.WarnContext(ctx, "dry-run preference read failed", slog.String("error", err.Error()))
		}
		return nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// resolveDryRun combines the request override, the session preference and the
// configured defaults. host is empty when the caller has no request host.
func (h *Handler) resolveDryRun(ctx context.Context, s *shopper, request *bool, host string) (bool, notify.DryRunSource) {
	return notify.ResolveDryRun(notify.DryRunInputs{
		Request:            request,
		Session:            h.stickyDryRun(ctx, s),
		Config:             h.dryRun,
		Host:               host,
		LoopbackAutoDetect: h.loopbackDryRun,
	})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.apiError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// apiError finds the APIError in err's chain. Anything else is logged and hidden
// behind a generic internal error.
func (h *Handler) apiError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= http.StatusInternalServerError && apiErr.Err != nil {
			h.logger.Error("internal error", slog.String("error", apiErr.Err.Error()))
		}
		return apiErr
	}

	var unknown *reconcile.UnknownProductError
	if errors.As(err, &unknown) {
		return model.NewValidationError("items", "unknown products "+strings.Join(unknown.IDs, ", "))
	}
	if errors.Is(err, catalogue.ErrUnknownProduct) {
		return model.NewNotFoundError("product")
	}
	if errors.Is(err, catalogue.ErrStepTooLarge) {
		return model.NewValidationError("delta", fmt.Sprintf("must be between -%d and %d", cart.MaxQty, cart.MaxQty))
	}

	h.logger.Error("internal error", slog.String("error", err.Error()))
	return model.NewInternalError(err)
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
