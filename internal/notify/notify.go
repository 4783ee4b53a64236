// Package notify tells a human operator that an order was placed.
//
// Notification is a side channel: every outcome, including failure, is reported as
// a Result rather than an error, so callers can finish checkout regardless.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of one send attempt.
type Status string

const (
	// StatusSent means the provider accepted the message.
	StatusSent Status = "sent"
	// StatusSkipped means no attempt was made because configuration is incomplete.
	StatusSkipped Status = "skipped"
	// StatusDryRun means the send was simulated without contacting the provider.
	StatusDryRun Status = "dry_run"
	// StatusFailed means the provider could not be reached or rejected the message.
	StatusFailed Status = "failed"
)

// Result describes what happened to a notification.
type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// Warning reports whether the shopper should see this outcome as a warning.
func (r Result) Warning() bool {
	return r.Status == StatusSkipped || r.Status == StatusFailed
}

// Message is the shopper-facing status line for the outcome.
func (r Result) Message() string {
	switch r.Status {
	case StatusSent:
		return "Order email sent successfully ✓"
	case StatusSkipped:
		return "Email not configured, so no email was sent. Please set PUBLIC KEY, SERVICE ID, TEMPLATE ID."
	case StatusDryRun:
		return "Test mode: order email simulated, nothing was sent ✓"
	case StatusFailed:
		return "Email send failed. Your order is still placed; check the server log and config."
	default:
		return string(r.Status)
	}
}

// Notice is the order summary delivered to the operator.
type Notice struct {
	OrderID       string
	BuyerName     string
	BuyerEmail    string
	PaymentLabel  string
	Note          string
	Items         []string // one "Title x qty" per line item
	TotalQuantity int
	Total         int
	Coupons       []string
	DeliveryDate  string
	DeliveryTime  string
	CreatedAt     time.Time
}

// TemplateParams renders the notice as the flat parameter map the email template uses.
func (n *Notice) TemplateParams(to string) map[string]string {
	return map[string]string{
		"to_email":       to,
		"order_id":       n.OrderID,
		"buyer_name":     n.BuyerName,
		"buyer_email":    n.BuyerEmail,
		"payment_method": n.PaymentLabel,
		"note":           n.Note,
		"items":          strings.Join(n.Items, "\n"),
		"total":          fmt.Sprintf("%d items", n.TotalQuantity),
		"total_price":    fmt.Sprintf("%d", n.Total),
		"coupons":        strings.Join(n.Coupons, ", "),
		"delivery_date":  n.DeliveryDate,
		"delivery_time":  n.DeliveryTime,
		"created_at":     n.CreatedAt.Format(time.RFC3339),
	}
}

// SendOptions carries per-attempt choices resolved by the caller.
type SendOptions struct {
	// DryRun simulates the send. See ResolveDryRun for how it is decided.
	DryRun bool
}

// Gateway delivers order notices.
// Send never returns an error: failures are reported as StatusFailed.
type Gateway interface {
	Send(ctx context.Context, n *Notice, opts SendOptions) Result
}

// Config names the provider settings a gateway needs.
type Config struct {
	ServiceID     string `json:"service_id"`
	TemplateID    string `json:"template_id"`
	PublicKey     string `json:"public_key"`
	PrivateKey    string `json:"private_key,omitempty"` // optional access token
	NotifyAddress string `json:"notify_address,omitempty"`

	// DryRun is the deployment-wide default; nil defers to loopback detection.
	DryRun *bool `json:"dry_run,omitempty"`

	// Endpoint overrides the provider's send URL.
	Endpoint string `json:"endpoint,omitempty"`
}

// Missing lists the required fields that are empty.
func (c Config) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.ServiceID) == "" {
		missing = append(missing, "service_id")
	}
	if strings.TrimSpace(c.TemplateID) == "" {
		missing = append(missing, "template_id")
	}
	if strings.TrimSpace(c.PublicKey) == "" {
		missing = append(missing, "public_key")
	}
	return missing
}
