package checkout

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cutiecart/internal/cart"
	"cutiecart/internal/delivery"
	"cutiecart/internal/notify"
)

// OrderIDPrefix starts every order id.
const OrderIDPrefix = "CUTIE-"

// Order is the snapshot taken when a checkout is submitted. It is built once and
// never modified; only OrderID outlives the submission.
type Order struct {
	OrderID        string             `json:"order_id"`
	Items          []cart.LineItem    `json:"items"`
	TotalQuantity  int                `json:"total_quantity"`
	Total          int                `json:"total"`
	AppliedCoupons []string           `json:"applied_coupons"`
	Delivery       delivery.Selection `json:"delivery"`
	PaymentChoice  string             `json:"payment_choice"`
	PaymentLabel   string             `json:"payment_label"`
	BuyerName      string             `json:"buyer_name"`
	BuyerEmail     string             `json:"buyer_email"`
	Note           string             `json:"note"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Summary is the one-line description shown in the checkout summary,
// e.g. "3 items (coupons: PRINCESS)".
func (o *Order) Summary() string {
	return SummaryText(o.TotalQuantity, o.AppliedCoupons)
}

// SummaryText formats an item count and the applied coupons.
func SummaryText(qty int, coupons []string) string {
	s := fmt.Sprintf("%d items", qty)
	if len(coupons) > 0 {
		s += " (coupons: " + strings.Join(coupons, ", ") + ")"
	}
	return s
}

// Notice converts the order into the notification payload.
func (o *Order) Notice() *notify.Notice {
	lines := make([]string, len(o.Items))
	for i, it := range o.Items {
		lines[i] = fmt.Sprintf("%s x %d", it.Title, it.Qty)
	}
	return &notify.Notice{
		OrderID:       o.OrderID,
		BuyerName:     o.BuyerName,
		BuyerEmail:    o.BuyerEmail,
		PaymentLabel:  o.PaymentLabel,
		Note:          o.Note,
		Items:         lines,
		TotalQuantity: o.TotalQuantity,
		Total:         o.Total,
		Coupons:       append([]string(nil), o.AppliedCoupons...),
		DeliveryDate:  o.Delivery.Date,
		DeliveryTime:  o.Delivery.Time,
		CreatedAt:     o.CreatedAt,
	}
}

// NewOrderID returns a short, human-readable id such as "CUTIE-4K9ZQ2".
// Six base36 characters from a random UUID; unique enough for display, not a key.
func NewOrderID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating order id: %w", err)
	}
	s := strings.ToUpper(strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36))
	if len(s) < 6 {
		s = strings.Repeat("0", 6-len(s)) + s
	}
	return OrderIDPrefix + s[len(s)-6:], nil
}
