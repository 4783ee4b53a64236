package checkout

import "strings"

// PaymentOption is one radio choice on the checkout form.
type PaymentOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// PaymentOptions is the payment vocabulary, in display order.
var PaymentOptions = []PaymentOption{
	{Value: "time-with-me", Label: "⏰ Quality time together"},
	{Value: "gaming-date", Label: "🎮 Gaming date"},
	{Value: "movie-night", Label: "🎬 Movie night"},
	{Value: "walk-and-talk", Label: "🚶 Walk & talk"},
	{Value: "surprise-date", Label: "🎁 Surprise date"},
}

// DefaultPaymentChoice is preselected on the form.
const DefaultPaymentChoice = "time-with-me"

// PaymentLabel derives the label recorded on the order. Applied coupons make the
// order free, which replaces whatever payment was picked. Unknown choices are
// shown as given.
func PaymentLabel(choice string, coupons []string) string {
	if len(coupons) > 0 {
		return "Not applicable (free via " + strings.Join(coupons, ", ") + ")"
	}
	for _, o := range PaymentOptions {
		if o.Value == choice {
			return o.Label
		}
	}
	if choice == "" {
		return "Not selected"
	}
	return choice
}
