package entities

import "time"

// Plan is a purchasable subscription tier
type Plan struct {
	Tier          SubscriptionTier `json:"tier"`
	Name          string           `json:"name"`
	Price         float64          `json:"price"`
	OriginalPrice float64          `json:"original_price,omitempty"`
	Features      []string         `json:"features"`
}

// Paid reports whether subscribing requires a payment
func (p Plan) Paid() bool {
	return p.Price > 0
}

// Plans returns the catalog in display order.
func Plans() []Plan {
	return []Plan{
		{
			Tier:     TierFree,
			Name:     "Free",
			Price:    0,
			Features: []string{"5 lessons per day", "Basic exercises", "Community support"},
		},
		{
			Tier:          TierPro,
			Name:          "Pro",
			Price:         8.99,
			OriginalPrice: 10.49,
			Features:      []string{"Unlimited lessons", "AI Voice Tutor", "Advanced analytics", "Priority support"},
		},
		{
			Tier:          TierPremium,
			Name:          "Premium",
			Price:         12.99,
			OriginalPrice: 15.29,
			Features:      []string{"Everything in Pro", "1-on-1 tutoring", "Custom learning paths", "Offline mode"},
		},
	}
}

// PlanFor looks a plan up by tier
func PlanFor(tier SubscriptionTier) (Plan, error) {
	for _, p := range Plans() {
		if p.Tier == tier {
			return p, nil
		}
	}
	return Plan{}, Validation("unknown plan %q", tier)
}

// PaymentReceipt is the result of a (simulated) payment
type PaymentReceipt struct {
	Success       bool             `json:"success"`
	TransactionID string           `json:"transaction_id"`
	Plan          SubscriptionTier `json:"plan"`
	Amount        float64          `json:"amount"`
	Message       string           `json:"message"`
	PaidAt        time.Time        `json:"paid_at"`
}
