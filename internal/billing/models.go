package billing

import "github.com/google/uuid"

// CreditPack is a purchasable bundle of lookups.
type CreditPack struct {
	ID         string `json:"id"`
	Credits    int    `json:"credits"`
	PriceCents int    `json:"priceCents"`
}

// DefaultPacks is the sellable catalog. Prices live here rather than in
// the payment provider so the webhook can validate what it is crediting.
var DefaultPacks = []CreditPack{
	{ID: "starter", Credits: 10, PriceCents: 299},
	{ID: "standard", Credits: 50, PriceCents: 999},
	{ID: "bulk", Credits: 250, PriceCents: 3499},
}

// CheckoutEvent is the payment provider's completed-checkout notification.
type CheckoutEvent struct {
	EventID   string    `json:"event_id"`
	AccountID uuid.UUID `json:"account_id"`
	PackID    string    `json:"pack_id"`
}

// BalanceResponse is the authenticated balance read.
type BalanceResponse struct {
	Credits int `json:"credits"`
}
