package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultCommissionRate = 10.0

	StatusPending = "pending"
)

// NewTransaction records a completed checkout. amountMinor is the gateway's
// total in minor units (cents). A zero rate falls back to the default.
func NewTransaction(eventID, sellerID, buyerID, productID string, amountMinor int64, rate float64) Transaction {
	if rate == 0 {
		rate = DefaultCommissionRate
	}
	amount := float64(amountMinor) / 100
	return Transaction{
		ID:               uuid.New(),
		EventID:          eventID,
		SellerID:         sellerID,
		BuyerID:          buyerID,
		ProductID:        productID,
		Amount:           amount,
		CommissionRate:   rate,
		CommissionAmount: round2(amount * rate / 100),
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
