package domain

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

const pickupAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewPickupCode returns a 6-character uppercase alphanumeric code the buyer
// presents at pickup.
func NewPickupCode() string {
	buf := make([]byte, 6)
	rand.Read(buf)
	for i := range buf {
		buf[i] = pickupAlphabet[int(buf[i])%len(pickupAlphabet)]
	}
	return string(buf)
}

func NewOrder(line CartLine, customer CustomerInfo) Order {
	return Order{
		ID:         uuid.New(),
		ProductID:  line.ProductID,
		Customer:   customer,
		Price:      line.Price,
		PickupCode: NewPickupCode(),
		CreatedAt:  time.Now().UTC(),
	}
}
