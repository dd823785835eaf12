package domain

import (
	"time"

	"github.com/google/uuid"
)

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CartLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
}

type Order struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Customer   CustomerInfo
	Price      float64
	PickupCode string
	CreatedAt  time.Time
}

type Transaction struct {
	ID               uuid.UUID
	EventID          string
	SellerID         string
	BuyerID          string
	ProductID        string
	Amount           float64
	CommissionRate   float64
	CommissionAmount float64
	Status           string
	CreatedAt        time.Time
}

type Product struct {
	ID         uuid.UUID
	Name       string
	Price      float64
	IsReserved bool
}

type Package struct {
	ID               uuid.UUID
	Name             string
	Description      string
	Price            float64
	GatewayProductID string
	GatewayPriceID   string
	Credits          int
	DiscountPrice    *float64
	DiscountStart    *time.Time
	DiscountEnd      *time.Time
	MaxQuantity      *int
	SoldQuantity     int
	CreatedAt        time.Time
}
