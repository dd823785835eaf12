package domain

import "time"

// DiscountActive reports whether now falls within the package's discount
// window. Packages without a window or discounted price never discount.
func (p Package) DiscountActive(now time.Time) bool {
	if p.DiscountPrice == nil || p.DiscountStart == nil || p.DiscountEnd == nil {
		return false
	}
	return !now.Before(*p.DiscountStart) && !now.After(*p.DiscountEnd)
}

func (p Package) EffectivePrice(now time.Time) float64 {
	if p.DiscountActive(now) {
		return *p.DiscountPrice
	}
	return p.Price
}

func (p Package) SoldOut() bool {
	return p.MaxQuantity != nil && p.SoldQuantity >= *p.MaxQuantity
}

func (p Package) Validate() error {
	if p.Name == "" || p.Price <= 0 {
		return ErrInvalidInput
	}
	if p.MaxQuantity != nil && *p.MaxQuantity < p.SoldQuantity {
		return ErrInvalidInput
	}
	if p.DiscountStart != nil && p.DiscountEnd != nil && p.DiscountEnd.Before(*p.DiscountStart) {
		return ErrInvalidInput
	}
	return nil
}
