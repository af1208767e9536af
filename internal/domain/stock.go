package domain

import (
	"encoding/json"
	"fmt"
)

// Stock is an immutable non-negative quantity.
type Stock struct {
	quantity int
}

func NewStock(quantity int) (Stock, error) {
	if quantity < 0 {
		return Stock{}, fmt.Errorf("%w: %d", ErrNegativeQuantity, quantity)
	}
	return Stock{quantity: quantity}, nil
}

func (s Stock) Quantity() int { return s.quantity }

func (s Stock) Decrement(amount int) (Stock, error) {
	if amount < 0 {
		return Stock{}, fmt.Errorf("%w: decrement by %d", ErrNegativeAmount, amount)
	}
	if amount > s.quantity {
		return Stock{}, fmt.Errorf("%w: current %d, requested %d", ErrInsufficientStock, s.quantity, amount)
	}
	return Stock{quantity: s.quantity - amount}, nil
}

func (s Stock) Increment(amount int) (Stock, error) {
	if amount < 0 {
		return Stock{}, fmt.Errorf("%w: increment by %d", ErrNegativeAmount, amount)
	}
	return Stock{quantity: s.quantity + amount}, nil
}

func (s Stock) IsAvailable(amount int) bool {
	return amount <= s.quantity
}

func (s Stock) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.quantity)
}

func (s *Stock) UnmarshalJSON(data []byte) error {
	var q int
	if err := json.Unmarshal(data, &q); err != nil {
		return err
	}
	parsed, err := NewStock(q)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
