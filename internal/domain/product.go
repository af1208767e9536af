package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxProductNameLength = 255

// Product is the catalog aggregate. Version is owned by the persistence
// layer: it is compared and advanced on every successful Save.
type Product struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Price   Money     `json:"price"`
	Stock   Stock     `json:"stock"`
	Version int64     `json:"version"`
}

func NewProduct(name string, price Money, initialStock Stock) (*Product, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	return &Product{
		ID:    uuid.New(),
		Name:  name,
		Price: price,
		Stock: initialStock,
	}, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be blank", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxProductNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxProductNameLength)
	}
	return nil
}

func validatePrice(price Money) error {
	if price.Currency() == "" {
		return fmt.Errorf("%w: price is required", ErrValidation)
	}
	if price.Amount().IsNegative() {
		return fmt.Errorf("%w: price", ErrNegativeAmount)
	}
	return nil
}

func (p *Product) DecrementStock(amount int) error {
	next, err := p.Stock.Decrement(amount)
	if err != nil {
		return err
	}
	p.Stock = next
	return nil
}

func (p *Product) IncrementStock(amount int) error {
	next, err := p.Stock.Increment(amount)
	if err != nil {
		return err
	}
	p.Stock = next
	return nil
}

func (p *Product) UpdatePrice(price Money) error {
	if err := validatePrice(price); err != nil {
		return err
	}
	p.Price = price
	return nil
}

func (p *Product) UpdateName(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	p.Name = name
	return nil
}
