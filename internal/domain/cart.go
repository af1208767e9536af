package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartItem struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	Price       Money     `json:"price"`
	Quantity    int       `json:"quantity"`
}

func NewCartItem(productID uuid.UUID, productName string, price Money, quantity int) (CartItem, error) {
	if quantity <= 0 {
		return CartItem{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	return CartItem{
		ID:          uuid.New(),
		ProductID:   productID,
		ProductName: productName,
		Price:       price,
		Quantity:    quantity,
	}, nil
}

func (i *CartItem) UpdateQuantity(quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	i.Quantity = quantity
	return nil
}

func (i CartItem) Subtotal() Money {
	return i.Price.Multiply(i.Quantity)
}

// Cart is owned by a single user. Mutations return the event they emit and
// also record it until ClearDomainEvents is called after a successful save.
type Cart struct {
	ID      uuid.UUID  `json:"id"`
	UserID  uuid.UUID  `json:"userId"`
	Items   []CartItem `json:"items"`
	Version int64      `json:"version"`

	events []Event
	now    func() time.Time
}

func NewCart(userID uuid.UUID) *Cart {
	return &Cart{ID: uuid.New(), UserID: userID}
}

func (c *Cart) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}

func (c *Cart) findItem(productID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem merges into an existing line by replacing its quantity, or appends
// a new line. The event carries the requested quantity either way.
func (c *Cart) AddItem(productID uuid.UUID, productName string, price Money, quantity int) (ItemAddedToCart, error) {
	if idx := c.findItem(productID); idx >= 0 {
		if err := c.Items[idx].UpdateQuantity(quantity); err != nil {
			return ItemAddedToCart{}, err
		}
	} else {
		item, err := NewCartItem(productID, productName, price, quantity)
		if err != nil {
			return ItemAddedToCart{}, err
		}
		c.Items = append(c.Items, item)
	}

	event := ItemAddedToCart{
		EventID:    uuid.New(),
		CartID:     c.ID,
		ProductID:  productID,
		Quantity:   quantity,
		OccurredAt: c.clock(),
	}
	c.events = append(c.events, event)
	return event, nil
}

// UpdateItemQuantity returns a nil event when the quantity is unchanged.
func (c *Cart) UpdateItemQuantity(productID uuid.UUID, newQuantity int) (*CartItemQuantityUpdated, error) {
	if newQuantity == 0 {
		return nil, ErrUseRemoveItem
	}
	idx := c.findItem(productID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: product %s", ErrItemNotFound, productID)
	}

	previous := c.Items[idx].Quantity
	if previous == newQuantity {
		return nil, nil
	}
	if err := c.Items[idx].UpdateQuantity(newQuantity); err != nil {
		return nil, err
	}

	event := CartItemQuantityUpdated{
		EventID:            uuid.New(),
		CartID:             c.ID,
		UserID:             c.UserID,
		ProductID:          productID,
		PreviousQuantity:   previous,
		NewQuantity:        newQuantity,
		QuantityDifference: newQuantity - previous,
		OccurredAt:         c.clock(),
	}
	c.events = append(c.events, event)
	return &event, nil
}

func (c *Cart) Total() (Money, error) {
	if len(c.Items) == 0 {
		return Money{amount: decimal.Zero, currency: DefaultCurrency}, nil
	}
	total := c.Items[0].Subtotal()
	for _, item := range c.Items[1:] {
		var err error
		if total, err = total.Add(item.Subtotal()); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// DomainEvents returns a copy of the pending events.
func (c *Cart) DomainEvents() []Event {
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Cart) ClearDomainEvents() {
	c.events = nil
}
