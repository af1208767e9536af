package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact recorded by an aggregate mutation. Events are transient:
// they live on the aggregate until the command handler relays them.
type Event interface {
	EventName() string
	ID() uuid.UUID
}

// ItemAddedToCart field names are decoded structurally by the catalog side,
// keep them in sync with the consumer.
type ItemAddedToCart struct {
	EventID    uuid.UUID `json:"-"`
	CartID     uuid.UUID `json:"cartId"`
	ProductID  uuid.UUID `json:"productId"`
	Quantity   int       `json:"quantity"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (e ItemAddedToCart) EventName() string { return "ItemAddedToCart" }
func (e ItemAddedToCart) ID() uuid.UUID     { return e.EventID }

type CartItemQuantityUpdated struct {
	EventID            uuid.UUID `json:"-"`
	CartID             uuid.UUID `json:"cartId"`
	UserID             uuid.UUID `json:"userId"`
	ProductID          uuid.UUID `json:"productId"`
	PreviousQuantity   int       `json:"previousQuantity"`
	NewQuantity        int       `json:"newQuantity"`
	QuantityDifference int       `json:"quantityDifference"`
	OccurredAt         time.Time `json:"occurredAt"`
}

func (e CartItemQuantityUpdated) EventName() string { return "CartItemQuantityUpdated" }
func (e CartItemQuantityUpdated) ID() uuid.UUID     { return e.EventID }
