package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

const PatternGetProductDetailsWithStock = "product.get_details_with_stock"

// Envelope is the generic message shape used on the broker:
// {pattern, data, id}. Replies and events reuse it.
type Envelope struct {
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
	ID      string          `json:"id,omitempty"`
}

// Reply is what the request/reply caller reads from its reply queue.
type Reply struct {
	ID         string          `json:"id"`
	Response   json.RawMessage `json:"response,omitempty"`
	Err        *ReplyError     `json:"err,omitempty"`
	IsDisposed bool            `json:"isDisposed"`
}

type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeUnsupportedPattern = "UNSUPPORTED_PATTERN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION"
	ErrCodeReservationFailed  = "RESERVATION_FAILED"
	ErrCodeInternal           = "INTERNAL"
	ErrCodeBadEnvelope        = "BAD_ENVELOPE"
)

type GetProductDetailsWithStockRequest struct {
	ProductID        uuid.UUID `json:"productId"`
	RequiredQuantity int       `json:"requiredQuantity"`
}

type ProductDetailsWithStock struct {
	Product           ProductDetails `json:"product"`
	HasStock          bool           `json:"hasStock"`
	AvailableQuantity int            `json:"availableQuantity"`
}
