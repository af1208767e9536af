package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
)

// ProductDetails is shared by the HTTP API and the product_queue replies.
// priceAmount is a JSON number so foreign callers can read it as one.
type ProductDetails struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	PriceAmount   json.Number `json:"priceAmount"`
	StockQuantity int         `json:"stockQuantity"`
	Version       int64       `json:"version"`
}

func NewProductDetails(p *domain.Product) ProductDetails {
	return ProductDetails{
		ID:            p.ID,
		Name:          p.Name,
		PriceAmount:   json.Number(p.Price.Amount().String()),
		StockQuantity: p.Stock.Quantity(),
		Version:       p.Version,
	}
}

// Price parses PriceAmount back into a decimal.
func (d ProductDetails) Price() (decimal.Decimal, error) {
	return decimal.NewFromString(d.PriceAmount.String())
}

type ProductResponse struct {
	ProductDetails
	Currency string `json:"currency"`
}

func NewProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{ProductDetails: NewProductDetails(p), Currency: p.Price.Currency()}
}

type CreateProductRequest struct {
	Name         string          `json:"name" binding:"required,max=255"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	InitialStock int             `json:"initialStock" binding:"min=0"`
}

type UpdateProductRequest struct {
	Name     *string          `json:"name"`
	Amount   *decimal.Decimal `json:"amount"`
	Currency string           `json:"currency"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type StockCheckResponse struct {
	ProductID         uuid.UUID `json:"productId"`
	RequiredQuantity  int       `json:"requiredQuantity"`
	HasStock          bool      `json:"hasStock"`
	AvailableQuantity int       `json:"availableQuantity"`
}
