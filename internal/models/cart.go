package models

import (
	"github.com/google/uuid"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
)

type AddItemRequest struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type UpdateItemQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type CartItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	Price       string    `json:"price"`
	Currency    string    `json:"currency"`
	Quantity    int       `json:"quantity"`
	Subtotal    string    `json:"subtotal"`
}

type CartResponse struct {
	ID       uuid.UUID          `json:"id"`
	UserID   uuid.UUID          `json:"userId"`
	Items    []CartItemResponse `json:"items"`
	Total    string             `json:"total"`
	Currency string             `json:"currency"`
	Version  int64              `json:"version"`
}

func NewCartResponse(c *domain.Cart) (CartResponse, error) {
	total, err := c.Total()
	if err != nil {
		return CartResponse{}, err
	}

	resp := CartResponse{
		ID:       c.ID,
		UserID:   c.UserID,
		Items:    make([]CartItemResponse, 0, len(c.Items)),
		Total:    total.Amount().StringFixed(2),
		Currency: total.Currency(),
		Version:  c.Version,
	}
	for _, item := range c.Items {
		resp.Items = append(resp.Items, CartItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price.Amount().StringFixed(2),
			Currency:    item.Price.Currency(),
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal().Amount().StringFixed(2),
		})
	}
	return resp, nil
}
