package rpc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/service"
)

// ProductQueries is the read side of service.ProductService.
type ProductQueries interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	CheckStock(ctx context.Context, id uuid.UUID, quantity int) (service.StockCheck, error)
}

func RegisterProductHandlers(b *Bridge, q ProductQueries) {
	Handle(b, models.PatternGetProductDetailsWithStock, GetProductDetailsWithStock(q))
}

// GetProductDetailsWithStock composes a product lookup and a stock check.
// The two reads are not isolated; a reservation landing in between can make
// availableQuantity newer than product.stockQuantity.
func GetProductDetailsWithStock(q ProductQueries) func(context.Context, models.GetProductDetailsWithStockRequest) (models.ProductDetailsWithStock, error) {
	return func(ctx context.Context, req models.GetProductDetailsWithStockRequest) (models.ProductDetailsWithStock, error) {
		if req.ProductID == uuid.Nil {
			return models.ProductDetailsWithStock{}, fmt.Errorf("%w: productId is required", domain.ErrValidation)
		}
		if req.RequiredQuantity < 0 {
			return models.ProductDetailsWithStock{}, fmt.Errorf("%w: requiredQuantity cannot be negative", domain.ErrValidation)
		}

		product, err := q.GetProduct(ctx, req.ProductID)
		if err != nil {
			return models.ProductDetailsWithStock{}, err
		}
		check, err := q.CheckStock(ctx, req.ProductID, req.RequiredQuantity)
		if err != nil {
			return models.ProductDetailsWithStock{}, err
		}

		return models.ProductDetailsWithStock{
			Product:           models.NewProductDetails(product),
			HasStock:          check.HasStock,
			AvailableQuantity: check.AvailableQuantity,
		}, nil
	}
}
