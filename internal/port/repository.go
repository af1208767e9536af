package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
)

type ProductRepository interface {
	// GetByID returns domain.ErrProductNotFound when no row exists
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// GetByIDForUpdate reads the product for a write that must win the version check
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	List(ctx context.Context) ([]*domain.Product, error)

	// Create inserts a brand-new product at version 0
	Create(ctx context.Context, product *domain.Product) error

	// Save writes the product if its Version still matches the stored one and
	// advances Version. Returns domain.ErrVersionConflict otherwise.
	Save(ctx context.Context, product *domain.Product) error
}

type CartRepository interface {
	// GetByUserID returns domain.ErrCartNotFound when the user has no cart
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)

	Create(ctx context.Context, cart *domain.Cart) error

	// Save replaces the cart's items under the same version check as products
	Save(ctx context.Context, cart *domain.Cart) error
}
