package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/models"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/port"
)

// ProductCatalog answers product questions for the cart side. In production
// it is the request/reply client on product_queue.
type ProductCatalog interface {
	GetProductDetailsWithStock(ctx context.Context, productID uuid.UUID, requiredQuantity int) (*models.ProductDetailsWithStock, error)
}

// EventRelay forwards drained domain events. It absorbs its own failures.
type EventRelay interface {
	Relay(ctx context.Context, events []domain.Event)
}

type AddItemCommand struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
}

type UpdateItemQuantityCommand struct {
	UserID      uuid.UUID
	ProductID   uuid.UUID
	NewQuantity int
}

type CartService struct {
	carts   port.CartRepository
	catalog ProductCatalog
	relay   EventRelay
	logger  *zap.Logger
}

func NewCartService(carts port.CartRepository, catalog ProductCatalog, relay EventRelay, logger *zap.Logger) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		relay:   relay,
		logger:  logger,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return s.carts.GetByUserID(ctx, userID)
}

// AddItem checks the catalog, merges the item into the user's cart, persists
// it and only then relays the recorded events.
func (s *CartService) AddItem(ctx context.Context, cmd AddItemCommand) (*domain.Cart, error) {
	if cmd.Quantity <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, cmd.Quantity)
	}

	details, err := s.catalog.GetProductDetailsWithStock(ctx, cmd.ProductID, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	if !details.HasStock {
		return nil, fmt.Errorf("%w: product %s has %d, requested %d",
			domain.ErrInsufficientStock, cmd.ProductID, details.AvailableQuantity, cmd.Quantity)
	}

	amount, err := details.Product.Price()
	if err != nil {
		return nil, fmt.Errorf("failed to parse product price: %w", err)
	}
	price, err := domain.NewMoney(amount, domain.DefaultCurrency)
	if err != nil {
		return nil, err
	}

	cart, err := s.loadOrCreate(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if _, err := cart.AddItem(cmd.ProductID, details.Product.Name, price, cmd.Quantity); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}

	s.drain(ctx, cart)
	return cart, nil
}

func (s *CartService) UpdateItemQuantity(ctx context.Context, cmd UpdateItemQuantityCommand) (*domain.Cart, error) {
	if cmd.NewQuantity < 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidQuantity, cmd.NewQuantity)
	}

	cart, err := s.carts.GetByUserID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	event, err := cart.UpdateItemQuantity(cmd.ProductID, cmd.NewQuantity)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return cart, nil
	}

	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}

	s.drain(ctx, cart)
	return cart, nil
}

func (s *CartService) loadOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.carts.GetByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrCartNotFound) {
		return nil, err
	}

	cart = domain.NewCart(userID)
	err = s.carts.Create(ctx, cart)
	if errors.Is(err, domain.ErrCartExists) {
		s.logger.Info("🛒 Cart created concurrently, reloading", zap.String("user_id", userID.String()))
		return s.carts.GetByUserID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("🛒 Cart created", zap.String("cart_id", cart.ID.String()), zap.String("user_id", userID.String()))
	return cart, nil
}

// drain relays the pending events and clears them. It runs strictly after
// the save, so a crash in between loses the events.
func (s *CartService) drain(ctx context.Context, cart *domain.Cart) {
	events := cart.DomainEvents()
	if len(events) > 0 {
		s.relay.Relay(ctx, events)
	}
	cart.ClearDomainEvents()
}
