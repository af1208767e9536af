package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/port"
)

const tracerName = "github.com/prudhivi99/Distributed-Systems/stocksync/internal/service"

type CreateProductInput struct {
	Name         string
	Amount       decimal.Decimal
	Currency     string
	InitialStock int
}

// UpdateProductInput leaves a field untouched when it is nil.
type UpdateProductInput struct {
	Name        *string
	PriceAmount *decimal.Decimal
	Currency    string
}

type StockCheck struct {
	HasStock          bool
	AvailableQuantity int
}

type ProductService struct {
	repo   port.ProductRepository
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewProductService(repo port.ProductRepository, policy RetryPolicy, logger *zap.Logger) *ProductService {
	return &ProductService{
		repo:   repo,
		policy: policy.withDefaults(),
		logger: logger,
		sleep:  sleepContext,
	}
}

func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	currency := in.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	price, err := domain.NewMoney(in.Amount, currency)
	if err != nil {
		return nil, err
	}
	stock, err := domain.NewStock(in.InitialStock)
	if err != nil {
		return nil, err
	}
	product, err := domain.NewProduct(in.Name, price, stock)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("✅ Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("name", product.Name),
		zap.Int("stock", product.Stock.Quantity()),
	)
	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ProductService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.List(ctx)
}

// CheckStock is a pure read; it never mutates the product. It reads past
// the product cache so availability reflects the last committed reservation.
func (s *ProductService) CheckStock(ctx context.Context, id uuid.UUID, quantity int) (StockCheck, error) {
	product, err := s.repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		return StockCheck{}, err
	}
	return StockCheck{
		HasStock:          product.Stock.IsAvailable(quantity),
		AvailableQuantity: product.Stock.Quantity(),
	}, nil
}

// ReserveStock decrements stock under optimistic locking. Only version
// conflicts are retried; insufficient stock and unknown products fail on the
// first attempt. Exhaustion yields *domain.StockReservationError.
func (s *ProductService) ReserveStock(ctx context.Context, id uuid.UUID, quantity int) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "product.reserve_stock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", id.String()),
		attribute.Int("reservation.quantity", quantity),
	)

	product, attempts, err := s.mutateWithRetry(ctx, id, "reserve", func(p *domain.Product) error {
		return p.DecrementStock(quantity)
	})
	span.SetAttributes(attribute.Int("reservation.attempts", attempts))

	if errors.Is(err, domain.ErrVersionConflict) {
		err = &domain.StockReservationError{ProductID: id, Attempts: attempts}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.logger.Info("✅ Stock reserved",
		zap.String("product_id", id.String()),
		zap.Int("quantity", quantity),
		zap.Int("remaining", product.Stock.Quantity()),
		zap.Int64("version", product.Version),
		zap.Int("attempts", attempts),
	)
	return nil
}

func (s *ProductService) RestockProduct(ctx context.Context, id uuid.UUID, quantity int) (*domain.Product, error) {
	product, attempts, err := s.mutateWithRetry(ctx, id, "restock", func(p *domain.Product) error {
		return p.IncrementStock(quantity)
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return nil, fmt.Errorf("failed to restock product %s after %d attempts: %w", id, attempts, err)
	}
	return product, err
}

func (s *ProductService) UpdateProduct(ctx context.Context, id uuid.UUID, in UpdateProductInput) (*domain.Product, error) {
	product, attempts, err := s.mutateWithRetry(ctx, id, "update", func(p *domain.Product) error {
		if in.Name != nil {
			if err := p.UpdateName(*in.Name); err != nil {
				return err
			}
		}
		if in.PriceAmount != nil {
			currency := in.Currency
			if currency == "" {
				currency = p.Price.Currency()
			}
			price, err := domain.NewMoney(*in.PriceAmount, currency)
			if err != nil {
				return err
			}
			if err := p.UpdatePrice(price); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return nil, fmt.Errorf("failed to update product %s after %d attempts: %w", id, attempts, err)
	}
	return product, err
}

// mutateWithRetry runs load -> mutate -> save until the save wins the version
// check or the policy runs out of attempts. Every attempt re-reads, so a
// retry sees the competing writer's committed state.
func (s *ProductService) mutateWithRetry(ctx context.Context, id uuid.UUID, op string, mutate func(*domain.Product) error) (*domain.Product, int, error) {
	b := s.policy.newBackOff()

	for attempt := 1; ; attempt++ {
		product, err := s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, attempt, err
		}
		if err := mutate(product); err != nil {
			return nil, attempt, err
		}

		err = s.repo.Save(ctx, product)
		if err == nil {
			return product, attempt, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, attempt, err
		}

		if attempt >= s.policy.MaxAttempts {
			s.logger.Error("❌ Version conflict, giving up",
				zap.String("op", op),
				zap.String("product_id", id.String()),
				zap.Int("attempts", attempt),
			)
			return nil, attempt, err
		}

		delay := b.NextBackOff()
		s.logger.Warn("⚠️ Version conflict, retrying",
			zap.String("op", op),
			zap.String("product_id", id.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}
