package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/port"
)

// ProductCache is the part of cache.RedisCache the decorator uses.
type ProductCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
	SetVersioned(ctx context.Context, key string, version int64, value any) (bool, error)
	Invalidate(ctx context.Context, key string, version int64) error
}

// CachedProductRepository serves GetByID and List from the cache. Writes go
// straight to the wrapped repository and then invalidate. A product fill
// older than the last invalidated version is dropped, so a read that raced a
// write cannot park a stale snapshot in the cache.
type CachedProductRepository struct {
	repo   port.ProductRepository
	cache  ProductCache
	logger *zap.Logger
}

func NewCachedProductRepository(repo port.ProductRepository, cache ProductCache, logger *zap.Logger) *CachedProductRepository {
	return &CachedProductRepository{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// Cache key helpers
func productKey(id uuid.UUID) string {
	return fmt.Sprintf("product:%s", id)
}

func allProductsKey() string {
	return "products:all"
}

// List returns all products (with caching)
func (r *CachedProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	cacheKey := allProductsKey()

	var products []*domain.Product
	err := r.cache.Get(ctx, cacheKey, &products)
	if err == nil {
		r.logger.Debug("📦 Cache HIT: all products")
		return products, nil
	}
	r.logMiss(err, cacheKey)

	products, err = r.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, cacheKey, products); err != nil {
		r.logger.Warn("⚠️ Failed to cache products", zap.Error(err))
	}
	return products, nil
}

// GetByID returns a single product (with caching)
func (r *CachedProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	cacheKey := productKey(id)

	var product domain.Product
	err := r.cache.Get(ctx, cacheKey, &product)
	if err == nil {
		r.logger.Debug("📦 Cache HIT", zap.String("key", cacheKey))
		return &product, nil
	}
	r.logMiss(err, cacheKey)

	p, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stored, err := r.cache.SetVersioned(ctx, cacheKey, p.Version, p)
	if err != nil {
		r.logger.Warn("⚠️ Failed to cache product", zap.String("key", cacheKey), zap.Error(err))
	} else if !stored {
		r.logger.Debug("⏭️ Skipped stale cache fill", zap.String("key", cacheKey), zap.Int64("version", p.Version))
	}
	return p, nil
}

// GetByIDForUpdate always reads the database; a stale cached version would
// only lose the version check.
func (r *CachedProductRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.repo.GetByIDForUpdate(ctx, id)
}

// Create inserts a new product and invalidates the list cache
func (r *CachedProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if err := r.repo.Create(ctx, p); err != nil {
		return err
	}
	r.invalidate(ctx, allProductsKey())
	return nil
}

// Save writes through and invalidates both the product and the list
func (r *CachedProductRepository) Save(ctx context.Context, p *domain.Product) error {
	if err := r.repo.Save(ctx, p); err != nil {
		return err
	}
	key := productKey(p.ID)
	if err := r.cache.Invalidate(ctx, key, p.Version); err != nil {
		r.logger.Warn("⚠️ Failed to invalidate cache", zap.String("key", key), zap.Error(err))
	}
	r.invalidate(ctx, allProductsKey())
	return nil
}

func (r *CachedProductRepository) invalidate(ctx context.Context, keys ...string) {
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn("⚠️ Failed to invalidate cache", zap.Strings("keys", keys), zap.Error(err))
		return
	}
	r.logger.Debug("🗑️ Cache invalidated", zap.Strings("keys", keys))
}

func (r *CachedProductRepository) logMiss(err error, key string) {
	if !cache.IsMiss(err) {
		r.logger.Warn("⚠️ Cache error", zap.String("key", key), zap.Error(err))
		return
	}
	r.logger.Debug("💾 Cache MISS", zap.String("key", key))
}
