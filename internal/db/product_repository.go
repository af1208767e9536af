package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(database *PostgresDB) *ProductRepository {
	return &ProductRepository{db: database.Conn}
}

const productColumns = "id, name, price_amount, price_currency, stock_quantity, version"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p        domain.Product
		amount   decimal.Decimal
		currency string
		quantity int
	)
	if err := row.Scan(&p.ID, &p.Name, &amount, &currency, &quantity, &p.Version); err != nil {
		return nil, err
	}

	price, err := domain.NewMoney(amount, currency)
	if err != nil {
		return nil, fmt.Errorf("corrupt price for product %s: %w", p.ID, err)
	}
	stock, err := domain.NewStock(quantity)
	if err != nil {
		return nil, fmt.Errorf("corrupt stock for product %s: %w", p.ID, err)
	}
	p.Price = price
	p.Stock = stock
	return &p, nil
}

// List returns all products
func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return products, nil
}

// GetByID returns a single product
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// GetByIDForUpdate takes no row lock; Save's version predicate decides the winner.
func (r *ProductRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return r.GetByID(ctx, id)
}

// Create inserts a new product
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (id, name, price_amount, price_currency, stock_quantity, version)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Price.Amount(), p.Price.Currency(), p.Stock.Quantity(), p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Save writes the product only if nobody committed since it was read.
func (r *ProductRepository) Save(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products
		SET name = $1, price_amount = $2, price_currency = $3, stock_quantity = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		p.Name, p.Price.Amount(), p.Price.Currency(), p.Stock.Quantity(), p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return r.missOrConflict(ctx, p.ID)
	}

	p.Version++
	return nil
}

func (r *ProductRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check product: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return domain.ErrVersionConflict
}
