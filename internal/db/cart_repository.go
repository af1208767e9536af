package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prudhivi99/Distributed-Systems/stocksync/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(database *MySQLDB) *CartRepository {
	return &CartRepository{db: database.Conn}
}

// GetByUserID loads the cart with its items in insertion order
func (r *CartRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	var c domain.Cart
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, version FROM carts WHERE user_id = ?", userID,
	).Scan(&c.ID, &c.UserID, &c.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", domain.ErrCartNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, price_amount, price_currency, quantity
		FROM cart_items WHERE cart_id = ? ORDER BY position`, c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item     domain.CartItem
			amount   decimal.Decimal
			currency string
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &amount, &currency, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		if item.Price, err = domain.NewMoney(amount, currency); err != nil {
			return nil, fmt.Errorf("corrupt price for cart item %s: %w", item.ID, err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart items: %w", err)
	}

	return &c, nil
}

// Create inserts an empty cart
func (r *CartRepository) Create(ctx context.Context, c *domain.Cart) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO carts (id, user_id, version) VALUES (?, ?, ?)",
		c.ID, c.UserID, c.Version,
	)
	if isDuplicateKey(err) {
		return fmt.Errorf("user %s: %w", c.UserID, domain.ErrCartExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

// ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// Save bumps the cart version and rewrites its items in one transaction.
func (r *CartRepository) Save(ctx context.Context, c *domain.Cart) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE carts SET version = version + 1 WHERE id = ? AND version = ?",
		c.ID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = ?", c.ID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	for i, item := range c.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (id, cart_id, position, product_id, product_name, price_amount, price_currency, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, c.ID, i, item.ProductID, item.ProductName,
			item.Price.Amount(), item.Price.Currency(), item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cart: %w", err)
	}
	c.Version++
	return nil
}
