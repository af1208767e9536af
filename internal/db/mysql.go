package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

//go:embed schema_mysql.sql
var mysqlSchema string

type MySQLDB struct {
	Conn *sql.DB
}

func NewMySQLDB(dsn string, logger *zap.Logger) (*MySQLDB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	conn, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetConnMaxLifetime(3 * time.Minute)
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(10)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("✅ Connected to MySQL", zap.String("addr", cfg.Addr), zap.String("db", cfg.DBName))
	return &MySQLDB{Conn: conn}, nil
}

// Migrate creates the cart tables if they are missing. The driver runs one
// statement per Exec, so the schema is split on ';'.
func (db *MySQLDB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(mysqlSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate mysql schema: %w", err)
		}
	}
	return nil
}

func (db *MySQLDB) Close() error {
	return db.Conn.Close()
}
