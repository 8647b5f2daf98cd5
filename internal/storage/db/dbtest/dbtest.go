// Package dbtest provides a migrated, empty PostgreSQL database for
// integration tests. Tests are skipped unless TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
)

// EnvDatabaseURL names the variable holding the test database connection string.
const EnvDatabaseURL = "TEST_DATABASE_URL"

// advisoryLockKey serializes test packages sharing the database, since each
// test truncates every table.
const advisoryLockKey = 7_340_101

// NewPool connects to the test database, applies migrations and truncates all
// tables. The database stays reserved for the calling test until it ends.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if dsn == "" {
		t.Skipf("skip integration test: %s is not set", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test (db connect init): %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test (db ping): %v", err)
	}

	lockConn, err := pool.Acquire(ctx)
	require.NoError(t, err)

	_, err = lockConn.Exec(context.Background(), "SELECT pg_advisory_lock($1)", advisoryLockKey)
	require.NoError(t, err)

	t.Cleanup(func() {
		//nolint:errcheck
		lockConn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
		lockConn.Release()
		pool.Close()
	})

	require.NoError(t, db.Migrate(ctx, pool))

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE returning_records, borrowing_records, products, outbox_messages
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)

	return pool
}

// SeedProduct inserts a product and returns its id.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, name string, stock int64) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(),
		"INSERT INTO products (product_name, current_stock) VALUES ($1, $2) RETURNING product_id",
		name, stock,
	).Scan(&id)
	require.NoError(t, err)

	return id
}

// ProductStock reads the current stock of a product.
func ProductStock(t *testing.T, pool *pgxpool.Pool, productID int64) int64 {
	t.Helper()

	var stock int64
	err := pool.QueryRow(context.Background(),
		"SELECT current_stock FROM products WHERE product_id = $1", productID,
	).Scan(&stock)
	require.NoError(t, err)

	return stock
}
