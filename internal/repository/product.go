package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
)

const tableProducts = "products"

var productColumns = []any{"product_id", "product_name", "current_stock"}

type ProductRepository interface {
	WithDB(db db.DB) ProductRepository
	ListAllProducts(ctx context.Context) ([]model.Product, error)
	// GetProductForUpdate reads a product and holds its row lock until the
	// surrounding transaction ends. Returns ErrNotFound when absent.
	GetProductForUpdate(ctx context.Context, productID int64) (model.Product, error)
	// AdjustStock adds delta to current_stock and returns the new value.
	AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error)
}

type productRepository struct {
	db db.DB
}

func NewProductRepository(db db.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r productRepository) WithDB(db db.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r productRepository) ListAllProducts(ctx context.Context) ([]model.Product, error) {
	query, args, err := build(dialect.
		From(tableProducts).
		Prepared(true).
		Select(productColumns...).
		Order(goqu.C("product_name").Asc()))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}

	products, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Product])
	if err != nil {
		return nil, fmt.Errorf("collect products: %w", err)
	}

	return products, nil
}

func (r productRepository) GetProductForUpdate(ctx context.Context, productID int64) (model.Product, error) {
	query, args, err := build(dialect.
		From(tableProducts).
		Prepared(true).
		Select(productColumns...).
		Where(goqu.C("product_id").Eq(productID)).
		ForUpdate(exp.Wait))
	if err != nil {
		return model.Product{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Product{}, fmt.Errorf("query product for update: %w", err)
	}

	product, err := collectOne[model.Product](rows)
	if err != nil {
		return model.Product{}, fmt.Errorf("collect product %d: %w", productID, err)
	}

	return product, nil
}

func (r productRepository) AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error) {
	query, args, err := build(dialect.
		Update(tableProducts).
		Prepared(true).
		Set(goqu.Record{"current_stock": goqu.L("current_stock + ?", delta)}).
		Where(goqu.C("product_id").Eq(productID)).
		Returning("current_stock"))
	if err != nil {
		return 0, err
	}

	var stock int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("adjust stock of product %d: %w", productID, ErrNotFound)
		}
		return 0, fmt.Errorf("adjust stock of product %d: %w", productID, err)
	}

	return stock, nil
}
