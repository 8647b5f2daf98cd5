package repository

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
)

const tableReturningRecords = "returning_records"

type CreateReturnRecordParams struct {
	BorrowID         int64
	QuantityReturned int64
	ReturnedByUserID int64
}

type ReturnRecordRepository interface {
	WithDB(db db.DB) ReturnRecordRepository
	CreateReturnRecord(ctx context.Context, params CreateReturnRecordParams) (model.ReturnRecord, error)
	ListReturnRecords(ctx context.Context, borrowID int64) ([]model.ReturnRecord, error)
}

type returnRecordRepository struct {
	db db.DB
}

func NewReturnRecordRepository(db db.DB) ReturnRecordRepository {
	return &returnRecordRepository{db: db}
}

func (r returnRecordRepository) WithDB(db db.DB) ReturnRecordRepository {
	return &returnRecordRepository{db: db}
}

var returnRecordColumns = []any{
	"return_id", "borrow_id", "quantity_returned", "returned_by_user_id", "returned_at",
}

func (r returnRecordRepository) CreateReturnRecord(ctx context.Context, params CreateReturnRecordParams) (model.ReturnRecord, error) {
	query, args, err := build(dialect.
		Insert(tableReturningRecords).
		Prepared(true).
		Rows(goqu.Record{
			"borrow_id":           params.BorrowID,
			"quantity_returned":   params.QuantityReturned,
			"returned_by_user_id": params.ReturnedByUserID,
		}).
		Returning(returnRecordColumns...))
	if err != nil {
		return model.ReturnRecord{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.ReturnRecord{}, fmt.Errorf("insert return record: %w", err)
	}

	record, err := collectOne[model.ReturnRecord](rows)
	if err != nil {
		return model.ReturnRecord{}, fmt.Errorf("collect return record: %w", err)
	}

	return record, nil
}

func (r returnRecordRepository) ListReturnRecords(ctx context.Context, borrowID int64) ([]model.ReturnRecord, error) {
	query, args, err := build(dialect.
		From(tableReturningRecords).
		Prepared(true).
		Select(returnRecordColumns...).
		Where(goqu.C("borrow_id").Eq(borrowID)).
		Order(goqu.C("return_id").Asc()))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query return records: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ReturnRecord])
	if err != nil {
		return nil, fmt.Errorf("collect return records: %w", err)
	}

	return records, nil
}
