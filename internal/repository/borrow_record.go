package repository

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
)

const tableBorrowingRecords = "borrowing_records"

var borrowRecordColumns = []any{
	"borrow_id", "product_id", "user_id", "quantity_borrowed", "status", "borrowed_at",
}

type CreateBorrowRecordParams struct {
	ProductID int64
	UserID    int64
	Quantity  int64
}

type BorrowRecordRepository interface {
	WithDB(db db.DB) BorrowRecordRepository
	CreateBorrowRecord(ctx context.Context, params CreateBorrowRecordParams) (model.BorrowRecord, error)
	// GetBorrowRecordForUpdate reads a borrow record and holds its row lock until
	// the surrounding transaction ends. Returns ErrNotFound when absent.
	GetBorrowRecordForUpdate(ctx context.Context, borrowID int64) (model.BorrowRecord, error)
	// MarkReturned moves an open record to returned. It fails if the record is
	// not open, so the transition happens at most once.
	MarkReturned(ctx context.Context, borrowID int64) error
}

type borrowRecordRepository struct {
	db db.DB
}

func NewBorrowRecordRepository(db db.DB) BorrowRecordRepository {
	return &borrowRecordRepository{db: db}
}

func (r borrowRecordRepository) WithDB(db db.DB) BorrowRecordRepository {
	return &borrowRecordRepository{db: db}
}

func (r borrowRecordRepository) CreateBorrowRecord(ctx context.Context, params CreateBorrowRecordParams) (model.BorrowRecord, error) {
	query, args, err := build(dialect.
		Insert(tableBorrowingRecords).
		Prepared(true).
		Rows(goqu.Record{
			"product_id":        params.ProductID,
			"user_id":           params.UserID,
			"quantity_borrowed": params.Quantity,
			"status":            string(model.BorrowStatusOpen),
		}).
		Returning(borrowRecordColumns...))
	if err != nil {
		return model.BorrowRecord{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("insert borrow record: %w", err)
	}

	record, err := collectOne[model.BorrowRecord](rows)
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("collect borrow record: %w", err)
	}

	return record, nil
}

func (r borrowRecordRepository) GetBorrowRecordForUpdate(ctx context.Context, borrowID int64) (model.BorrowRecord, error) {
	query, args, err := build(dialect.
		From(tableBorrowingRecords).
		Prepared(true).
		Select(borrowRecordColumns...).
		Where(goqu.C("borrow_id").Eq(borrowID)).
		ForUpdate(exp.Wait))
	if err != nil {
		return model.BorrowRecord{}, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("query borrow record for update: %w", err)
	}

	record, err := collectOne[model.BorrowRecord](rows)
	if err != nil {
		return model.BorrowRecord{}, fmt.Errorf("collect borrow record %d: %w", borrowID, err)
	}

	return record, nil
}

func (r borrowRecordRepository) MarkReturned(ctx context.Context, borrowID int64) error {
	query, args, err := build(dialect.
		Update(tableBorrowingRecords).
		Prepared(true).
		Set(goqu.Record{"status": string(model.BorrowStatusReturned)}).
		Where(
			goqu.C("borrow_id").Eq(borrowID),
			goqu.C("status").Eq(string(model.BorrowStatusOpen)),
		))
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update borrow record status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("mark borrow record %d returned: %w", borrowID, ErrNotFound)
	}

	return nil
}
