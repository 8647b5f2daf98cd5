package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tuanvumaihuynh/stock-ledger/internal/apperr"
	"github.com/tuanvumaihuynh/stock-ledger/internal/event"
	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
	"github.com/tuanvumaihuynh/stock-ledger/internal/repository"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/outbox"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/validator"
)

// BorrowParams carries json names so validation errors point at request fields.
type BorrowParams struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	UserID    int64 `json:"userId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type ReturnParams struct {
	BorrowID         int64 `json:"borrowId" validate:"required,gt=0"`
	QuantityReturned int64 `json:"quantityReturned" validate:"required,gt=0"`
}

type ReturnResult struct {
	BorrowID      int64
	ProductID     int64
	CurrentStock  int64
	FullyReturned bool
}

// LedgerService is the only writer of product stock and borrow record status.
type LedgerService interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	Borrow(ctx context.Context, params BorrowParams) (model.BorrowRecord, error)
	Return(ctx context.Context, params ReturnParams) (ReturnResult, error)
}

type ledgerService struct {
	db               db.DB
	validator        validator.Validator
	productRepo      repository.ProductRepository
	borrowRecordRepo repository.BorrowRecordRepository
	returnRecordRepo repository.ReturnRecordRepository
	outboxMsgRepo    repository.OutboxMsgRepository
}

func NewLedgerService(
	db db.DB,
	validator validator.Validator,
	productRepo repository.ProductRepository,
	borrowRecordRepo repository.BorrowRecordRepository,
	returnRecordRepo repository.ReturnRecordRepository,
	outboxMsgRepo repository.OutboxMsgRepository,
) LedgerService {
	return &ledgerService{
		db:               db,
		validator:        validator,
		productRepo:      productRepo,
		borrowRecordRepo: borrowRecordRepo,
		returnRecordRepo: returnRecordRepo,
		outboxMsgRepo:    outboxMsgRepo,
	}
}

func (s *ledgerService) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.productRepo.ListAllProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("product repository list all products: %w", err)
	}

	return products, nil
}

func (s *ledgerService) Borrow(ctx context.Context, params BorrowParams) (model.BorrowRecord, error) {
	if err := s.validator.Validate(params); err != nil {
		return model.BorrowRecord{}, apperr.ValidationErr.WrapParent(err)
	}

	var record model.BorrowRecord
	if err := s.db.WithTx(ctx, func(db db.DB) error {
		product, err := s.productRepo.
			WithDB(db).
			GetProductForUpdate(ctx, params.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ProductNotFoundErr
		}
		if err != nil {
			return fmt.Errorf("product repository get product for update: %w", err)
		}

		if product.CurrentStock < params.Quantity {
			return apperr.InsufficientStockErr
		}

		remaining, err := s.productRepo.
			WithDB(db).
			AdjustStock(ctx, product.ID, -params.Quantity)
		if err != nil {
			return fmt.Errorf("product repository adjust stock: %w", err)
		}

		record, err = s.borrowRecordRepo.
			WithDB(db).
			CreateBorrowRecord(ctx, repository.CreateBorrowRecordParams{
				ProductID: product.ID,
				UserID:    params.UserID,
				Quantity:  params.Quantity,
			})
		if err != nil {
			return fmt.Errorf("borrow record repository create borrow record: %w", err)
		}

		ev := event.StockBorrowedEvent{
			BorrowID:       record.ID,
			ProductID:      record.ProductID,
			UserID:         record.UserID,
			Quantity:       record.QuantityBorrowed,
			RemainingStock: remaining,
		}
		if err := s.enqueue(ctx, db, event.TopicStockBorrowed, record.ProductID, ev); err != nil {
			return err
		}

		return nil
	}); err != nil {
		return model.BorrowRecord{}, fmt.Errorf("db with tx: %w", err)
	}

	return record, nil
}

func (s *ledgerService) Return(ctx context.Context, params ReturnParams) (ReturnResult, error) {
	if err := s.validator.Validate(params); err != nil {
		return ReturnResult{}, apperr.ValidationErr.WrapParent(err)
	}

	var result ReturnResult
	if err := s.db.WithTx(ctx, func(db db.DB) error {
		record, err := s.borrowRecordRepo.
			WithDB(db).
			GetBorrowRecordForUpdate(ctx, params.BorrowID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.BorrowRecordNotFoundErr
		}
		if err != nil {
			return fmt.Errorf("borrow record repository get borrow record for update: %w", err)
		}

		if record.Status == model.BorrowStatusReturned {
			return apperr.AlreadyReturnedErr
		}

		// Checked against the original quantity, not what is still outstanding.
		if params.QuantityReturned > record.QuantityBorrowed {
			return apperr.OverReturnErr
		}

		stock, err := s.productRepo.
			WithDB(db).
			AdjustStock(ctx, record.ProductID, params.QuantityReturned)
		if err != nil {
			return fmt.Errorf("product repository adjust stock: %w", err)
		}

		// The returner is assumed to be the borrower.
		if _, err := s.returnRecordRepo.
			WithDB(db).
			CreateReturnRecord(ctx, repository.CreateReturnRecordParams{
				BorrowID:         record.ID,
				QuantityReturned: params.QuantityReturned,
				ReturnedByUserID: record.UserID,
			}); err != nil {
			return fmt.Errorf("return record repository create return record: %w", err)
		}

		// Partial returns are not accumulated: only a single return of the full
		// borrowed quantity closes the record.
		fullyReturned := params.QuantityReturned == record.QuantityBorrowed
		if fullyReturned {
			if err := s.borrowRecordRepo.
				WithDB(db).
				MarkReturned(ctx, record.ID); err != nil {
				return fmt.Errorf("borrow record repository mark returned: %w", err)
			}
		}

		status := model.BorrowStatusOpen
		if fullyReturned {
			status = model.BorrowStatusReturned
		}

		ev := event.StockReturnedEvent{
			BorrowID:         record.ID,
			ProductID:        record.ProductID,
			UserID:           record.UserID,
			QuantityReturned: params.QuantityReturned,
			CurrentStock:     stock,
			FullyReturned:    fullyReturned,
			Status:           status,
		}
		if err := s.enqueue(ctx, db, event.TopicStockReturned, record.ProductID, ev); err != nil {
			return err
		}

		result = ReturnResult{
			BorrowID:      record.ID,
			ProductID:     record.ProductID,
			CurrentStock:  stock,
			FullyReturned: fullyReturned,
		}

		return nil
	}); err != nil {
		return ReturnResult{}, fmt.Errorf("db with tx: %w", err)
	}

	return result, nil
}

// enqueue writes ev to the outbox inside the caller's transaction, keyed by
// product so consumers see one product's events in order.
func (s *ledgerService) enqueue(ctx context.Context, db db.DB, topic string, productID int64, ev any) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	partitionKey := strconv.FormatInt(productID, 10)
	if err := s.outboxMsgRepo.
		WithDB(db).
		CreateOutboxMsg(ctx, repository.CreateOutboxMsgParams{
			Topic:        topic,
			Headers:      outbox.BuildHeaders(ctx),
			Payload:      payload,
			PartitionKey: &partitionKey,
		}); err != nil {
		return fmt.Errorf("outbox msg repository create outbox msg: %w", err)
	}

	return nil
}
