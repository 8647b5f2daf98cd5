package event

import (
	"context"
	"log/slog"

	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
)

const (
	TopicStockBorrowed = "stock.borrowed"
	TopicStockReturned = "stock.returned"
)

// StockBorrowedEvent is published after a borrow commits.
type StockBorrowedEvent struct {
	BorrowID       int64 `json:"borrow_id" validate:"required,gt=0"`
	ProductID      int64 `json:"product_id" validate:"required,gt=0"`
	UserID         int64 `json:"user_id" validate:"required,gt=0"`
	Quantity       int64 `json:"quantity" validate:"required,gt=0"`
	RemainingStock int64 `json:"remaining_stock" validate:"gte=0"`
}

// StockReturnedEvent is published after a return commits. Status is the
// borrow record's status once the return is applied.
type StockReturnedEvent struct {
	BorrowID         int64              `json:"borrow_id" validate:"required,gt=0"`
	ProductID        int64              `json:"product_id" validate:"required,gt=0"`
	UserID           int64              `json:"user_id" validate:"required,gt=0"`
	QuantityReturned int64              `json:"quantity_returned" validate:"required,gt=0"`
	CurrentStock     int64              `json:"current_stock" validate:"gte=0"`
	FullyReturned    bool               `json:"fully_returned"`
	Status           model.BorrowStatus `json:"status" validate:"required,enum"`
}

func (s *Service) handleStockBorrowedEvent(ctx context.Context, ev StockBorrowedEvent) error {
	s.logger.InfoContext(ctx, "handling stock borrowed event",
		slog.Int64("borrow_id", ev.BorrowID),
		slog.Int64("product_id", ev.ProductID),
		slog.Int64("quantity", ev.Quantity),
	)

	if ev.RemainingStock == 0 {
		s.logger.WarnContext(ctx, "product is out of stock", slog.Int64("product_id", ev.ProductID))
	}

	return nil
}

func (s *Service) handleStockReturnedEvent(ctx context.Context, ev StockReturnedEvent) error {
	s.logger.InfoContext(ctx, "handling stock returned event",
		slog.Int64("borrow_id", ev.BorrowID),
		slog.Int64("product_id", ev.ProductID),
		slog.Int64("quantity_returned", ev.QuantityReturned),
		slog.Bool("fully_returned", ev.FullyReturned),
		slog.String("status", string(ev.Status)),
	)

	return nil
}
