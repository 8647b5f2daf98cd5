package model

import (
	"fmt"
	"time"
)

// BorrowStatus is the lifecycle state of a borrow record. It only ever moves
// from BorrowStatusOpen to BorrowStatusReturned.
type BorrowStatus string

const (
	BorrowStatusOpen     BorrowStatus = "open"
	BorrowStatusReturned BorrowStatus = "returned"
)

func (s BorrowStatus) Validate() error {
	switch s {
	case BorrowStatusOpen, BorrowStatusReturned:
		return nil
	default:
		return fmt.Errorf("invalid borrow status: %q", string(s))
	}
}

type BorrowRecord struct {
	ID               int64        `json:"borrow_id" db:"borrow_id"`
	ProductID        int64        `json:"product_id" db:"product_id"`
	UserID           int64        `json:"user_id" db:"user_id"`
	QuantityBorrowed int64        `json:"quantity_borrowed" db:"quantity_borrowed"`
	Status           BorrowStatus `json:"status" db:"status"`
	BorrowedAt       time.Time    `json:"borrowed_at" db:"borrowed_at"`
}

type ReturnRecord struct {
	ID               int64     `json:"return_id" db:"return_id"`
	BorrowID         int64     `json:"borrow_id" db:"borrow_id"`
	QuantityReturned int64     `json:"quantity_returned" db:"quantity_returned"`
	ReturnedByUserID int64     `json:"returned_by_user_id" db:"returned_by_user_id"`
	ReturnedAt       time.Time `json:"returned_at" db:"returned_at"`
}
