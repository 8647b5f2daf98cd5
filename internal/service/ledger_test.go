package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/stock-ledger/internal/apperr"
	"github.com/tuanvumaihuynh/stock-ledger/internal/event"
	"github.com/tuanvumaihuynh/stock-ledger/internal/model"
	"github.com/tuanvumaihuynh/stock-ledger/internal/service"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/validator"
)

func newLedger(t *testing.T, store *memStore) service.LedgerService {
	t.Helper()

	v, err := validator.NewDefaultValidator()
	require.NoError(t, err)

	return service.NewLedgerService(
		&memDB{store: store},
		v,
		memProductRepo{store: store},
		memBorrowRecordRepo{store: store},
		memReturnRecordRepo{store: store},
		memOutboxMsgRepo{store: store},
	)
}

func TestLedgerBorrowReturnSequence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(model.Product{ID: 1, Name: "Projector", CurrentStock: 5})
	ledger := newLedger(t, store)

	record, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 7, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.ID)
	assert.Equal(t, int64(1), record.ProductID)
	assert.Equal(t, int64(7), record.UserID)
	assert.Equal(t, int64(3), record.QuantityBorrowed)
	assert.Equal(t, model.BorrowStatusOpen, record.Status)
	assert.Equal(t, int64(2), store.product(1).CurrentStock)

	_, err = ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 8, Quantity: 3})
	require.ErrorIs(t, err, apperr.InsufficientStockErr)
	assert.Equal(t, int64(2), store.product(1).CurrentStock)

	result, err := ledger.Return(ctx, service.ReturnParams{BorrowID: record.ID, QuantityReturned: 3})
	require.NoError(t, err)
	assert.True(t, result.FullyReturned)
	assert.Equal(t, int64(5), result.CurrentStock)
	assert.Equal(t, int64(5), store.product(1).CurrentStock)
	assert.Equal(t, model.BorrowStatusReturned, store.borrow(record.ID).Status)

	state := store.state()
	require.Len(t, state.returns, 1)
	assert.Equal(t, int64(7), state.returns[0].ReturnedByUserID)

	_, err = ledger.Return(ctx, service.ReturnParams{BorrowID: record.ID, QuantityReturned: 1})
	require.ErrorIs(t, err, apperr.AlreadyReturnedErr)
	assert.Equal(t, int64(5), store.product(1).CurrentStock)
}

func TestLedgerBorrow(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown product", func(t *testing.T) {
		store := newMemStore()
		ledger := newLedger(t, store)

		_, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 42, UserID: 1, Quantity: 1})
		require.ErrorIs(t, err, apperr.ProductNotFoundErr)
		assert.Empty(t, store.state().borrows)
	})

	t.Run("exact stock drains to zero", func(t *testing.T) {
		store := newMemStore(model.Product{ID: 1, Name: "Drill", CurrentStock: 4})
		ledger := newLedger(t, store)

		_, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 1, Quantity: 4})
		require.NoError(t, err)
		assert.Zero(t, store.product(1).CurrentStock)

		_, err = ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 2, Quantity: 1})
		require.ErrorIs(t, err, apperr.InsufficientStockErr)
	})

	t.Run("writes outbox event in the same transaction", func(t *testing.T) {
		store := newMemStore(model.Product{ID: 3, Name: "Tripod", CurrentStock: 2})
		ledger := newLedger(t, store)

		record, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 3, UserID: 9, Quantity: 2})
		require.NoError(t, err)

		state := store.state()
		require.Len(t, state.outbox, 1)
		msg := state.outbox[0]
		assert.Equal(t, event.TopicStockBorrowed, msg.Topic)
		require.NotNil(t, msg.PartitionKey)
		assert.Equal(t, "3", *msg.PartitionKey)

		var ev event.StockBorrowedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, event.StockBorrowedEvent{
			BorrowID:       record.ID,
			ProductID:      3,
			UserID:         9,
			Quantity:       2,
			RemainingStock: 0,
		}, ev)
	})
}

func TestLedgerValidationHappensBeforeStoreAccess(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(model.Product{ID: 1, Name: "Camera", CurrentStock: 5})
	ledger := newLedger(t, store)

	borrowCases := map[string]service.BorrowParams{
		"missing product":   {UserID: 1, Quantity: 1},
		"missing user":      {ProductID: 1, Quantity: 1},
		"zero quantity":     {ProductID: 1, UserID: 1},
		"negative quantity": {ProductID: 1, UserID: 1, Quantity: -2},
		"negative product":  {ProductID: -1, UserID: 1, Quantity: 1},
	}
	for name, params := range borrowCases {
		t.Run("borrow "+name, func(t *testing.T) {
			_, err := ledger.Borrow(ctx, params)
			require.ErrorIs(t, err, apperr.ValidationErr)
		})
	}

	returnCases := map[string]service.ReturnParams{
		"missing borrow":    {QuantityReturned: 1},
		"zero quantity":     {BorrowID: 1},
		"negative quantity": {BorrowID: 1, QuantityReturned: -1},
	}
	for name, params := range returnCases {
		t.Run("return "+name, func(t *testing.T) {
			_, err := ledger.Return(ctx, params)
			require.ErrorIs(t, err, apperr.ValidationErr)
		})
	}

	assert.Zero(t, store.txBegun)
	assert.Zero(t, store.queries)
	assert.Equal(t, int64(5), store.product(1).CurrentStock)
}

func TestLedgerReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown borrow record", func(t *testing.T) {
		store := newMemStore()
		ledger := newLedger(t, store)

		_, err := ledger.Return(ctx, service.ReturnParams{BorrowID: 99, QuantityReturned: 1})
		require.ErrorIs(t, err, apperr.BorrowRecordNotFoundErr)
	})

	t.Run("over return", func(t *testing.T) {
		store := newMemStore(model.Product{ID: 1, Name: "Ladder", CurrentStock: 5})
		ledger := newLedger(t, store)

		record, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 1, Quantity: 2})
		require.NoError(t, err)

		_, err = ledger.Return(ctx, service.ReturnParams{BorrowID: record.ID, QuantityReturned: 3})
		require.ErrorIs(t, err, apperr.OverReturnErr)
		assert.Equal(t, int64(3), store.product(1).CurrentStock)
		assert.Equal(t, model.BorrowStatusOpen, store.borrow(record.ID).Status)
		assert.Empty(t, store.state().returns)
	})

	t.Run("partial return leaves record open", func(t *testing.T) {
		store := newMemStore(model.Product{ID: 1, Name: "Saw", CurrentStock: 5})
		ledger := newLedger(t, store)

		record, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 1, Quantity: 4})
		require.NoError(t, err)

		result, err := ledger.Return(ctx, service.ReturnParams{BorrowID: record.ID, QuantityReturned: 1})
		require.NoError(t, err)
		assert.False(t, result.FullyReturned)
		assert.Equal(t, int64(2), result.CurrentStock)
		assert.Equal(t, model.BorrowStatusOpen, store.borrow(record.ID).Status)

		// Partial returns are not accumulated, so a second partial return of
		// the full quantity is still accepted.
		result, err = ledger.Return(ctx, service.ReturnParams{BorrowID: record.ID, QuantityReturned: 4})
		require.NoError(t, err)
		assert.True(t, result.FullyReturned)
		assert.Equal(t, int64(6), store.product(1).CurrentStock)
		assert.Len(t, store.state().returns, 2)
	})

	t.Run("writes outbox event", func(t *testing.T) {
		store := newMemStore(model.Product{ID: 5, Name: "Tent", CurrentStock: 1})
		ledger := newLedger(t, store)

		record, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 5, UserID: 2, Quantity: 1})
		require.NoError(t, err)
		_, err = ledger.Return(ctx, service.ReturnParams{BorrowID: record.ID, QuantityReturned: 1})
		require.NoError(t, err)

		state := store.state()
		require.Len(t, state.outbox, 2)
		msg := state.outbox[1]
		assert.Equal(t, event.TopicStockReturned, msg.Topic)

		var ev event.StockReturnedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, event.StockReturnedEvent{
			BorrowID:         record.ID,
			ProductID:        5,
			UserID:           2,
			QuantityReturned: 1,
			CurrentStock:     1,
			FullyReturned:    true,
			Status:           model.BorrowStatusReturned,
		}, ev)
	})
}

func TestLedgerFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()

	borrowSteps := []string{"GetProductForUpdate", "AdjustStock", "CreateBorrowRecord", "CreateOutboxMsg"}
	for _, step := range borrowSteps {
		t.Run("borrow fails at "+step, func(t *testing.T) {
			store := newMemStore(model.Product{ID: 1, Name: "Mic", CurrentStock: 5})
			ledger := newLedger(t, store)
			before := store.state()

			store.failOn = step
			_, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 1, Quantity: 2})
			require.ErrorIs(t, err, errInjected)

			var zerr interface{ Code() string }
			assert.False(t, errors.As(err, &zerr), "store failures are not catalogue errors")
			assert.Equal(t, before, store.state())
		})
	}

	returnSteps := []string{"GetBorrowRecordForUpdate", "AdjustStock", "CreateReturnRecord", "MarkReturned", "CreateOutboxMsg"}
	for _, step := range returnSteps {
		t.Run("return fails at "+step, func(t *testing.T) {
			store := newMemStore(model.Product{ID: 1, Name: "Mic", CurrentStock: 5})
			ledger := newLedger(t, store)

			record, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: 1, Quantity: 2})
			require.NoError(t, err)
			before := store.state()

			store.failOn = step
			_, err = ledger.Return(ctx, service.ReturnParams{BorrowID: record.ID, QuantityReturned: 2})
			require.ErrorIs(t, err, errInjected)
			assert.Equal(t, before, store.state())
		})
	}
}

// memDB serializes whole transactions, so this covers the service's
// check-then-decrement logic under contention. Row locking in the store is
// covered by TestLedgerConcurrentBorrowsAgainstStore.
func TestLedgerSerializedBorrowsNeverOversell(t *testing.T) {
	const (
		stock   = 10
		workers = 25
	)

	ctx := context.Background()
	store := newMemStore(model.Product{ID: 1, Name: "Laptop", CurrentStock: stock})
	ledger := newLedger(t, store)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := range workers {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			_, err := ledger.Borrow(ctx, service.BorrowParams{ProductID: 1, UserID: userID, Quantity: 1})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.InsufficientStockErr):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, workers-stock, insufficient)
	assert.Zero(t, store.product(1).CurrentStock)
	assert.Len(t, store.state().borrows, stock)
}

func TestLedgerListProducts(t *testing.T) {
	ctx := context.Background()

	t.Run("sorted by name", func(t *testing.T) {
		store := newMemStore(
			model.Product{ID: 1, Name: "Zoom lens", CurrentStock: 1},
			model.Product{ID: 2, Name: "Battery", CurrentStock: 0},
		)
		ledger := newLedger(t, store)

		products, err := ledger.ListProducts(ctx)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "Battery", products[0].Name)
		assert.Equal(t, "Zoom lens", products[1].Name)
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMemStore()
		store.failOn = "ListAllProducts"
		ledger := newLedger(t, store)

		_, err := ledger.ListProducts(ctx)
		require.ErrorIs(t, err, errInjected)
	})
}
