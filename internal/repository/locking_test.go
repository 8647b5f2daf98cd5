package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/stock-ledger/internal/repository"
	"github.com/tuanvumaihuynh/stock-ledger/internal/storage/db"
)

var errStopQuery = errors.New("stop query")

// capturingDB records the SQL it is asked to run and fails every call.
type capturingDB struct {
	queries []string
	args    [][]any
}

var _ db.DB = (*capturingDB)(nil)

func (c *capturingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.record(sql, args)
	return pgconn.CommandTag{}, errStopQuery
}

func (c *capturingDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.record(sql, args)
	return nil, errStopQuery
}

func (c *capturingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("capturingDB: QueryRow not supported")
}

func (c *capturingDB) WithTx(_ context.Context, txFunc func(db.DB) error) error {
	return txFunc(c)
}

func (c *capturingDB) record(sql string, args []any) {
	c.queries = append(c.queries, sql)
	c.args = append(c.args, args)
}

func TestLockingReads(t *testing.T) {
	ctx := context.Background()

	t.Run("product read takes a row lock", func(t *testing.T) {
		capture := &capturingDB{}

		_, err := repository.NewProductRepository(capture).GetProductForUpdate(ctx, 3_000_000_000)
		require.ErrorIs(t, err, errStopQuery)

		require.Len(t, capture.queries, 1)
		assert.Contains(t, capture.queries[0], `"product_id" = $1`)
		assert.Contains(t, capture.queries[0], "FOR UPDATE")
		assert.NotContains(t, capture.queries[0], "SKIP LOCKED")
		assert.Equal(t, []any{int64(3_000_000_000)}, capture.args[0])
	})

	t.Run("borrow record read takes a row lock", func(t *testing.T) {
		capture := &capturingDB{}

		_, err := repository.NewBorrowRecordRepository(capture).GetBorrowRecordForUpdate(ctx, 42)
		require.ErrorIs(t, err, errStopQuery)

		require.Len(t, capture.queries, 1)
		assert.Contains(t, capture.queries[0], `"borrow_id" = $1`)
		assert.Contains(t, capture.queries[0], "FOR UPDATE")
		assert.NotContains(t, capture.queries[0], "SKIP LOCKED")
	})

	t.Run("outbox batch skips rows locked by another relay", func(t *testing.T) {
		capture := &capturingDB{}

		_, err := repository.NewOutboxMsgRepository(capture).
			ListUnprocessedOutboxMsgs(ctx, repository.ListUnprocessedOutboxMsgsParams{BatchSize: 10})
		require.ErrorIs(t, err, errStopQuery)

		require.Len(t, capture.queries, 1)
		assert.Contains(t, capture.queries[0], "FOR UPDATE SKIP LOCKED")
	})
}
