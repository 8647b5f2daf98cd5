package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

type DB interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row

	// WithTx runs txFunc inside a transaction. The transaction is committed when
	// txFunc returns nil and rolled back otherwise. Calling WithTx on a DB that is
	// already bound to a transaction reuses it.
	WithTx(ctx context.Context, txFunc func(DB) error) error
}

type HealthChecker interface {
	IsHealthy(ctx context.Context) (bool, error)
}

var (
	_ DB            = (*Client)(nil)
	_ HealthChecker = (*Client)(nil)
)

const (
	defaultTxMaxRetries = 3
	defaultRetryBase    = 20 * time.Millisecond
)

type Client struct {
	*pgxpool.Pool

	lockTimeout  time.Duration
	txMaxRetries uint64
	retryBase    time.Duration
}

type Option func(*Client)

// WithLockTimeout bounds row lock waits inside WithTx. Zero leaves the server default.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Client) { c.lockTimeout = d }
}

// WithTxRetries sets how many times a transaction failing with a deadlock or
// serialization failure is retried.
func WithTxRetries(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.txMaxRetries = n
		if base > 0 {
			c.retryBase = base
		}
	}
}

// NewClient creates a new db client.
func NewClient(pool *pgxpool.Pool, opts ...Option) *Client {
	c := &Client{
		Pool:         pool,
		txMaxRetries: defaultTxMaxRetries,
		retryBase:    defaultRetryBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) WithTx(ctx context.Context, txFunc func(DB) error) error {
	backoff := retry.WithMaxRetries(c.txMaxRetries, retry.NewExponential(c.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.runTx(ctx, txFunc)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	return classify(err)
}

func (c *Client) runTx(ctx context.Context, txFunc func(DB) error) (err error) {
	tx, err := c.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// rollback must run even if ctx was canceled, otherwise the
		// connection goes back to the pool with a broken transaction
		rbCtx := context.WithoutCancel(ctx)

		if p := recover(); p != nil {
			_ = tx.Rollback(rbCtx)
			panic(p)
		}

		if err != nil {
			rbErr := tx.Rollback(rbCtx)
			if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
			}
		}
	}()

	if c.lockTimeout > 0 {
		if _, err = tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", lockTimeoutSetting(c.lockTimeout)); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err = txFunc(&txWrapper{Tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (c *Client) IsHealthy(ctx context.Context) (bool, error) {
	if err := c.Ping(ctx); err != nil {
		return false, fmt.Errorf("ping database: %w", err)
	}
	return true, nil
}

type txWrapper struct {
	pgx.Tx
}

func (t *txWrapper) WithTx(_ context.Context, txFunc func(DB) error) error {
	return txFunc(t)
}

func lockTimeoutSetting(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%dms", ms)
}
