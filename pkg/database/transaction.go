package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Queryer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. Only the call that began the transaction may close it;
// nested callers that picked it up from the context get no-op Commit and Rollback.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	owner    bool
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
		owner:  true,
	}
}

// GetTx returns the open transaction carried by ctx or begins a new one
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if outer, ok := ctx.Value(txKey).(*Transaction); ok && outer != nil && outer.IsOpen() {
		return ctx, &Transaction{Tx: outer.Tx, logger: logger}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

// Rollback is safe to defer after Commit
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed || !t.owner {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed || !t.owner {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	t.isClosed = true
	return nil
}

// Conn returns the open transaction carried by ctx, or q when there is none
func Conn(ctx context.Context, q Queryer) Queryer {
	if tx, ok := ctx.Value(txKey).(*Transaction); ok && tx != nil && tx.IsOpen() {
		return tx.Tx
	}
	return q
}

// WithinTx runs fn inside a transaction carried by the context it receives. The transaction
// commits when fn returns nil and rolls back otherwise.
func WithinTx(ctx context.Context, logger ectologger.Logger, db DB, fn func(ctx context.Context) error) error {
	ctx, tx, err := GetTx(ctx, logger, db, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *DatabaseInstance) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithinTx(ctx, db.logger, db, fn)
}
