package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// Transactor runs units of work in database transactions.
type Transactor struct {
	db core.DB
}

var _ core.Transactor = (*Transactor)(nil)

func NewTransactor(db core.DB) *Transactor {
	return &Transactor{db: db}
}

// InTx commits when fn succeeds and rolls back when it fails or panics.
func (t *Transactor) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			// the connection state is unknown past this point
			return core.NewShutdownError(fmt.Sprintf("rolling back transaction: %v (after: %v)", rbErr, err))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
