// Package sqlxrepos implements the school directory, attendance and audit repositories with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

type base struct {
	exec core.DBExecutor
}

func (b base) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return b.exec
}

// selectAll runs `query` and scans every row into `dest`, a pointer to a slice of `db`-tagged structs.
func selectAll(ctx context.Context, exe core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	rows, err := exe.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

// execNamed binds `arg` to the :name parameters of `query` and executes it.
func execNamed(ctx context.Context, exe core.DBExecutor, query string, arg interface{}) (*sql.Rows, error) {
	q, args, err := sqlx.Named(query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "binding named query")
	}
	return exe.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
}
