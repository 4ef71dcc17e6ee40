// Package postgres implements the repositories on PostgreSQL with sqlx.
package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

// postgres error codes
const (
	codeUniqueViolation = "23505"
	codeInvalidTextRepr = "22P02" // malformed uuid
)

// TxRunner runs ledger transactions; repositories join them through the exec argument.
type TxRunner struct {
	db *sqlx.DB
}

var _ core.TxRunner = (*TxRunner)(nil) // interface compliance check

func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return errors.Wrapf(err, "rolling back (%v)", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// conn returns the caller's transaction when one is given, the pool otherwise.
func conn(db *sqlx.DB, exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 && exec[0] != nil {
		if ext, ok := exec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return db
}

func pqCode(err error) (pq.ErrorCode, string) {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code, pqErr.Constraint
	}
	return "", ""
}

// isNotFound covers missing rows and ids that are not even valid uuids.
func isNotFound(err error) bool {
	if errors.Cause(err) == sql.ErrNoRows {
		return true
	}
	code, _ := pqCode(err)
	return code == codeInvalidTextRepr
}

// uniqueViolation returns the violated constraint name, if any.
func uniqueViolation(err error) (string, bool) {
	code, constraint := pqCode(err)
	return constraint, code == codeUniqueViolation
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
