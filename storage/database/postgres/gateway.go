package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/gateway"
)

const transactionColumns = `id, organization_id, fee_id, payer_id, amount, platform_fee, state, gateway_state,
	instrument, redirect_url, created_at, updated_at`

type gatewayRepository struct {
	db *sqlx.DB
}

var _ gateway.Repository = (*gatewayRepository)(nil) // interface compliance check

func NewGatewayRepository(db *sqlx.DB) *gatewayRepository {
	return &gatewayRepository{db: db}
}

func (repo *gatewayRepository) CreateTransaction(ctx context.Context, t gateway.Transaction, exec ...core.DBExecutor) (gateway.Transaction, error) {
	const q = `INSERT INTO gateway_transactions (` + transactionColumns + `)
		VALUES (:id, :organization_id, :fee_id, :payer_id, :amount, :platform_fee, :state, :gateway_state,
			:instrument, :redirect_url, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, t); err != nil {
		return gateway.Transaction{}, errors.Wrap(err, "inserting gateway transaction")
	}
	return t, nil
}

func (repo *gatewayRepository) GetTransaction(ctx context.Context, id string, exec ...core.DBExecutor) (gateway.Transaction, error) {
	const q = `SELECT ` + transactionColumns + ` FROM gateway_transactions WHERE id = $1`

	var t gateway.Transaction
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &t, q, id); err != nil {
		if isNotFound(err) {
			return gateway.Transaction{}, gateway.ErrTransactionNotFound
		}
		return gateway.Transaction{}, errors.Wrap(err, "selecting gateway transaction")
	}
	return t, nil
}

// UpdateTransaction never moves an APPLIED transaction back.
func (repo *gatewayRepository) UpdateTransaction(ctx context.Context, t gateway.Transaction, exec ...core.DBExecutor) (gateway.Transaction, error) {
	const q = `UPDATE gateway_transactions SET state = :state, gateway_state = :gateway_state,
			instrument = :instrument, redirect_url = :redirect_url, updated_at = :updated_at
		WHERE id = :id AND (state <> 'APPLIED' OR :state = 'APPLIED')`

	res, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, t)
	if err != nil {
		return gateway.Transaction{}, errors.Wrap(err, "updating gateway transaction")
	}
	if n, err := res.RowsAffected(); err != nil {
		return gateway.Transaction{}, errors.Wrap(err, "updating gateway transaction")
	} else if n == 0 {
		return repo.GetTransaction(ctx, t.ID, exec...)
	}
	return t, nil
}
