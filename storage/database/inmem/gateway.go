package inmemdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/gateway"
)

type gatewayRepository struct {
	db *DB
}

var _ gateway.Repository = (*gatewayRepository)(nil) // interface compliance check

func NewGatewayRepository(db *DB) *gatewayRepository {
	return &gatewayRepository{db: db}
}

func (repo *gatewayRepository) CreateTransaction(_ context.Context, t gateway.Transaction, exec ...core.DBExecutor) (gateway.Transaction, error) {
	defer repo.db.lockWrite(exec)()

	if _, ok := repo.db.t.transactions[t.ID]; ok {
		return gateway.Transaction{}, errors.Errorf("transaction %s already exists", t.ID)
	}
	repo.db.t.transactions[t.ID] = t
	return t, nil
}

func (repo *gatewayRepository) GetTransaction(_ context.Context, id string, _ ...core.DBExecutor) (gateway.Transaction, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.t.transactions[id]; ok {
		return t, nil
	}
	return gateway.Transaction{}, gateway.ErrTransactionNotFound
}

func (repo *gatewayRepository) UpdateTransaction(_ context.Context, t gateway.Transaction, exec ...core.DBExecutor) (gateway.Transaction, error) {
	defer repo.db.lockWrite(exec)()

	orig, ok := repo.db.t.transactions[t.ID]
	if !ok {
		return gateway.Transaction{}, gateway.ErrTransactionNotFound
	}
	if orig.State == gateway.StateApplied && t.State != gateway.StateApplied {
		return orig, nil
	}
	repo.db.t.transactions[t.ID] = t
	return t, nil
}
