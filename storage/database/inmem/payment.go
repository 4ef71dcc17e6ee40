package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/payment"
)

var errDuplicateReceipt = errors.New("duplicate receipt number")

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	defer repo.db.lockWrite(exec)()

	for _, other := range repo.db.t.payments {
		if other.TransactionID == p.TransactionID {
			return payment.Payment{}, payment.ErrDuplicateTransaction
		}
		if other.ReceiptNumber == p.ReceiptNumber {
			return payment.Payment{}, errDuplicateReceipt
		}
	}
	repo.db.t.payments[p.ID] = p
	return p, nil
}

func (repo *paymentRepository) GetPaymentByTransactionID(_ context.Context, transactionID string, _ ...core.DBExecutor) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.t.payments {
		if p.TransactionID == transactionID {
			return p, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter payment.QueryFilter, _ ...core.DBExecutor) ([]payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]payment.Payment, 0)
	for _, p := range repo.db.t.payments {
		if p.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.FeeID != "" && p.FeeID != filter.FeeID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		payments = append(payments, p)
	}
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].PaidAt.Equal(payments[j].PaidAt) {
			return payments[i].PaidAt.Before(payments[j].PaidAt)
		}
		return payments[i].ID < payments[j].ID
	})
	return payments, nil
}
