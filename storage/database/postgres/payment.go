package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/payment"
)

const paymentColumns = `id, organization_id, fee_id, amount, payment_method, status, receipt_number, transaction_id,
	payer_id, recorded_by, platform_fee, note, paid_at, created_at`

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.Payment, exec ...core.DBExecutor) (payment.Payment, error) {
	const q = `INSERT INTO payments (` + paymentColumns + `)
		VALUES (:id, :organization_id, :fee_id, :amount, :payment_method, :status, :receipt_number, :transaction_id,
			:payer_id, :recorded_by, :platform_fee, :note, :paid_at, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, conn(repo.db, exec), q, p); err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "payments_transaction_id_key" {
			return payment.Payment{}, payment.ErrDuplicateTransaction
		}
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *paymentRepository) GetPaymentByTransactionID(ctx context.Context, transactionID string, exec ...core.DBExecutor) (payment.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	var p payment.Payment
	if err := sqlx.GetContext(ctx, conn(repo.db, exec), &p, q, transactionID); err != nil {
		if isNotFound(err) {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "selecting payment")
	}
	return p, nil
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter payment.QueryFilter, exec ...core.DBExecutor) ([]payment.Payment, error) {
	var (
		where = []string{"organization_id = $1"}
		args  = []interface{}{filter.OrganizationID}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.FeeID != "" {
		where = append(where, "fee_id = "+arg(filter.FeeID))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}

	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + strings.Join(where, " AND ") + ` ORDER BY paid_at, id`
	payments := make([]payment.Payment, 0)
	if err := sqlx.SelectContext(ctx, conn(repo.db, exec), &payments, q, args...); err != nil {
		if isNotFound(err) {
			return payments, nil
		}
		return nil, errors.Wrap(err, "selecting payments")
	}
	return payments, nil
}
