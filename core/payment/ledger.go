package payment

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core/fee"
)

// applyPayment computes the fee balances after crediting amount.
// Overpayment is rejected so that paid + pending == total and sum(payments) == paid both hold.
func applyPayment(f fee.Fee, amount decimal.Decimal) (fee.Fee, error) {
	if !amount.IsPositive() {
		return fee.Fee{}, ErrInvalidAmount
	}
	if f.IsPaid() {
		return fee.Fee{}, ErrAlreadyPaid
	}
	if amount.GreaterThan(f.PendingAmount) {
		return fee.Fee{}, ErrOverpayment
	}

	f.PaidAmount = f.PaidAmount.Add(amount)
	f.PendingAmount = f.TotalFee.Sub(f.PaidAmount)
	if f.PendingAmount.IsNegative() {
		f.PendingAmount = decimal.Zero
	}
	if f.PendingAmount.IsZero() {
		f.Status = fee.StatusPaid
	} else {
		f.Status = fee.StatusUnpaid
	}
	return f, nil
}

// newReceiptNumber returns a human-facing receipt number: REC-XXXXXXXX.
func newReceiptNumber() string {
	return "REC-" + strings.ToUpper(uuid.New().String()[:8])
}
