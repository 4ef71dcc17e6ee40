package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
)

type (
	Status string
	Method string
)

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

const (
	MethodCash         Method = "CASH"
	MethodCheque       Method = "CHEQUE"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodUPI          Method = "UPI"
	MethodCard         Method = "CARD"
	MethodOnline       Method = "ONLINE"
)

// Payment is immutable once COMPLETED; corrections are new compensating records.
type Payment struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	FeeID          string          `json:"fee_id" db:"fee_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Method         Method          `json:"payment_method" db:"payment_method"`
	Status         Status          `json:"status" db:"status"`
	ReceiptNumber  string          `json:"receipt_number" db:"receipt_number"`
	TransactionID  string          `json:"transaction_id" db:"transaction_id"`
	PayerID        null.String     `json:"payer_id" db:"payer_id"`
	RecordedBy     null.String     `json:"recorded_by" db:"recorded_by"`
	PlatformFee    decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	Note           null.String     `json:"note" db:"note"`
	PaidAt         time.Time       `json:"paid_at" db:"paid_at"`       // UTC
	CreatedAt      time.Time       `json:"created_at" db:"created_at"` // UTC
}

// NewPayment contains information needed to apply a payment to a fee.
type NewPayment struct {
	OrganizationID string          `json:"-"`
	FeeID          string          `json:"-"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	Method         Method          `json:"payment_method" validate:"omitempty,oneof=CASH CHEQUE BANK_TRANSFER UPI CARD ONLINE"`
	PayerID        string          `json:"payer_id" validate:"omitempty,uuid"`
	RecordedBy     string          `json:"-"`
	PlatformFee    decimal.Decimal `json:"-"`
	Note           string          `json:"note"`

	// CorrelationKey is the idempotency key stored as the payment's transaction id.
	// A new one is generated when empty.
	CorrelationKey string `json:"-"`
}

func (np *NewPayment) Clean() {
	np.PayerID = core.CleanString(np.PayerID)
	np.Note = core.CleanString(np.Note)
	np.Method = Method(core.CleanString(string(np.Method)))
	if np.Method == "" {
		np.Method = MethodCash
	}
	np.Amount = np.Amount.Round(2)
	np.PlatformFee = np.PlatformFee.Round(2)
}

type QueryFilter struct {
	OrganizationID string
	FeeID          string
	Status         Status
}
