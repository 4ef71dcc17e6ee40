package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core/payment"
)

// State of a gateway transaction: INITIATED → VERIFIED_SUCCESS | VERIFIED_FAILED; VERIFIED_SUCCESS → APPLIED.
type State string

const (
	StateInitiated       State = "INITIATED"
	StateVerifiedSuccess State = "VERIFIED_SUCCESS"
	StateVerifiedFailed  State = "VERIFIED_FAILED"
	StateApplied         State = "APPLIED"
)

// CanTransition reports whether the state machine allows moving from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateInitiated:
		return next == StateVerifiedSuccess || next == StateVerifiedFailed || next == StateApplied
	case StateVerifiedSuccess:
		return next == StateApplied
	}
	return false
}

// Status is what the payment provider reports for a transaction.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusPending   Status = "PENDING"
)

// Transaction tracks one checkout against the payment provider, keyed by its transaction id.
type Transaction struct {
	ID             string          `json:"transaction_id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	FeeID          string          `json:"fee_id" db:"fee_id"`
	PayerID        string          `json:"payer_id" db:"payer_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"` // credited to the fee
	PlatformFee    decimal.Decimal `json:"platform_fee" db:"platform_fee"`
	State          State           `json:"state" db:"state"`
	GatewayState   null.String     `json:"gateway_state" db:"gateway_state"`
	Instrument     null.String     `json:"instrument" db:"instrument"`
	RedirectURL    null.String     `json:"redirect_url" db:"redirect_url"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Charge is what the payer is billed: the pending amount plus the platform fee.
func (t Transaction) Charge() decimal.Decimal {
	return t.Amount.Add(t.PlatformFee)
}

// PaymentMethod maps the provider's instrument type to a ledger payment method.
func (t Transaction) PaymentMethod() payment.Method {
	switch strings.ToUpper(t.Instrument.String) {
	case "UPI":
		return payment.MethodUPI
	case "CARD":
		return payment.MethodCard
	}
	return payment.MethodOnline
}

type (
	PayRequest struct {
		TransactionID string
		PayerID       string
		Amount        decimal.Decimal // total charge
		RedirectURL   string
		CallbackURL   string
	}

	PayResponse struct {
		RedirectURL string
	}

	StatusResponse struct {
		Status       Status
		GatewayState string // raw provider state
		Instrument   string
		Message      string
	}
)

// Result is returned to both callback entry points and to the polling client.
type Result struct {
	TransactionID  string           `json:"transaction_id"`
	Success        bool             `json:"success"`
	Status         Status           `json:"status"`
	State          State            `json:"state"`
	AlreadyApplied bool             `json:"already_applied"`
	Payment        *payment.Payment `json:"payment,omitempty"`
	Message        string           `json:"message,omitempty"`
}

type InitiateResult struct {
	TransactionID string          `json:"transaction_id"`
	RedirectURL   string          `json:"redirect_url"`
	Amount        decimal.Decimal `json:"amount"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
}

// NewTransactionID returns a transaction id: TXN_YYYYMMDD_XXXXXX.
func NewTransactionID(now time.Time) (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "TXN_" + now.UTC().Format("20060102") + "_" + strings.ToUpper(hex.EncodeToString(b)), nil
}
