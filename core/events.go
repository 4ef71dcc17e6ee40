package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger event types
const (
	EventFeeCreated      = "fee.created"
	EventPaymentRecorded = "payment.recorded"
)

// LedgerEvent notifies read-side consumers (dashboards caches, analytics) that ledger state changed.
type LedgerEvent struct {
	Type           string          `json:"type"`
	OrganizationID string          `json:"organization_id"`
	AcademicYearID string          `json:"academic_year_id"`
	FeeID          string          `json:"fee_id"`
	PaymentID      string          `json:"payment_id,omitempty"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// EventPublisher is any service that can deliver ledger events.
// Publishing happens after commit and never fails the ledger operation that triggered it.
type EventPublisher interface {
	Publish(ctx context.Context, events ...LedgerEvent)
}
