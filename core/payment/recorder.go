package payment

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
)

const TemplateReceipt = "payment_receipt"

var (
	// errors
	ErrNotFound             = errors.New("payment not found")
	ErrAlreadyPaid          = errors.New("fee is already paid")
	ErrOverpayment          = errors.New("amount exceeds the pending balance")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrTransactionConflict  = errors.New("transaction id already used for another fee")
	ErrPayerNotFound        = errors.New("payer not found")
)

// RecordingFailedError is returned when the ledger transaction was aborted; nothing was written and the caller may retry.
type RecordingFailedError struct {
	Err error
}

func (e *RecordingFailedError) Error() string {
	return fmt.Sprintf("payment recording failed: %v", e.Err)
}

func (e *RecordingFailedError) Unwrap() error { return e.Err }

func IsRecordingFailed(err error) bool {
	_, ok := errors.Cause(err).(*RecordingFailedError)
	return ok
}

type (
	Repository interface {
		// CreatePayment returns ErrDuplicateTransaction when the transaction id is already taken.
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByTransactionID(ctx context.Context, transactionID string, exec ...core.DBExecutor) (Payment, error)
		QueryPayments(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Payment, error)
	}

	// FeeStore is the part of the fee ledger the recorder mutates.
	FeeStore interface {
		GetFee(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Fee, error)
		GetFeeForUpdate(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Fee, error)
		UpdateFeeBalances(ctx context.Context, f fee.Fee, exec ...core.DBExecutor) error
		GetCategory(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Category, error)
	}

	UserFinder interface {
		GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error)
	}

	Recorder struct {
		tx     core.TxRunner
		repo   Repository
		fees   FeeStore
		users  UserFinder
		events core.EventPublisher
		mail   core.EmailService
		logger core.Logger
	}
)

func NewRecorder(
	tx core.TxRunner,
	repo Repository,
	fees FeeStore,
	users UserFinder,
	events core.EventPublisher,
	mail core.EmailService,
	logger core.Logger,
) *Recorder {
	return &Recorder{
		tx:     tx,
		repo:   repo,
		fees:   fees,
		users:  users,
		events: events,
		mail:   mail,
		logger: logger,
	}
}

// RecordPayment applies a payment to a fee in a single transaction:
// the fee is re-read under lock, the COMPLETED payment inserted and the balances updated.
//
// Recording the same CorrelationKey twice for the same fee credits the ledger once; the second call
// returns the existing payment along with ErrDuplicateTransaction, which callers treat as success.
// A key already used by another fee or organization is rejected with ErrTransactionConflict.
// Any other failure inside the transaction is reported as *RecordingFailedError with no ledger change.
func (r *Recorder) RecordPayment(ctx context.Context, np NewPayment) (Payment, error) {
	np.Clean()
	if !np.Amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	txnID := np.CorrelationKey
	if txnID == "" {
		txnID = uuid.New().String()
	}

	var recorded Payment
	var updated fee.Fee
	err := r.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		f, err := r.fees.GetFeeForUpdate(ctx, np.OrganizationID, np.FeeID, exec)
		if err != nil {
			return err
		}

		existing, err := r.repo.GetPaymentByTransactionID(ctx, txnID, exec)
		switch {
		case err == nil:
			if !sameFee(existing, np) {
				return ErrTransactionConflict
			}
			recorded = existing
			return ErrDuplicateTransaction
		case errors.Cause(err) != ErrNotFound:
			return errors.Wrap(err, "checking transaction id")
		}

		if updated, err = applyPayment(f, np.Amount); err != nil {
			return err
		}

		now := core.NowFunc().UTC()
		updated.UpdatedAt = now
		recorded, err = r.repo.CreatePayment(ctx, Payment{
			ID:             uuid.New().String(),
			OrganizationID: f.OrganizationID,
			FeeID:          f.ID,
			Amount:         np.Amount,
			Method:         np.Method,
			Status:         StatusCompleted,
			ReceiptNumber:  newReceiptNumber(),
			TransactionID:  txnID,
			PayerID:        null.NewString(np.PayerID, np.PayerID != ""),
			RecordedBy:     null.NewString(np.RecordedBy, np.RecordedBy != ""),
			PlatformFee:    np.PlatformFee,
			Note:           null.NewString(np.Note, np.Note != ""),
			PaidAt:         now,
			CreatedAt:      now,
		}, exec)
		if err != nil {
			return err
		}
		return r.fees.UpdateFeeBalances(ctx, updated, exec)
	})

	switch errors.Cause(err) {
	case nil:
	case ErrDuplicateTransaction:
		if recorded.ID == "" { // lost the race on the unique constraint
			if recorded, err = r.repo.GetPaymentByTransactionID(ctx, txnID); err != nil {
				return Payment{}, &RecordingFailedError{Err: errors.Wrap(err, "finding duplicate transaction")}
			}
			if !sameFee(recorded, np) {
				return Payment{}, ErrTransactionConflict
			}
		}
		return recorded, ErrDuplicateTransaction
	case fee.ErrNotFound, ErrAlreadyPaid, ErrOverpayment, ErrInvalidAmount, ErrTransactionConflict:
		return Payment{}, errors.Cause(err)
	default:
		return Payment{}, &RecordingFailedError{Err: err}
	}

	r.events.Publish(ctx, core.LedgerEvent{
		Type:           core.EventPaymentRecorded,
		OrganizationID: updated.OrganizationID,
		AcademicYearID: updated.AcademicYearID,
		FeeID:          updated.ID,
		PaymentID:      recorded.ID,
		TransactionID:  recorded.TransactionID,
		Amount:         recorded.Amount,
		OccurredAt:     recorded.PaidAt,
	})
	r.sendReceipt(ctx, recorded, updated)
	return recorded, nil
}

// RecordOffline records a payment collected by an admin (cash, cheque, bank transfer...).
func (r *Recorder) RecordOffline(ctx context.Context, tc tenant.Context, feeID string, np NewPayment, validate *validator.Validate) (Payment, error) {
	if err := tc.Require(tenant.CapRecordPayment); err != nil {
		return Payment{}, err
	}
	np.Clean()
	if err := validate.Struct(np); err != nil {
		return Payment{}, err
	}
	if np.PayerID != "" {
		if _, err := r.findPayer(ctx, tc.OrganizationID, np.PayerID); err != nil {
			if errors.Cause(err) == ErrPayerNotFound {
				return Payment{}, core.NewFieldError("payer_id", ErrPayerNotFound.Error())
			}
			return Payment{}, err
		}
	}
	np.OrganizationID = tc.OrganizationID
	np.FeeID = feeID
	np.RecordedBy = tc.UserID
	return r.RecordPayment(ctx, np)
}

func sameFee(p Payment, np NewPayment) bool {
	return p.OrganizationID == np.OrganizationID && p.FeeID == np.FeeID
}

// findPayer returns the payer only when it is a member of the organization.
func (r *Recorder) findPayer(ctx context.Context, organizationID, payerID string) (user.User, error) {
	payer, err := r.users.GetUser(ctx, user.GetFilter{ID: payerID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, ErrPayerNotFound
		}
		return user.User{}, errors.Wrap(err, "finding payer")
	}
	if payer.OrganizationID != organizationID {
		return user.User{}, ErrPayerNotFound
	}
	return payer, nil
}

// ListForFee returns the payments of a fee visible to the context.
func (r *Recorder) ListForFee(ctx context.Context, tc tenant.Context, feeID string) ([]Payment, error) {
	if err := tc.Require(tenant.CapViewFees); err != nil {
		return nil, err
	}
	f, err := r.fees.GetFee(ctx, tc.OrganizationID, feeID)
	if err != nil {
		return nil, err
	}
	if !tc.CanAccessStudent(f.StudentID) {
		return nil, fee.ErrNotFound
	}
	return r.repo.QueryPayments(ctx, QueryFilter{OrganizationID: tc.OrganizationID, FeeID: f.ID})
}

type receiptData struct {
	Name          string
	Amount        string
	Category      string
	ReceiptNumber string
	TransactionID string
	Pending       string
}

func (r *Recorder) sendReceipt(ctx context.Context, p Payment, f fee.Fee) {
	if !p.PayerID.Valid {
		return
	}
	payer, err := r.findPayer(ctx, p.OrganizationID, p.PayerID.String)
	if err != nil {
		if errors.Cause(err) != ErrPayerNotFound {
			r.logger.Warn("finding payer for receipt", errors.Wrap(err, "sendReceipt"))
		}
		return
	}
	var category string
	if c, err := r.fees.GetCategory(ctx, f.OrganizationID, f.CategoryID); err == nil {
		category = c.Name
	}

	r.mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: payer.Name, Address: payer.Email}},
		Subject:      "Payment receipt " + p.ReceiptNumber,
		TemplateName: TemplateReceipt,
		TemplateData: receiptData{
			Name:          payer.Name,
			Amount:        p.Amount.StringFixed(2),
			Category:      category,
			ReceiptNumber: p.ReceiptNumber,
			TransactionID: p.TransactionID,
			Pending:       f.PendingAmount.StringFixed(2),
		},
	})
}
