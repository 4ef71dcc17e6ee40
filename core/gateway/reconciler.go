package gateway

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/tenant"
)

const callbackPath = "/api/v1/gateway/callback/"

var (
	// errors
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable, please retry")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPaymentRejected     = errors.New("payment gateway rejected the request")
)

type (
	// Client talks to the payment provider.
	// Transport failures and provider 5xx responses are reported as ErrGatewayUnavailable.
	Client interface {
		Pay(ctx context.Context, req PayRequest) (PayResponse, error)
		CheckStatus(ctx context.Context, transactionID string) (StatusResponse, error)
	}

	Repository interface {
		CreateTransaction(ctx context.Context, t Transaction, exec ...core.DBExecutor) (Transaction, error)
		GetTransaction(ctx context.Context, id string, exec ...core.DBExecutor) (Transaction, error)
		UpdateTransaction(ctx context.Context, t Transaction, exec ...core.DBExecutor) (Transaction, error)
	}

	PaymentRecorder interface {
		RecordPayment(ctx context.Context, np payment.NewPayment) (payment.Payment, error)
	}

	PaymentLookup interface {
		GetPaymentByTransactionID(ctx context.Context, transactionID string, exec ...core.DBExecutor) (payment.Payment, error)
	}

	FeeLookup interface {
		GetFee(ctx context.Context, organizationID, id string, exec ...core.DBExecutor) (fee.Fee, error)
	}

	Options struct {
		AppURL          string          // public base URL the provider redirects to / calls back
		PlatformFeeRate decimal.Decimal // charged on top of the pending amount
	}

	// Reconciler drives the gateway transaction state machine and is the only
	// path that turns a provider transaction into a ledger payment.
	Reconciler struct {
		opts     Options
		repo     Repository
		fees     FeeLookup
		payments PaymentLookup
		recorder PaymentRecorder
		client   Client
		logger   core.Logger
	}
)

func NewReconciler(
	opts Options,
	repo Repository,
	fees FeeLookup,
	payments PaymentLookup,
	recorder PaymentRecorder,
	client Client,
	logger core.Logger,
) *Reconciler {
	return &Reconciler{
		opts:     opts,
		repo:     repo,
		fees:     fees,
		payments: payments,
		recorder: recorder,
		client:   client,
		logger:   logger,
	}
}

// Initiate starts a checkout of the fee's whole pending amount.
// The transaction is persisted before the provider is called so that callbacks always find it.
func (r *Reconciler) Initiate(ctx context.Context, tc tenant.Context, feeID string) (InitiateResult, error) {
	if err := tc.Require(tenant.CapPayOnline); err != nil {
		return InitiateResult{}, err
	}
	f, err := r.fees.GetFee(ctx, tc.OrganizationID, feeID)
	if err != nil {
		return InitiateResult{}, err
	}
	if !tc.CanAccessStudent(f.StudentID) {
		return InitiateResult{}, fee.ErrNotFound
	}
	if f.IsPaid() {
		return InitiateResult{}, payment.ErrAlreadyPaid
	}

	now := core.NowFunc().UTC()
	txnID, err := NewTransactionID(now)
	if err != nil {
		return InitiateResult{}, errors.Wrap(err, "generating transaction id")
	}

	txn, err := r.repo.CreateTransaction(ctx, Transaction{
		ID:             txnID,
		OrganizationID: f.OrganizationID,
		FeeID:          f.ID,
		PayerID:        tc.UserID,
		Amount:         f.PendingAmount,
		PlatformFee:    f.PendingAmount.Mul(r.opts.PlatformFeeRate).Round(2),
		State:          StateInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return InitiateResult{}, errors.Wrap(err, "creating transaction")
	}

	callbackURL := r.opts.AppURL + callbackPath + txnID
	resp, err := r.client.Pay(ctx, PayRequest{
		TransactionID: txnID,
		PayerID:       tc.UserID,
		Amount:        txn.Charge(),
		RedirectURL:   callbackURL,
		CallbackURL:   callbackURL,
	})
	if err != nil {
		// only a rejection is final: after a timeout the provider may still have the payment
		if errors.Cause(err) == ErrPaymentRejected {
			txn.GatewayState = null.StringFrom("PAY_INIT_FAILED")
			if _, uErr := r.transition(ctx, txn, StateVerifiedFailed); uErr != nil {
				r.logger.Error("marking transaction failed", uErr, map[string]interface{}{"transaction_id": txnID})
			}
		} else {
			txn.GatewayState = null.StringFrom("PAY_INIT_UNKNOWN")
			txn.UpdatedAt = core.NowFunc().UTC()
			if _, uErr := r.repo.UpdateTransaction(ctx, txn); uErr != nil {
				r.logger.Warn("saving transaction state", uErr, map[string]interface{}{"transaction_id": txnID})
			}
		}
		return InitiateResult{}, errors.Wrap(err, "initiating gateway payment")
	}

	txn.RedirectURL = null.StringFrom(resp.RedirectURL)
	txn.UpdatedAt = core.NowFunc().UTC()
	if _, err = r.repo.UpdateTransaction(ctx, txn); err != nil {
		return InitiateResult{}, errors.Wrap(err, "saving redirect url")
	}

	return InitiateResult{
		TransactionID: txnID,
		RedirectURL:   resp.RedirectURL,
		Amount:        txn.Amount,
		PlatformFee:   txn.PlatformFee,
	}, nil
}

// VerifyAndApply reconciles a provider transaction with the ledger. It is safe to call any
// number of times, concurrently, from the redirect and the webhook callbacks alike:
// a transaction credits the ledger at most once.
// Provider errors are returned to the caller (who may retry later); nothing is written in that case.
func (r *Reconciler) VerifyAndApply(ctx context.Context, transactionID string) (Result, error) {
	res := Result{TransactionID: transactionID, Status: StatusPending}

	// already applied: no provider call, no recorder call
	p, err := r.payments.GetPaymentByTransactionID(ctx, transactionID)
	switch {
	case err == nil && p.Status == payment.StatusCompleted:
		r.markApplied(ctx, transactionID)
		return Result{
			TransactionID:  transactionID,
			Success:        true,
			Status:         StatusCompleted,
			State:          StateApplied,
			AlreadyApplied: true,
			Payment:        &p,
		}, nil
	case err != nil && errors.Cause(err) != payment.ErrNotFound:
		return res, errors.Wrap(err, "finding payment by transaction id")
	}

	txn, err := r.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return res, err
	}
	res.State = txn.State
	if txn.State == StateVerifiedFailed {
		res.Status = StatusFailed
		return res, nil
	}

	st, err := r.client.CheckStatus(ctx, transactionID)
	if err != nil {
		return res, errors.Wrap(err, "checking gateway status")
	}
	txn.GatewayState = null.NewString(st.GatewayState, st.GatewayState != "")
	if st.Instrument != "" {
		txn.Instrument = null.StringFrom(st.Instrument)
	}
	res.Message = st.Message

	switch st.Status {
	case StatusCompleted:
		return r.apply(ctx, txn)
	case StatusFailed:
		txn, err = r.transition(ctx, txn, StateVerifiedFailed)
		if err != nil {
			return res, errors.Wrap(err, "marking transaction failed")
		}
		res.Status = StatusFailed
		res.State = txn.State
		return res, nil
	default:
		txn.UpdatedAt = core.NowFunc().UTC()
		if _, err = r.repo.UpdateTransaction(ctx, txn); err != nil {
			r.logger.Warn("saving gateway state", err, map[string]interface{}{"transaction_id": transactionID})
		}
		return res, nil
	}
}

func (r *Reconciler) apply(ctx context.Context, txn Transaction) (Result, error) {
	res := Result{TransactionID: txn.ID, Status: StatusCompleted, State: txn.State}

	txn, err := r.transition(ctx, txn, StateVerifiedSuccess)
	if err != nil {
		return res, errors.Wrap(err, "marking transaction verified")
	}
	res.State = txn.State

	p, err := r.recorder.RecordPayment(ctx, payment.NewPayment{
		OrganizationID: txn.OrganizationID,
		FeeID:          txn.FeeID,
		Amount:         txn.Amount,
		Method:         txn.PaymentMethod(),
		PayerID:        txn.PayerID,
		RecordedBy:     txn.PayerID,
		PlatformFee:    txn.PlatformFee,
		Note:           "Paid online",
		CorrelationKey: txn.ID,
	})
	if err != nil {
		if errors.Cause(err) != payment.ErrDuplicateTransaction {
			if !payment.IsRecordingFailed(err) {
				// the provider took the money but the ledger cannot take it anymore
				r.logger.Error("verified gateway payment could not be applied; manual refund required", err,
					map[string]interface{}{"transaction_id": txn.ID, "fee_id": txn.FeeID})
			}
			return res, errors.Wrap(err, "applying gateway payment")
		}
		res.AlreadyApplied = true
	}

	res.Success = true
	res.Payment = &p
	if _, err = r.transition(ctx, txn, StateApplied); err != nil {
		r.logger.Warn("marking transaction applied", err, map[string]interface{}{"transaction_id": txn.ID})
	}
	res.State = StateApplied
	return res, nil
}

func (r *Reconciler) transition(ctx context.Context, txn Transaction, next State) (Transaction, error) {
	if txn.State == next || !txn.State.CanTransition(next) {
		return txn, nil
	}
	txn.State = next
	txn.UpdatedAt = core.NowFunc().UTC()
	return r.repo.UpdateTransaction(ctx, txn)
}

// markApplied closes a transaction whose payment was committed by a concurrent or earlier call.
func (r *Reconciler) markApplied(ctx context.Context, transactionID string) {
	txn, err := r.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Cause(err) != ErrTransactionNotFound {
			r.logger.Warn("finding transaction", err, map[string]interface{}{"transaction_id": transactionID})
		}
		return
	}
	if _, err = r.transition(ctx, txn, StateApplied); err != nil {
		r.logger.Warn("marking transaction applied", err, map[string]interface{}{"transaction_id": transactionID})
	}
}

// Status reports a transaction's outcome to its payer (or an admin) without calling the provider.
func (r *Reconciler) Status(ctx context.Context, tc tenant.Context, transactionID string) (Result, error) {
	if err := tc.Require(tenant.CapViewFees); err != nil {
		return Result{}, err
	}
	txn, err := r.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return Result{}, err
	}
	if txn.OrganizationID != tc.OrganizationID || (txn.PayerID != tc.UserID && tc.Role != tenant.RoleAdmin) {
		return Result{}, ErrTransactionNotFound
	}

	res := Result{TransactionID: txn.ID, State: txn.State, Status: StatusPending}
	switch txn.State {
	case StateVerifiedFailed:
		res.Status = StatusFailed
	case StateVerifiedSuccess, StateApplied:
		res.Status = StatusCompleted
	}

	p, err := r.payments.GetPaymentByTransactionID(ctx, transactionID)
	switch {
	case err == nil:
		res.Success = p.Status == payment.StatusCompleted
		res.Status = StatusCompleted
		res.Payment = &p
	case errors.Cause(err) != payment.ErrNotFound:
		return Result{}, errors.Wrap(err, "finding payment by transaction id")
	}
	return res, nil
}
