package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
	testutil "github.com/trezcool/feeledger/tests"
)

var due = time.Now().AddDate(0, 1, 0)

// initiate starts a checkout as the school's parent.
func initiate(t *testing.T, env *testutil.Env, school testutil.School, f fee.Fee) gateway.InitiateResult {
	t.Helper()
	res, err := env.Reconciler.Initiate(context.Background(), env.Context(t, school.Parent), f.ID)
	require.NoError(t, err)
	return res
}

func paymentsOf(t *testing.T, env *testutil.Env, f fee.Fee) []payment.Payment {
	t.Helper()
	payments, err := env.PaymentRepo.QueryPayments(context.Background(), payment.QueryFilter{OrganizationID: f.OrganizationID, FeeID: f.ID})
	require.NoError(t, err)
	return payments
}

func TestReconciler_Initiate(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	school := env.NewSchool(t, "alpha")
	f := env.CreateFee(t, school, "5000", due)

	res := initiate(t, env, school, f)
	assert.Regexp(t, `^TXN_\d{8}_[0-9A-F]{6}$`, res.TransactionID)
	assert.Equal(t, "https://pay.example.com/"+res.TransactionID, res.RedirectURL)
	assert.Equal(t, "5000", res.Amount.String())
	assert.Equal(t, "100", res.PlatformFee.String())

	req := env.Gateway.LastPayment
	assert.Equal(t, "5100", req.Amount.String(), "the payer is charged the platform fee on top")
	assert.Equal(t, school.Parent.ID, req.PayerID)
	assert.Equal(t, testutil.AppURL+"/api/v1/gateway/callback/"+res.TransactionID, req.CallbackURL)

	txn, err := env.TxnRepo.GetTransaction(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, gateway.StateInitiated, txn.State)
	assert.Equal(t, f.ID, txn.FeeID)
	assert.Equal(t, res.RedirectURL, txn.RedirectURL.String)
	assert.Empty(t, paymentsOf(t, env, f), "initiating never touches the ledger")

	t.Run("forbidden", func(t *testing.T) {
		_, err := env.Reconciler.Initiate(ctx, env.Context(t, school.Admin), f.ID)
		assert.Equal(t, tenant.ErrForbidden, err)
	})

	t.Run("out of scope", func(t *testing.T) {
		other := env.CreateStudent(t, school.Org.ID, "Other", "", "")
		stranger := env.CreateUser(t, school.Org.ID, "Stranger", "stranger@alpha.test", tenant.RoleStudent, other.ID)
		_, err := env.Reconciler.Initiate(ctx, env.Context(t, stranger), f.ID)
		assert.Equal(t, fee.ErrNotFound, err)
	})

	t.Run("already paid", func(t *testing.T) {
		paid := env.CreateFee(t, school.With(school.Student, env.CreateCategory(t, school.Org.ID, "Exam")), "300", due)
		_, err := env.Recorder.RecordPayment(ctx, payment.NewPayment{OrganizationID: school.Org.ID, FeeID: paid.ID, Amount: paid.TotalFee})
		require.NoError(t, err)
		_, err = env.Reconciler.Initiate(ctx, env.Context(t, school.Pupil), paid.ID)
		assert.Equal(t, payment.ErrAlreadyPaid, err)
	})

	t.Run("provider down", func(t *testing.T) {
		env.Gateway.FailPay(gateway.ErrGatewayUnavailable)
		defer env.Gateway.FailPay(nil)

		_, err := env.Reconciler.Initiate(ctx, env.Context(t, school.Pupil), f.ID)
		assert.Equal(t, gateway.ErrGatewayUnavailable, errors.Cause(err))

		txn, err := env.TxnRepo.GetTransaction(ctx, env.Gateway.LastPayment.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, gateway.StateInitiated, txn.State, "the provider may still have the payment")
		assert.Equal(t, "PAY_INIT_UNKNOWN", txn.GatewayState.String)
	})

	t.Run("rejected", func(t *testing.T) {
		env.Gateway.FailPay(errors.Wrap(gateway.ErrPaymentRejected, "invalid amount"))
		defer env.Gateway.FailPay(nil)

		_, err := env.Reconciler.Initiate(ctx, env.Context(t, school.Pupil), f.ID)
		assert.Equal(t, gateway.ErrPaymentRejected, errors.Cause(err))

		txn, err := env.TxnRepo.GetTransaction(ctx, env.Gateway.LastPayment.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, gateway.StateVerifiedFailed, txn.State)
		assert.Equal(t, "PAY_INIT_FAILED", txn.GatewayState.String)
	})
}

func TestReconciler_Initiate_timeout(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	school := env.NewSchool(t, "alpha")
	f := env.CreateFee(t, school, "5000", due)

	env.Gateway.FailPay(context.DeadlineExceeded)
	_, err := env.Reconciler.Initiate(ctx, env.Context(t, school.Pupil), f.ID)
	require.Error(t, err)
	env.Gateway.FailPay(nil)

	// the provider took the payment before the request timed out
	txnID := env.Gateway.LastPayment.TransactionID
	env.Gateway.SetStatus(txnID, gateway.StatusCompleted, "UPI")
	_, statusCalls := env.Gateway.Calls()

	res, err := env.Reconciler.VerifyAndApply(ctx, txnID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, gateway.StatusCompleted, res.Status)
	assert.Equal(t, gateway.StateApplied, res.State)
	_, calls := env.Gateway.Calls()
	assert.Equal(t, statusCalls+1, calls)

	assert.Len(t, paymentsOf(t, env, f), 1)
	got, err := env.FeeRepo.GetFee(ctx, school.Org.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "5000", got.PaidAmount.String())
}

func TestReconciler_VerifyAndApply(t *testing.T) {
	ctx := context.Background()

	t.Run("completed is applied once", func(t *testing.T) {
		env := testutil.NewEnv(t)
		school := env.NewSchool(t, "alpha")
		f := env.CreateFee(t, school, "5000", due)
		txnID := initiate(t, env, school, f).TransactionID
		env.Gateway.SetStatus(txnID, gateway.StatusCompleted, "UPI")

		res, err := env.Reconciler.VerifyAndApply(ctx, txnID)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.False(t, res.AlreadyApplied)
		assert.Equal(t, gateway.StateApplied, res.State)
		require.NotNil(t, res.Payment)
		assert.Equal(t, txnID, res.Payment.TransactionID)
		assert.Equal(t, payment.MethodUPI, res.Payment.Method)
		assert.Equal(t, "100", res.Payment.PlatformFee.String())
		assert.Equal(t, school.Parent.ID, res.Payment.PayerID.String)

		_, statusCalls := env.Gateway.Calls()
		again, err := env.Reconciler.VerifyAndApply(ctx, txnID)
		require.NoError(t, err)
		assert.True(t, again.Success)
		assert.True(t, again.AlreadyApplied)
		assert.Equal(t, res.Payment.ID, again.Payment.ID)
		_, statusCallsAfter := env.Gateway.Calls()
		assert.Equal(t, statusCalls, statusCallsAfter, "an applied transaction is never re-verified")

		require.Len(t, paymentsOf(t, env, f), 1)
		got, err := env.FeeRepo.GetFee(ctx, school.Org.ID, f.ID)
		require.NoError(t, err)
		assert.Equal(t, fee.StatusPaid, got.Status)

		txn, err := env.TxnRepo.GetTransaction(ctx, txnID)
		require.NoError(t, err)
		assert.Equal(t, gateway.StateApplied, txn.State)
		assert.Equal(t, "UPI", txn.Instrument.String)
	})

	t.Run("redirect and webhook race", func(t *testing.T) {
		env := testutil.NewEnv(t)
		school := env.NewSchool(t, "alpha")
		f := env.CreateFee(t, school, "5000", due)
		txnID := initiate(t, env, school, f).TransactionID
		env.Gateway.SetStatus(txnID, gateway.StatusCompleted)

		var wg sync.WaitGroup
		results := make(chan gateway.Result, 6)
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := env.Reconciler.VerifyAndApply(ctx, txnID)
				assert.NoError(t, err)
				results <- res
			}()
		}
		wg.Wait()
		close(results)

		var fresh int
		for res := range results {
			assert.True(t, res.Success)
			if !res.AlreadyApplied {
				fresh++
			}
		}
		assert.Equal(t, 1, fresh)
		assert.Len(t, paymentsOf(t, env, f), 1)
	})

	tests := []struct {
		name      string
		status    gateway.Status
		wantState gateway.State
		wantFinal gateway.Status
	}{
		{name: "failed", status: gateway.StatusFailed, wantState: gateway.StateVerifiedFailed, wantFinal: gateway.StatusFailed},
		{name: "pending", status: gateway.StatusPending, wantState: gateway.StateInitiated, wantFinal: gateway.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			school := env.NewSchool(t, "alpha")
			f := env.CreateFee(t, school, "5000", due)
			txnID := initiate(t, env, school, f).TransactionID
			env.Gateway.SetStatus(txnID, tt.status)

			res, err := env.Reconciler.VerifyAndApply(ctx, txnID)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantFinal, res.Status)
			assert.Equal(t, tt.wantState, res.State)
			assert.Nil(t, res.Payment)
			assert.Empty(t, paymentsOf(t, env, f))

			txn, err := env.TxnRepo.GetTransaction(ctx, txnID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, txn.State)
			assert.Equal(t, string(tt.status), txn.GatewayState.String)
		})
	}

	t.Run("failed is final", func(t *testing.T) {
		env := testutil.NewEnv(t)
		school := env.NewSchool(t, "alpha")
		f := env.CreateFee(t, school, "5000", due)
		txnID := initiate(t, env, school, f).TransactionID
		env.Gateway.SetStatus(txnID, gateway.StatusFailed)
		_, err := env.Reconciler.VerifyAndApply(ctx, txnID)
		require.NoError(t, err)

		env.Gateway.SetStatus(txnID, gateway.StatusCompleted)
		res, err := env.Reconciler.VerifyAndApply(ctx, txnID)
		require.NoError(t, err)
		assert.Equal(t, gateway.StatusFailed, res.Status)
		assert.Empty(t, paymentsOf(t, env, f))
	})

	t.Run("provider error changes nothing", func(t *testing.T) {
		env := testutil.NewEnv(t)
		school := env.NewSchool(t, "alpha")
		f := env.CreateFee(t, school, "5000", due)
		txnID := initiate(t, env, school, f).TransactionID
		before, err := env.TxnRepo.GetTransaction(ctx, txnID)
		require.NoError(t, err)

		env.Gateway.FailStatus(gateway.ErrGatewayUnavailable)
		_, err = env.Reconciler.VerifyAndApply(ctx, txnID)
		assert.Equal(t, gateway.ErrGatewayUnavailable, errors.Cause(err))

		after, err := env.TxnRepo.GetTransaction(ctx, txnID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Empty(t, paymentsOf(t, env, f))

		env.Gateway.FailStatus(nil)
		env.Gateway.SetStatus(txnID, gateway.StatusCompleted)
		res, err := env.Reconciler.VerifyAndApply(ctx, txnID)
		require.NoError(t, err)
		assert.True(t, res.Success, "retrying after an outage applies the payment")
	})

	t.Run("unknown transaction", func(t *testing.T) {
		env := testutil.NewEnv(t)
		_, err := env.Reconciler.VerifyAndApply(ctx, "TXN_20240101_ABCDEF")
		assert.Equal(t, gateway.ErrTransactionNotFound, err)
	})

	t.Run("fee settled elsewhere meanwhile", func(t *testing.T) {
		env := testutil.NewEnv(t)
		school := env.NewSchool(t, "alpha")
		f := env.CreateFee(t, school, "5000", due)
		txnID := initiate(t, env, school, f).TransactionID
		_, err := env.Recorder.RecordPayment(ctx, payment.NewPayment{OrganizationID: school.Org.ID, FeeID: f.ID, Amount: decimal.NewFromInt(5000)})
		require.NoError(t, err)

		env.Gateway.SetStatus(txnID, gateway.StatusCompleted)
		_, err = env.Reconciler.VerifyAndApply(ctx, txnID)
		assert.Equal(t, payment.ErrAlreadyPaid, errors.Cause(err))
		assert.Len(t, paymentsOf(t, env, f), 1)

		txn, err := env.TxnRepo.GetTransaction(ctx, txnID)
		require.NoError(t, err)
		assert.Equal(t, gateway.StateVerifiedSuccess, txn.State, "left for manual refund")
	})
}

func TestReconciler_Status(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	school := env.NewSchool(t, "alpha")
	other := env.NewSchool(t, "beta")
	f := env.CreateFee(t, school, "5000", due)
	txnID := initiate(t, env, school, f).TransactionID

	res, err := env.Reconciler.Status(ctx, env.Context(t, school.Parent), txnID)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusPending, res.Status)
	assert.Equal(t, gateway.StateInitiated, res.State)

	env.Gateway.SetStatus(txnID, gateway.StatusCompleted)
	_, err = env.Reconciler.VerifyAndApply(ctx, txnID)
	require.NoError(t, err)
	_, statusCalls := env.Gateway.Calls()

	res, err = env.Reconciler.Status(ctx, env.Context(t, school.Admin), txnID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, gateway.StatusCompleted, res.Status)
	require.NotNil(t, res.Payment)
	_, statusCallsAfter := env.Gateway.Calls()
	assert.Equal(t, statusCalls, statusCallsAfter, "status never calls the provider")

	hidden := []struct {
		name   string
		viewer user.User
	}{
		{name: "not the payer", viewer: school.Pupil},
		{name: "other organization", viewer: other.Admin},
	}
	for _, tt := range hidden {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Reconciler.Status(ctx, env.Context(t, tt.viewer), txnID)
			assert.Equal(t, gateway.ErrTransactionNotFound, err)
		})
	}
}
