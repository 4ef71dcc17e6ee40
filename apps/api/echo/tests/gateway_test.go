package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/gateway"
)

func checkout(t *testing.T, a app, feeID, token string) string {
	req, rec := newAuthRequest(http.MethodPost, "/api/v1/fees/"+feeID+"/checkout", token)
	a.do(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res gateway.InitiateResult
	decode(t, rec, &res)
	return res.TransactionID
}

func Test_gatewayApi_serverCallback(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	f := a.env.CreateFee(t, s, "5000", dueDate)
	txnID := checkout(t, a, f.ID, a.token(t, s.Parent))
	path := "/api/v1/gateway/callback/" + txnID

	callback := func(t *testing.T) gateway.Result {
		req, rec := newRequest(http.MethodPost, path)
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var raw map[string]interface{}
		decode(t, rec, &raw)
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		assert.ElementsMatch(t, []string{"transaction_id", "success", "status", "state"}, keys,
			"the callback is unauthenticated and only acknowledges the outcome")

		var res gateway.Result
		decode(t, rec, &res)
		assert.Equal(t, txnID, res.TransactionID)
		return res
	}

	t.Run("pending", func(t *testing.T) {
		res := callback(t)
		assert.False(t, res.Success)
		assert.Equal(t, gateway.StatusPending, res.Status)
		assert.Equal(t, gateway.StateInitiated, res.State)
	})

	t.Run("completed", func(t *testing.T) {
		a.env.Gateway.SetStatus(txnID, gateway.StatusCompleted, "UPI")
		res := callback(t)
		assert.True(t, res.Success)
		assert.Equal(t, gateway.StatusCompleted, res.Status)
		assert.Equal(t, gateway.StateApplied, res.State)
		assert.Nil(t, res.Payment)
	})

	t.Run("replayed", func(t *testing.T) {
		_, before := a.env.Gateway.Calls()
		res := callback(t)
		assert.True(t, res.Success)
		assert.Equal(t, gateway.StateApplied, res.State)
		_, after := a.env.Gateway.Calls()
		assert.Equal(t, before, after, "an applied transaction is not re-checked with the provider")
	})

	got, err := a.env.Fees.Get(context.Background(), a.env.Context(t, s.Admin), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "5000", got.PaidAmount.String())
	assert.True(t, got.PendingAmount.IsZero())

	runHTTPTests(t, a, []httpTest{
		{
			name: "unknown transaction", method: http.MethodPost, path: "/api/v1/gateway/callback/TXN_20240101_000000",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: gateway.ErrTransactionNotFound.Error()}),
		},
	})
}

func Test_gatewayApi_serverCallback_providerDown(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	f := a.env.CreateFee(t, s, "5000", dueDate)
	txnID := checkout(t, a, f.ID, a.token(t, s.Pupil))

	a.env.Gateway.FailStatus(gateway.ErrGatewayUnavailable)
	req, rec := newRequest(http.MethodPost, "/api/v1/gateway/callback/"+txnID)
	a.do(req, rec)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var raw map[string]interface{}
	decode(t, rec, &raw)
	assert.Equal(t, true, raw["retry"])
	assert.Equal(t, gateway.ErrGatewayUnavailable.Error(), raw["error"])
}

func Test_gatewayApi_redirectCallback(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	paid := a.env.CreateFee(t, s, "5000", dueDate)
	paidTxn := checkout(t, a, paid.ID, a.token(t, s.Parent))
	a.env.Gateway.SetStatus(paidTxn, gateway.StatusCompleted, "CARD")

	failedFee := a.env.CreateFee(t, s.With(s.Student, a.env.CreateCategory(t, s.Org.ID, "Transport")), "1000", dueDate)
	failedTxn := checkout(t, a, failedFee.ID, a.token(t, s.Parent))
	a.env.Gateway.SetStatus(failedTxn, gateway.StatusFailed)

	resultURL := a.env.Conf.FrontendBaseURL + "/payments/result?"
	tests := []struct {
		name  string
		txnID string
		want  string
	}{
		{name: "completed", txnID: paidTxn, want: resultURL + "status=COMPLETED&transaction_id=" + paidTxn},
		{name: "replayed", txnID: paidTxn, want: resultURL + "status=COMPLETED&transaction_id=" + paidTxn},
		{name: "failed", txnID: failedTxn, want: resultURL + "status=FAILED&transaction_id=" + failedTxn},
		{name: "unknown", txnID: "TXN_20240101_000000", want: resultURL + "status=NOT_FOUND&transaction_id=TXN_20240101_000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, "/api/v1/gateway/callback/"+tt.txnID)
			a.do(req, rec)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))
		})
	}
}

func Test_paymentApi_transactionStatus(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	other := a.env.NewSchool(t, "lavington")
	f := a.env.CreateFee(t, s, "5000", dueDate)
	txnID := checkout(t, a, f.ID, a.token(t, s.Parent))
	a.env.Gateway.SetStatus(txnID, gateway.StatusCompleted, "UPI")
	path := "/api/v1/payments/transactions/" + txnID

	t.Run("before the callback", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, a.token(t, s.Parent))
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res gateway.Result
		decode(t, rec, &res)
		assert.Equal(t, gateway.StateInitiated, res.State)
		assert.False(t, res.Success)
	})

	req, rec := newRequest(http.MethodPost, "/api/v1/gateway/callback/"+txnID)
	a.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("after the callback", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, a.token(t, s.Parent))
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res gateway.Result
		decode(t, rec, &res)
		assert.Equal(t, gateway.StateApplied, res.State)
		assert.True(t, res.Success)
	})

	runHTTPTests(t, a, []httpTest{
		{name: "auth required", path: path, wantCode: http.StatusUnauthorized},
		{name: "another organization", path: path, token: a.token(t, other.Admin), wantCode: http.StatusNotFound},
	})
}
