package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/tenant"
)

var dueDate = time.Date(2030, time.January, 15, 0, 0, 0, 0, time.UTC)

func Test_feeApi_query(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	sibling := a.env.CreateStudent(t, s.Org.ID, "Baraka", "", "")
	other := a.env.NewSchool(t, "lavington")

	tuition := a.env.CreateFee(t, s, "5000", dueDate)
	siblingFee := a.env.CreateFee(t, s.With(sibling, s.Category), "7000", dueDate)
	a.env.CreateFee(t, other, "1000", dueDate)

	ids := func(t *testing.T, path, token string) []string {
		req, rec := newAuthRequest(http.MethodGet, path, token)
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var fees []fee.Fee
		decode(t, rec, &fees)
		res := make([]string, 0, len(fees))
		for _, f := range fees {
			res = append(res, f.ID)
		}
		return res
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  []string
	}{
		{name: "admin sees the organization", path: "/api/v1/fees?ordering=-total_fee", token: a.token(t, s.Admin), want: []string{siblingFee.ID, tuition.ID}},
		{name: "ordering ascending", path: "/api/v1/fees?ordering=total_fee", token: a.token(t, s.Admin), want: []string{tuition.ID, siblingFee.ID}},
		{name: "filter by student", path: "/api/v1/fees?student_id=" + sibling.ID, token: a.token(t, s.Admin), want: []string{siblingFee.ID}},
		{name: "parent sees their child", path: "/api/v1/fees", token: a.token(t, s.Parent), want: []string{tuition.ID}},
		{name: "student cannot widen the scope", path: "/api/v1/fees?student_id=" + sibling.ID, token: a.token(t, s.Pupil), want: []string{}},
		{name: "paid filter", path: "/api/v1/fees?status=PAID", token: a.token(t, s.Admin), want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(t, tt.path, tt.token))
		})
	}

	runHTTPTests(t, a, []httpTest{
		{name: "auth required", path: "/api/v1/fees", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "unknown ordering", path: "/api/v1/fees?ordering=-password", token: a.token(t, s.Admin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"ordering": "cannot order by password"}),
		},
		{
			name: "fee of another organization", path: "/api/v1/fees/" + tuition.ID, token: a.token(t, other.Admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: fee.ErrNotFound.Error()}),
		},
		{
			name: "fee of another student", path: "/api/v1/fees/" + siblingFee.ID, token: a.token(t, s.Parent),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: fee.ErrNotFound.Error()}),
		},
		{name: "own fee", path: "/api/v1/fees/" + tuition.ID, token: a.token(t, s.Pupil), wantCode: http.StatusOK},
	})
}

func Test_feeApi_create(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")

	newFee := func(total string) []byte {
		return marchallObj(t, fee.NewFee{
			StudentID:      s.Student.ID,
			CategoryID:     s.Category.ID,
			AcademicYearID: s.Year.ID,
			TotalFee:       decimal.RequireFromString(total),
			DueDate:        dueDate,
		})
	}

	runHTTPTests(t, a, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/api/v1/fees", body: newFee("5000"), token: a.token(t, s.Parent),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenant.ErrForbidden.Error()}),
		},
		{name: "non-positive total", method: http.MethodPost, path: "/api/v1/fees", body: newFee("0"), token: a.token(t, s.Admin), wantCode: http.StatusBadRequest},
		{name: "created", method: http.MethodPost, path: "/api/v1/fees", body: newFee("5000.004"), token: a.token(t, s.Admin), wantCode: http.StatusCreated},
		{
			name: "duplicate", method: http.MethodPost, path: "/api/v1/fees", body: newFee("5000"), token: a.token(t, s.Admin),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: fee.ErrDuplicateFee.Error()}),
		},
	})

	fees, err := a.env.Fees.Query(context.Background(), a.env.Context(t, s.Admin), fee.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, "5000", fees[0].TotalFee.String())
	assert.Equal(t, "5000", fees[0].PendingAmount.String())
	assert.Equal(t, fee.StatusUnpaid, fees[0].Status)
}

func Test_feeApi_recordPayment(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	f := a.env.CreateFee(t, s, "5000", dueDate)
	path := fmt.Sprintf("/api/v1/fees/%s/payments", f.ID)
	adminToken := a.token(t, s.Admin)

	pay := func(amount string) []byte {
		return marchallObj(t, map[string]string{"amount": amount, "payment_method": "CASH"})
	}
	post := func(body []byte, key string) (*payment.Payment, int, map[string]interface{}) {
		req, rec := newAuthRequest(http.MethodPost, path, adminToken, body)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		a.do(req, rec)
		var raw map[string]interface{}
		decode(t, rec, &raw)
		var p payment.Payment
		if rec.Code == http.StatusCreated {
			decode(t, rec, &p)
		}
		return &p, rec.Code, raw
	}

	t.Run("first payment", func(t *testing.T) {
		p, code, _ := post(pay("2000"), "counter-42")
		assert.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "counter-42", p.TransactionID)
		assert.Equal(t, payment.StatusCompleted, p.Status)
		assert.Equal(t, s.Admin.ID, p.RecordedBy.String)
	})

	t.Run("replayed key credits once", func(t *testing.T) {
		_, code, raw := post(pay("2000"), "counter-42")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "already_processed", raw["status"])
	})

	t.Run("key reused by another school", func(t *testing.T) {
		other := a.env.NewSchool(t, "lavington")
		otherFee := a.env.CreateFee(t, other, "5000", dueDate)
		req, rec := newAuthRequest(http.MethodPost, fmt.Sprintf("/api/v1/fees/%s/payments", otherFee.ID), a.token(t, other.Admin), pay("2000"))
		req.Header.Set("Idempotency-Key", "counter-42")
		a.do(req, rec)
		assert.Equal(t, http.StatusConflict, rec.Code)

		var raw map[string]interface{}
		decode(t, rec, &raw)
		assert.Equal(t, payment.ErrTransactionConflict.Error(), raw["error"])
		assert.NotContains(t, rec.Body.String(), f.ID)
	})

	t.Run("malformed payer", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"amount": "100", "payment_method": "CASH", "payer_id": "not-a-uuid"})
		_, code, raw := post(body, "")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, raw, "payer_id")
	})

	t.Run("overpayment", func(t *testing.T) {
		_, code, raw := post(pay("3000.01"), "")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, payment.ErrOverpayment.Error(), raw["error"])
	})

	t.Run("balance", func(t *testing.T) {
		got, err := a.env.Fees.Get(context.Background(), a.env.Context(t, s.Admin), f.ID)
		require.NoError(t, err)
		assert.Equal(t, "2000", got.PaidAmount.String())
		assert.Equal(t, "3000", got.PendingAmount.String())
	})

	runHTTPTests(t, a, []httpTest{
		{name: "admin required", method: http.MethodPost, path: path, body: pay("100"), token: a.token(t, s.Parent), wantCode: http.StatusForbidden},
		{name: "zero amount", method: http.MethodPost, path: path, body: pay("0"), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "unknown fee", method: http.MethodPost, path: "/api/v1/fees/nope/payments", body: pay("100"), token: adminToken, wantCode: http.StatusNotFound},
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, a.token(t, s.Parent))
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var payments []payment.Payment
		decode(t, rec, &payments)
		assert.Len(t, payments, 1)
	})
}

func Test_feeApi_checkout(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	f := a.env.CreateFee(t, s, "5000", dueDate)
	path := fmt.Sprintf("/api/v1/fees/%s/checkout", f.ID)

	runHTTPTests(t, a, []httpTest{
		{name: "admins do not pay online", method: http.MethodPost, path: path, token: a.token(t, s.Admin), wantCode: http.StatusForbidden},
	})

	req, rec := newAuthRequest(http.MethodPost, path, a.token(t, s.Parent))
	a.do(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res gateway.InitiateResult
	decode(t, rec, &res)
	assert.Regexp(t, `^TXN_\d{8}_[0-9A-F]{6}$`, res.TransactionID)
	assert.Equal(t, "https://pay.example.com/"+res.TransactionID, res.RedirectURL)
	assert.Equal(t, "5000", res.Amount.String())
	assert.Equal(t, "100", res.PlatformFee.String())

	t.Run("provider down", func(t *testing.T) {
		a.env.Gateway.FailPay(gateway.ErrGatewayUnavailable)
		req, rec := newAuthRequest(http.MethodPost, path, a.token(t, s.Pupil))
		a.do(req, rec)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var raw map[string]interface{}
		decode(t, rec, &raw)
		assert.Equal(t, true, raw["retry"])
	})
}

func Test_feeApi_setup(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	adminToken := a.token(t, s.Admin)

	runHTTPTests(t, a, []httpTest{
		{
			name: "category", method: http.MethodPost, path: "/api/v1/fee-categories", token: adminToken,
			body: []byte(`{"name": "Transport"}`), wantCode: http.StatusCreated,
		},
		{
			name: "duplicate category", method: http.MethodPost, path: "/api/v1/fee-categories", token: adminToken,
			body:     []byte(`{"name": "Tuition"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": fee.ErrDuplicateCategory.Error()}),
		},
		{
			name: "student", method: http.MethodPost, path: "/api/v1/students", token: adminToken,
			body: []byte(`{"name": "Baraka", "guardian_email": "baraka.parent@kilimani.test"}`), wantCode: http.StatusCreated,
		},
		{
			name: "student by a parent", method: http.MethodPost, path: "/api/v1/students", token: a.token(t, s.Parent),
			body: []byte(`{"name": "Baraka"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "academic year", method: http.MethodPost, path: "/api/v1/academic-years", token: adminToken,
			body:     []byte(`{"name": "2025-2026", "start_date": "2025-04-01T00:00:00Z", "end_date": "2026-03-31T00:00:00Z", "is_current": true}`),
			wantCode: http.StatusCreated,
		},
		{
			name: "academic year ending before it starts", method: http.MethodPost, path: "/api/v1/academic-years", token: adminToken,
			body:     []byte(`{"name": "2026-2027", "start_date": "2026-04-01T00:00:00Z", "end_date": "2026-03-31T00:00:00Z"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("categories", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/v1/fee-categories", a.token(t, s.Pupil))
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cats []fee.Category
		decode(t, rec, &cats)
		assert.Len(t, cats, 2)
	})

	t.Run("current academic year", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/v1/academic-years/current", a.token(t, s.Parent))
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var year fee.AcademicYear
		decode(t, rec, &year)
		assert.Equal(t, "2025-2026", year.Name)
		assert.True(t, year.IsCurrent)
	})
}

func Test_feeApi_summaryAndReminders(t *testing.T) {
	a := setup(t)
	s := a.env.NewSchool(t, "kilimani")
	a.env.CreateFee(t, s, "5000", dueDate)
	a.env.CreateFee(t, s.With(s.Student, a.env.CreateCategory(t, s.Org.ID, "Transport")), "1000", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	adminToken := a.token(t, s.Admin)

	t.Run("summary of the current year", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/v1/fees/summary", adminToken)
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var sum fee.Summary
		decode(t, rec, &sum)
		assert.Equal(t, s.Year.ID, sum.AcademicYearID)
		assert.Equal(t, 2, sum.FeeCount)
		assert.Equal(t, 1, sum.OverdueCount)
		assert.Equal(t, "6000", sum.TotalAmount.String())
		assert.Equal(t, "1000", sum.OverdueAmount.String())
	})

	runHTTPTests(t, a, []httpTest{
		{name: "summary is for admins", path: "/api/v1/fees/summary", token: a.token(t, s.Parent), wantCode: http.StatusForbidden},
		{name: "reminders are for admins", method: http.MethodPost, path: "/api/v1/fees/reminders", token: a.token(t, s.Pupil), wantCode: http.StatusForbidden},
	})

	t.Run("reminders", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/v1/fees/reminders?academic_year_id="+s.Year.ID, adminToken)
		a.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res fee.ReminderResult
		decode(t, rec, &res)
		assert.Equal(t, 2, res.Sent)
		assert.Equal(t, 0, res.Skipped)
	})
}
