package phonepe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/gateway"
)

func newTestClient(url string) *Client {
	conf := &core.Config{}
	conf.Gateway.MerchantID = "MERCHANT1"
	conf.Gateway.SaltKey = "salt"
	conf.Gateway.SaltIndex = "1"
	conf.Gateway.HostURL = url
	conf.Gateway.Timeout = 5 * time.Second
	return NewClient(conf)
}

func TestClient_Pay(t *testing.T) {
	var gotPayload payPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, payPath, r.URL.Path)

		var body struct{ Request string }
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, sha256Hex(body.Request+payPath+"salt")+"###1", r.Header.Get("X-VERIFY"))
		assert.Equal(t, "MERCHANT1", r.Header.Get("X-MERCHANT-ID"))

		raw, err := base64.StdEncoding.DecodeString(body.Request)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotPayload))

		switch gotPayload.MerchantTransactionID {
		case "TXN_OK":
			_, _ = io.WriteString(w, `{"success":true,"code":"PAYMENT_INITIATED","data":{"instrumentResponse":{"redirectInfo":{"url":"https://pay.example.com/abc"}}}}`)
		case "TXN_REJECTED":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"success":false,"code":"BAD_REQUEST","message":"Please check the inputs you have provided."}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	tests := []struct {
		name         string
		txnID        string
		wantRedirect string
		wantErr      error
	}{
		{name: "redirect", txnID: "TXN_OK", wantRedirect: "https://pay.example.com/abc"},
		{name: "rejected", txnID: "TXN_REJECTED", wantErr: gateway.ErrPaymentRejected},
		{name: "provider down", txnID: "TXN_DOWN", wantErr: gateway.ErrGatewayUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := client.Pay(context.Background(), gateway.PayRequest{
				TransactionID: tt.txnID,
				PayerID:       "8c4e2f5e-2b1d-4a52-9a57-6a8f5e0d1c11",
				Amount:        decimal.RequireFromString("5100.00"),
				RedirectURL:   "http://app/api/v1/gateway/callback/" + tt.txnID,
				CallbackURL:   "http://app/api/v1/gateway/callback/" + tt.txnID,
			})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRedirect, res.RedirectURL)

			assert.Equal(t, int64(510000), gotPayload.Amount)
			assert.Equal(t, "REDIRECT", gotPayload.RedirectMode)
			assert.Equal(t, "PAY_PAGE", gotPayload.PaymentInstrument.Type)
			assert.Equal(t, "MUID8c4e2f5e2b1d4a529a576a8f5e0d1c11", gotPayload.MerchantUserID)
		})
	}
}

func TestClient_CheckStatus(t *testing.T) {
	responses := map[string]string{
		"TXN_PAID":       `{"success":true,"code":"PAYMENT_SUCCESS","data":{"state":"COMPLETED","paymentInstrument":{"type":"UPI"}}}`,
		"TXN_CARD":       `{"success":true,"code":"PAYMENT_SUCCESS","data":{"state":"COMPLETED","paymentInstrument":{"type":"card"}}}`,
		"TXN_FAILED":     `{"success":true,"code":"PAYMENT_ERROR","data":{"state":"FAILED"}}`,
		"TXN_DECLINED":   `{"success":false,"code":"PAYMENT_DECLINED","message":"declined"}`,
		"TXN_PENDING":    `{"success":false,"code":"PAYMENT_PENDING","data":{"state":"PENDING"}}`,
		"TXN_SUCCESS_NC": `{"success":true,"code":"PAYMENT_SUCCESS","data":{"state":"PENDING"}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		txnID := r.URL.Path[len(statusPath+"MERCHANT1/"):]
		assert.Equal(t, sha256Hex(r.URL.Path+"salt")+"###1", r.Header.Get("X-VERIFY"))

		body, ok := responses[txnID]
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	tests := []struct {
		txnID          string
		wantStatus     gateway.Status
		wantInstrument string
		wantErr        error
	}{
		{txnID: "TXN_PAID", wantStatus: gateway.StatusCompleted, wantInstrument: "UPI"},
		{txnID: "TXN_CARD", wantStatus: gateway.StatusCompleted, wantInstrument: "CARD"},
		{txnID: "TXN_FAILED", wantStatus: gateway.StatusFailed},
		{txnID: "TXN_DECLINED", wantStatus: gateway.StatusFailed},
		{txnID: "TXN_PENDING", wantStatus: gateway.StatusPending},
		{txnID: "TXN_SUCCESS_NC", wantStatus: gateway.StatusPending},
		{txnID: "TXN_UNKNOWN", wantErr: gateway.ErrGatewayUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.txnID, func(t *testing.T) {
			st, err := client.CheckStatus(context.Background(), tt.txnID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, st.Status)
			assert.Equal(t, tt.wantInstrument, st.Instrument)
		})
	}
}

func TestClient_unreachable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.CheckStatus(context.Background(), "TXN_1")
	assert.Equal(t, gateway.ErrGatewayUnavailable, errors.Cause(err))
}
