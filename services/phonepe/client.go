// Package phonepe is the PhonePe payment gateway client (pay page checkout and status API).
package phonepe

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/gateway"
)

const (
	payPath    = "/pg/v1/pay"
	statusPath = "/pg/v1/status/"

	stateCompleted = "COMPLETED"
	stateFailed    = "FAILED"
	codePending    = "PAYMENT_PENDING"
)

type Client struct {
	merchantID string
	saltKey    string
	saltIndex  string
	hostURL    string
	rest       *rest.Client
}

var _ gateway.Client = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		merchantID: conf.Gateway.MerchantID,
		saltKey:    conf.Gateway.SaltKey,
		saltIndex:  conf.Gateway.SaltIndex,
		hostURL:    conf.Gateway.HostURL,
		rest:       &rest.Client{HTTPClient: &http.Client{Timeout: conf.Gateway.Timeout}},
	}
}

type (
	payPayload struct {
		MerchantID            string            `json:"merchantId"`
		MerchantTransactionID string            `json:"merchantTransactionId"`
		MerchantUserID        string            `json:"merchantUserId"`
		Amount                int64             `json:"amount"` // paise
		RedirectURL           string            `json:"redirectUrl"`
		RedirectMode          string            `json:"redirectMode"`
		CallbackURL           string            `json:"callbackUrl"`
		PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
	}

	paymentInstrument struct {
		Type string `json:"type"`
	}

	payResponse struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			InstrumentResponse struct {
				RedirectInfo struct {
					URL string `json:"url"`
				} `json:"redirectInfo"`
			} `json:"instrumentResponse"`
		} `json:"data"`
	}

	statusResponse struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			State             string            `json:"state"`
			PaymentInstrument paymentInstrument `json:"paymentInstrument"`
		} `json:"data"`
	}
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *Client) checksum(s string) string {
	return sha256Hex(s+c.saltKey) + "###" + c.saltIndex
}

// merchantUserID is alphanumeric and at most 36 chars long.
func merchantUserID(payerID string) string {
	id := "MUID" + strings.ReplaceAll(payerID, "-", "")
	if len(id) > 36 {
		id = id[:36]
	}
	return id
}

func toPaise(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (c *Client) send(ctx context.Context, req rest.Request) (*rest.Response, error) {
	res, err := c.rest.SendWithContext(ctx, req)
	if err != nil {
		return nil, errors.Wrap(gateway.ErrGatewayUnavailable, err.Error())
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Wrapf(gateway.ErrGatewayUnavailable, "status %d", res.StatusCode)
	}
	return res, nil
}

func (c *Client) Pay(ctx context.Context, pr gateway.PayRequest) (gateway.PayResponse, error) {
	payload, err := json.Marshal(payPayload{
		MerchantID:            c.merchantID,
		MerchantTransactionID: pr.TransactionID,
		MerchantUserID:        merchantUserID(pr.PayerID),
		Amount:                toPaise(pr.Amount),
		RedirectURL:           pr.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           pr.CallbackURL,
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return gateway.PayResponse{}, errors.Wrap(err, "encoding pay payload")
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return gateway.PayResponse{}, errors.Wrap(err, "encoding pay request")
	}

	res, err := c.send(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.hostURL + payPath,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Content-Type":  "application/json",
			"X-VERIFY":      c.checksum(encoded + payPath),
			"X-MERCHANT-ID": c.merchantID,
		},
		Body: body,
	})
	if err != nil {
		return gateway.PayResponse{}, err
	}

	var pres payResponse
	if err = json.Unmarshal([]byte(res.Body), &pres); err != nil {
		return gateway.PayResponse{}, errors.Wrapf(gateway.ErrPaymentRejected, "status %d: invalid body", res.StatusCode)
	}
	url := pres.Data.InstrumentResponse.RedirectInfo.URL
	if res.StatusCode >= http.StatusBadRequest || !pres.Success || url == "" {
		msg := pres.Message
		if msg == "" {
			msg = pres.Code
		}
		return gateway.PayResponse{}, errors.Wrap(gateway.ErrPaymentRejected, msg)
	}
	return gateway.PayResponse{RedirectURL: url}, nil
}

// CheckStatus asks the provider for the authoritative state of a transaction.
// Only success with state COMPLETED counts as paid.
func (c *Client) CheckStatus(ctx context.Context, transactionID string) (gateway.StatusResponse, error) {
	relativeURL := statusPath + c.merchantID + "/" + transactionID

	res, err := c.send(ctx, rest.Request{
		Method:  rest.Get,
		BaseURL: c.hostURL + relativeURL,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"X-VERIFY":      c.checksum(relativeURL),
			"X-MERCHANT-ID": c.merchantID,
		},
	})
	if err != nil {
		return gateway.StatusResponse{}, err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return gateway.StatusResponse{}, errors.Wrapf(gateway.ErrGatewayUnavailable, "status %d", res.StatusCode)
	}

	var sres statusResponse
	if err = json.Unmarshal([]byte(res.Body), &sres); err != nil {
		return gateway.StatusResponse{}, errors.Wrap(gateway.ErrGatewayUnavailable, "invalid status body")
	}

	st := gateway.StatusResponse{
		Status:       gateway.StatusPending,
		GatewayState: sres.Data.State,
		Instrument:   strings.ToUpper(sres.Data.PaymentInstrument.Type),
		Message:      sres.Message,
	}
	if st.GatewayState == "" {
		st.GatewayState = sres.Code
	}
	switch {
	case sres.Success && sres.Data.State == stateCompleted:
		st.Status = gateway.StatusCompleted
	case sres.Code == codePending:
	case !sres.Success || sres.Data.State == stateFailed:
		st.Status = gateway.StatusFailed
	}
	return st, nil
}
