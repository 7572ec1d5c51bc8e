package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioskpay/smart-checkout/internal/domain/order"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		ChannelID:     "1650000000",
		ChannelSecret: "test-secret",
		StoreName:     "Use Case Store",
		CancelURL:     "https://shop.example/cancel",
	}, srv.Client())
	c.baseURL = srv.URL
	return c
}

func TestConfirm_Success(t *testing.T) {
	var (
		gotPath string
		gotBody []byte
		gotReq  *http.Request
	)
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		gotReq = r
		_, _ = w.Write([]byte(`{"returnCode":"0000","returnMessage":"Success.","info":{"transactionId":20260314}}`))
	})

	raw, err := c.Confirm(context.Background(), "20260314", decimal.NewFromInt(320), "JPY")
	require.NoError(t, err)

	assert.Equal(t, "/v3/payments/20260314/confirm", gotPath)
	assert.JSONEq(t, `{"amount":320,"currency":"JPY"}`, string(gotBody))
	assert.Contains(t, string(raw), `"transactionId":20260314`)

	// Signature must be HMAC-SHA256 over secret + path + body + nonce.
	nonce := gotReq.Header.Get("X-LINE-Authorization-Nonce")
	require.NotEmpty(t, nonce)
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte("test-secret" + gotPath + string(gotBody) + nonce))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, gotReq.Header.Get("X-LINE-Authorization"))
	assert.Equal(t, "1650000000", gotReq.Header.Get("X-LINE-ChannelId"))
}

func TestConfirm_GatewayRejection(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"returnCode":"1141","returnMessage":"Account status error."}`))
	})

	_, err := c.Confirm(context.Background(), "tx-1", decimal.NewFromInt(100), "JPY")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "1141", gwErr.Code)
	assert.Equal(t, "Account status error.", gwErr.Message)
}

func TestConfirm_MalformedEnvelope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>upstream error</html>`))
	})

	_, err := c.Confirm(context.Background(), "tx-1", decimal.NewFromInt(100), "JPY")
	require.Error(t, err)
}

func TestReserve_BuildsPayload(t *testing.T) {
	var gotBody []byte
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"returnCode":"0000","info":{"paymentUrl":{"web":"https://pay.example/web"}}}`))
	})

	raw, err := c.Reserve(context.Background(), order.ReserveRequest{
		OrderID:    "ord-1",
		Amount:     decimal.NewFromInt(590),
		Currency:   "JPY",
		ConfirmURL: "https://shop.example/confirm",
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "paymentUrl")

	var body struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		OrderID  string `json:"orderId"`
		Packages []struct {
			Amount   int64  `json:"amount"`
			Name     string `json:"name"`
			Products []struct {
				Price int64 `json:"price"`
			} `json:"products"`
		} `json:"packages"`
		RedirectUrls struct {
			ConfirmURL string `json:"confirmUrl"`
			CancelURL  string `json:"cancelUrl"`
		} `json:"redirectUrls"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &body))

	assert.Equal(t, int64(590), body.Amount)
	assert.Equal(t, "JPY", body.Currency)
	assert.Equal(t, "ord-1", body.OrderID)
	require.Len(t, body.Packages, 1)
	assert.Equal(t, int64(590), body.Packages[0].Amount)
	assert.Equal(t, "Use Case Store", body.Packages[0].Name)
	require.Len(t, body.Packages[0].Products, 1)
	assert.Equal(t, int64(590), body.Packages[0].Products[0].Price)
	assert.Equal(t, "https://shop.example/confirm", body.RedirectUrls.ConfirmURL)
	assert.Equal(t, "https://shop.example/cancel", body.RedirectUrls.CancelURL)
}
