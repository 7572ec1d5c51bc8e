// Package payment implements the LINE Pay v3 client used as the external
// payment gateway: Reserve opens a payment session, Confirm captures it.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kioskpay/smart-checkout/internal/domain/order"
)

const (
	productionBaseURL = "https://api-pay.line.me"
	sandboxBaseURL    = "https://sandbox-api-pay.line.me"

	// successCode is the returnCode the API uses for a successful call.
	successCode = "0000"
)

// GatewayError is a rejection reported by the payment provider. The order
// stays pending; the caller may retry confirmation later.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("linepay: returnCode %s: %s", e.Code, e.Message)
}

// Config holds the LINE Pay channel credentials and checkout branding.
type Config struct {
	ChannelID     string
	ChannelSecret string
	Sandbox       bool
	// StoreName is shown on the provider's payment screen.
	StoreName string
	// ProductImageURL illustrates the single pseudo-product the reserve
	// call carries (the register does not expose per-item packages).
	ProductImageURL string
	// CancelURL is where the provider redirects an abandoned payment.
	CancelURL string
}

var _ order.Gateway = (*Client)(nil)

// Client is an HTTP client for the LINE Pay v3 API. Requests are signed with
// HMAC-SHA256 over secret+path+body+nonce as the API requires.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
}

// NewClient creates a LINE Pay client. httpClient may be nil, in which case
// a client with a 10s timeout is used.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	base := productionBaseURL
	if cfg.Sandbox {
		base = sandboxBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, baseURL: base, http: httpClient}
}

// Reserve opens a payment session for the order and returns the provider's
// raw response payload (transaction id and redirect payment URL).
func (c *Client) Reserve(ctx context.Context, req order.ReserveRequest) ([]byte, error) {
	amount := req.Amount.IntPart()

	var w jx.Writer
	w.ObjStart()
	w.FieldStart("amount")
	w.Int64(amount)
	w.Comma()
	w.FieldStart("currency")
	w.Str(req.Currency)
	w.Comma()
	w.FieldStart("orderId")
	w.Str(req.OrderID)
	w.Comma()
	w.FieldStart("packages")
	w.ArrStart()
	w.ObjStart()
	w.FieldStart("id")
	w.Str("1")
	w.Comma()
	w.FieldStart("amount")
	w.Int64(amount)
	w.Comma()
	w.FieldStart("name")
	w.Str(c.cfg.StoreName)
	w.Comma()
	w.FieldStart("products")
	w.ArrStart()
	w.ObjStart()
	w.FieldStart("name")
	w.Str("purchase")
	w.Comma()
	w.FieldStart("imageUrl")
	w.Str(c.cfg.ProductImageURL)
	w.Comma()
	w.FieldStart("quantity")
	w.Int(1)
	w.Comma()
	w.FieldStart("price")
	w.Int64(amount)
	w.ObjEnd()
	w.ArrEnd()
	w.ObjEnd()
	w.ArrEnd()
	w.Comma()
	w.FieldStart("redirectUrls")
	w.ObjStart()
	w.FieldStart("confirmUrl")
	w.Str(req.ConfirmURL)
	w.Comma()
	w.FieldStart("cancelUrl")
	w.Str(c.cfg.CancelURL)
	w.ObjEnd()
	w.Comma()
	w.FieldStart("options")
	w.ObjStart()
	w.FieldStart("payment")
	w.ObjStart()
	w.FieldStart("capture")
	w.Bool(true)
	w.ObjEnd()
	w.ObjEnd()
	w.ObjEnd()

	return c.post(ctx, "/v3/payments/request", w.Buf)
}

// Confirm captures the charge for the given transaction and returns the raw
// receipt payload. A non-success returnCode becomes a *GatewayError.
func (c *Client) Confirm(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) ([]byte, error) {
	var w jx.Writer
	w.ObjStart()
	w.FieldStart("amount")
	w.Int64(amount.IntPart())
	w.Comma()
	w.FieldStart("currency")
	w.Str(currency)
	w.ObjEnd()

	path := "/v3/payments/" + transactionID + "/confirm"
	return c.post(ctx, path, w.Buf)
}

// post signs and sends the request, verifies the envelope returnCode, and
// returns the raw response body.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	nonce := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-LINE-ChannelId", c.cfg.ChannelID)
	req.Header.Set("X-LINE-Authorization-Nonce", nonce)
	req.Header.Set("X-LINE-Authorization", c.sign(path, body, nonce))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call linepay")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read linepay response")
	}

	code, message, err := decodeEnvelope(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode linepay response (status %d)", resp.StatusCode)
	}
	if code != successCode {
		return nil, &GatewayError{Code: code, Message: message}
	}
	return raw, nil
}

// sign computes base64(HMAC-SHA256(secret, secret + path + body + nonce)).
func (c *Client) sign(path string, body []byte, nonce string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.ChannelSecret))
	mac.Write([]byte(c.cfg.ChannelSecret))
	mac.Write([]byte(path))
	mac.Write(body)
	mac.Write([]byte(nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// decodeEnvelope extracts returnCode and returnMessage from the response,
// skipping the rest.
func decodeEnvelope(raw []byte) (code, message string, err error) {
	d := jx.DecodeBytes(raw)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "returnCode":
			v, err := d.Str()
			if err != nil {
				return err
			}
			code = v
		case "returnMessage":
			v, err := d.Str()
			if err != nil {
				return err
			}
			message = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	if code == "" {
		return "", "", errors.New("missing returnCode")
	}
	return code, message, nil
}
