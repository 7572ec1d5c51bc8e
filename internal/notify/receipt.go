// Package notify delivers purchase receipts to users over the LINE
// Messaging API. Delivery is best-effort: failures are logged and never
// surface to the payment flow.
package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
	"github.com/kioskpay/smart-checkout/internal/domain/order"
)

const pushEndpoint = "https://api.line.me/v2/bot/message/push"

// Config holds messaging channel credentials and receipt presentation.
type Config struct {
	ChannelAccessToken string
	StoreName          string
	// DetailsURL is the base page linked from the receipt; the order id is
	// appended as a query parameter.
	DetailsURL string
}

var _ order.Notifier = (*Dispatcher)(nil)

// Dispatcher renders an itemised receipt as a flex message and pushes it to
// the purchasing user.
type Dispatcher struct {
	cfg  Config
	http *http.Client
	lg   *zap.Logger
}

// NewDispatcher creates a Dispatcher. httpClient may be nil, in which case a
// client with a 10s timeout is used.
func NewDispatcher(cfg Config, httpClient *http.Client, lg *zap.Logger) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Dispatcher{cfg: cfg, http: httpClient, lg: lg}
}

// SendReceipt pushes the receipt for a settled order. Errors are logged,
// not returned: a lost receipt never fails a completed payment.
func (d *Dispatcher) SendReceipt(ctx context.Context, o *order.Order, paidAt time.Time) {
	body := d.buildPush(o, paidAt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushEndpoint, bytes.NewReader(body))
	if err != nil {
		d.lg.Error("build receipt push request", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.ChannelAccessToken)

	resp, err := d.http.Do(req)
	if err != nil {
		d.lg.Error("push receipt", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		d.lg.Error("push receipt rejected",
			zap.String("order_id", o.ID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", detail),
		)
		return
	}

	d.lg.Info("receipt sent", zap.String("order_id", o.ID), zap.String("user_id", o.UserID))
}

// buildPush renders the push-message envelope with a flex receipt bubble:
// store name, one row per line with quantity and price, the order discount
// when present, the total, the settlement time, and a details link.
func (d *Dispatcher) buildPush(o *order.Order, paidAt time.Time) []byte {
	detailsURL := d.cfg.DetailsURL + "?orderId=" + o.ID

	var w jx.Writer
	w.ObjStart()
	w.FieldStart("to")
	w.Str(o.UserID)
	w.Comma()
	w.FieldStart("messages")
	w.ArrStart()
	w.ObjStart()
	w.FieldStart("type")
	w.Str("flex")
	w.Comma()
	w.FieldStart("altText")
	w.Str("Receipt " + d.cfg.StoreName)
	w.Comma()
	w.FieldStart("contents")
	w.ObjStart()
	w.FieldStart("type")
	w.Str("bubble")
	w.Comma()
	w.FieldStart("body")
	w.ObjStart()
	w.FieldStart("type")
	w.Str("box")
	w.Comma()
	w.FieldStart("layout")
	w.Str("vertical")
	w.Comma()
	w.FieldStart("contents")
	w.ArrStart()

	textRow(&w, "RECEIPT", "sm", "#1DB446")
	w.Comma()
	textRow(&w, d.cfg.StoreName, "xl", "#000000")
	for _, l := range o.Lines {
		w.Comma()
		lineRow(&w, l)
	}
	if o.Discount != nil {
		w.Comma()
		priceRow(&w, "discount", discountLabel(o.Discount))
	}
	w.Comma()
	priceRow(&w, "TOTAL", "¥"+o.Amount.StringFixed(0))
	w.Comma()
	textRow(&w, paidAt.Format("2006/01/02 15:04:05"), "xs", "#aaaaaa")
	w.Comma()
	linkRow(&w, "details", detailsURL)

	w.ArrEnd()
	w.ObjEnd()
	w.ObjEnd()
	w.ObjEnd()
	w.ArrEnd()
	w.ObjEnd()

	return w.Buf
}

func textRow(w *jx.Writer, text, size, color string) {
	w.ObjStart()
	w.FieldStart("type")
	w.Str("text")
	w.Comma()
	w.FieldStart("text")
	w.Str(text)
	w.Comma()
	w.FieldStart("size")
	w.Str(size)
	w.Comma()
	w.FieldStart("color")
	w.Str(color)
	w.ObjEnd()
}

func lineRow(w *jx.Writer, l order.Line) {
	label := l.ItemName
	if l.Quantity > 1 {
		label += " x" + strconv.Itoa(l.Quantity)
	}
	price := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
	priceRow(w, label, "¥"+price.StringFixed(0))
}

func priceRow(w *jx.Writer, label, value string) {
	w.ObjStart()
	w.FieldStart("type")
	w.Str("box")
	w.Comma()
	w.FieldStart("layout")
	w.Str("horizontal")
	w.Comma()
	w.FieldStart("contents")
	w.ArrStart()
	w.ObjStart()
	w.FieldStart("type")
	w.Str("text")
	w.Comma()
	w.FieldStart("text")
	w.Str(label)
	w.Comma()
	w.FieldStart("size")
	w.Str("sm")
	w.Comma()
	w.FieldStart("flex")
	w.Int(4)
	w.ObjEnd()
	w.Comma()
	w.ObjStart()
	w.FieldStart("type")
	w.Str("text")
	w.Comma()
	w.FieldStart("text")
	w.Str(value)
	w.Comma()
	w.FieldStart("size")
	w.Str("sm")
	w.Comma()
	w.FieldStart("align")
	w.Str("end")
	w.ObjEnd()
	w.ArrEnd()
	w.ObjEnd()
}

func linkRow(w *jx.Writer, label, uri string) {
	w.ObjStart()
	w.FieldStart("type")
	w.Str("button")
	w.Comma()
	w.FieldStart("style")
	w.Str("link")
	w.Comma()
	w.FieldStart("action")
	w.ObjStart()
	w.FieldStart("type")
	w.Str("uri")
	w.Comma()
	w.FieldStart("label")
	w.Str(label)
	w.Comma()
	w.FieldStart("uri")
	w.Str(uri)
	w.ObjEnd()
	w.ObjEnd()
}

func discountLabel(d *order.Discount) string {
	if d.Way == catalog.DiscountPercentage {
		return "-" + d.Rate.StringFixed(0) + "%"
	}
	return "-¥" + d.Rate.StringFixed(0)
}
