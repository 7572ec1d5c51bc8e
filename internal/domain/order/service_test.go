package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kioskpay/smart-checkout/internal/domain/catalog"
)

// --- Mock implementations ---

type mockItemRepo struct {
	byBarcode map[string]*catalog.Item
}

func (m *mockItemRepo) GetByBarcode(_ context.Context, barcode string) (*catalog.Item, error) {
	it, ok := m.byBarcode[barcode]
	if !ok {
		return nil, &catalog.ItemNotFoundError{Barcode: barcode}
	}
	return it, nil
}

type mockCouponRepo struct {
	byID map[string]*catalog.Coupon
}

func (m *mockCouponRepo) GetByID(_ context.Context, id string) (*catalog.Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, &catalog.CouponNotFoundError{CouponID: id}
	}
	return c, nil
}

func (m *mockCouponRepo) ListActive(_ context.Context) ([]catalog.Coupon, error) {
	return nil, nil
}

type mockStore struct {
	orders map[string]*Order

	insertConflicts int // remaining InsertIfAbsent calls answered with ErrConflict
	insertErr       error
	updateErr       error
	settleErr       error

	inserted []*Order
	updated  []*Order
	settled  []string
}

func newMockStore(existing ...*Order) *mockStore {
	s := &mockStore{orders: make(map[string]*Order)}
	for _, o := range existing {
		s.orders[o.ID] = o
	}
	return s
}

func (m *mockStore) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) InsertIfAbsent(_ context.Context, o *Order) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if m.insertConflicts > 0 {
		m.insertConflicts--
		return ErrConflict
	}
	if _, ok := m.orders[o.ID]; ok {
		return ErrConflict
	}
	cp := *o
	m.orders[o.ID] = &cp
	m.inserted = append(m.inserted, &cp)
	return nil
}

func (m *mockStore) UpdateIfPending(_ context.Context, o *Order) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	existing, ok := m.orders[o.ID]
	if !ok || existing.Paid() {
		return ErrPreconditionFailed
	}
	cp := *o
	cp.CreatedAt = existing.CreatedAt
	cp.ExpiresAt = existing.ExpiresAt
	m.orders[o.ID] = &cp
	m.updated = append(m.updated, &cp)
	return nil
}

func (m *mockStore) SettleIfPending(_ context.Context, id, transactionID string, paidAt, expiresAt time.Time) error {
	if m.settleErr != nil {
		return m.settleErr
	}
	existing, ok := m.orders[id]
	if !ok || existing.Paid() {
		return ErrPreconditionFailed
	}
	existing.TransactionID = transactionID
	existing.PaidAt = &paidAt
	existing.ExpiresAt = expiresAt
	m.settled = append(m.settled, id)
	return nil
}

func (m *mockStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockStore) GetByUserAndOrder(_ context.Context, userID, orderID string) (*Order, error) {
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type mockGateway struct {
	reserveResp []byte
	reserveErr  error
	confirmResp []byte
	confirmErr  error

	confirmCalls int
	lastAmount   decimal.Decimal
}

func (m *mockGateway) Reserve(_ context.Context, _ ReserveRequest) ([]byte, error) {
	return m.reserveResp, m.reserveErr
}

func (m *mockGateway) Confirm(_ context.Context, _ string, amount decimal.Decimal, _ string) ([]byte, error) {
	m.confirmCalls++
	m.lastAmount = amount
	return m.confirmResp, m.confirmErr
}

type mockNotifier struct {
	receipts []string // order ids
}

func (m *mockNotifier) SendReceipt(_ context.Context, o *Order, _ time.Time) {
	m.receipts = append(m.receipts, o.ID)
}

// --- Helpers ---

var tokyo = time.FixedZone("JST", 9*60*60)

type fixture struct {
	svc    *Service
	store  *mockStore
	gw     *mockGateway
	notify *mockNotifier
}

func newFixture(t *testing.T, store *mockStore) *fixture {
	t.Helper()

	items := &mockItemRepo{byBarcode: map[string]*catalog.Item{
		"4901": {Barcode: "4901", Name: "Onigiri", Price: decimal.NewFromInt(150), ImageURL: "onigiri.png"},
		"4902": {Barcode: "4902", Name: "Green Tea", Price: decimal.NewFromInt(120)},
		"4903": {Barcode: "4903", Name: "Sample Pack", Price: decimal.NewFromInt(0)},
	}}
	coupons := &mockCouponRepo{byID: map[string]*catalog.Coupon{
		"c-half":   {ID: "c-half", DiscountWay: catalog.DiscountPercentage, DiscountRate: decimal.NewFromInt(50)},
		"c-100off": {ID: "c-100off", DiscountWay: catalog.DiscountFixed, DiscountRate: decimal.NewFromInt(100)},
		"c-free":   {ID: "c-free", DiscountWay: catalog.DiscountPercentage, DiscountRate: decimal.NewFromInt(100)},
	}}

	gw := &mockGateway{confirmResp: []byte(`{"returnCode":"0000"}`)}
	n := &mockNotifier{}

	svc := NewService(items, coupons, store, gw, n, tokyo)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 26, 0, tokyo)
	}
	ids := []string{"id-1", "id-2", "id-3"}
	svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	return &fixture{svc: svc, store: store, gw: gw, notify: n}
}

// --- Create ---

func TestCreate_PersistsPricedOrder(t *testing.T) {
	f := newFixture(t, newMockStore())

	id, err := f.svc.Create(context.Background(), PutRequest{
		UserID: "u1",
		Items: []LineRequest{
			{Barcode: "4901", Quantity: 2},
			{Barcode: "4902", Quantity: 1, CouponID: "c-100off"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	stored := f.store.orders["id-1"]
	require.NotNil(t, stored)
	// 150*2 + (120-100)*1 = 320
	assert.True(t, decimal.NewFromInt(320).Equal(stored.Amount), "got %s", stored.Amount)
	assert.Equal(t, TransactionUnpaid, stored.TransactionID)
	assert.Nil(t, stored.PaidAt)
	assert.Equal(t, "Onigiri", stored.Lines[0].ItemName)
	assert.Empty(t, f.notify.receipts)
}

func TestCreate_ExpiresAtNextLocalMidnight(t *testing.T) {
	f := newFixture(t, newMockStore())

	_, err := f.svc.Create(context.Background(), PutRequest{
		UserID: "u1",
		Items:  []LineRequest{{Barcode: "4901", Quantity: 1}},
	})
	require.NoError(t, err)

	want := time.Date(2026, 3, 15, 0, 0, 0, 0, tokyo)
	assert.True(t, want.Equal(f.store.orders["id-1"].ExpiresAt))
}

func TestCreate_ZeroAmountAutoPaid(t *testing.T) {
	f := newFixture(t, newMockStore())

	id, err := f.svc.Create(context.Background(), PutRequest{
		UserID:   "u1",
		Items:    []LineRequest{{Barcode: "4901", Quantity: 1}},
		CouponID: "c-free",
	})

	require.NoError(t, err)
	assert.Empty(t, id, "zero-amount create must report no order id")

	stored := f.store.orders["id-1"]
	require.NotNil(t, stored)
	assert.True(t, stored.Amount.IsZero())
	assert.Equal(t, TransactionCash, stored.TransactionID)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, []string{"id-1"}, f.notify.receipts)
	assert.Zero(t, f.gw.confirmCalls, "zero-amount order must not touch the gateway")
}

func TestCreate_CollisionRetriesOnce(t *testing.T) {
	store := newMockStore()
	store.insertConflicts = 1
	f := newFixture(t, store)

	id, err := f.svc.Create(context.Background(), PutRequest{
		UserID: "u1",
		Items:  []LineRequest{{Barcode: "4901", Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, "id-2", id, "retry must use a regenerated id")
	require.Len(t, f.store.inserted, 1)
	assert.Equal(t, "id-2", f.store.inserted[0].ID)
}

func TestCreate_SecondCollisionIsFatal(t *testing.T) {
	store := newMockStore()
	store.insertConflicts = 2
	f := newFixture(t, store)

	_, err := f.svc.Create(context.Background(), PutRequest{
		UserID: "u1",
		Items:  []LineRequest{{Barcode: "4901", Quantity: 1}},
	})

	require.ErrorIs(t, err, ErrIDCollision)
	assert.Empty(t, f.store.inserted)
}

func TestCreate_ItemNotFound(t *testing.T) {
	f := newFixture(t, newMockStore())

	_, err := f.svc.Create(context.Background(), PutRequest{
		UserID: "u1",
		Items:  []LineRequest{{Barcode: "9999", Quantity: 1}},
	})

	var nf *catalog.ItemNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "9999", nf.Barcode)
	assert.Empty(t, f.store.inserted, "no mutation on NotFound")
}

func TestCreate_CouponNotFound(t *testing.T) {
	f := newFixture(t, newMockStore())

	_, err := f.svc.Create(context.Background(), PutRequest{
		UserID:   "u1",
		Items:    []LineRequest{{Barcode: "4901", Quantity: 1}},
		CouponID: "c-missing",
	})

	var nf *catalog.CouponNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Empty(t, f.store.inserted)
}

func TestCreate_EmptyItems(t *testing.T) {
	f := newFixture(t, newMockStore())

	_, err := f.svc.Create(context.Background(), PutRequest{UserID: "u1"})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	f := newFixture(t, newMockStore())

	_, err := f.svc.Create(context.Background(), PutRequest{
		UserID: "u1",
		Items:  []LineRequest{{Barcode: "4901", Quantity: 0}},
	})

	var iq *InvalidQuantityError
	require.ErrorAs(t, err, &iq)
	assert.Equal(t, "4901", iq.Barcode)
}

// --- Update ---

func pendingOrder(id, userID string, amount int64) *Order {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, tokyo)
	return &Order{
		ID:            id,
		UserID:        userID,
		Lines:         []Line{{Barcode: "4901", ItemName: "Onigiri", UnitPrice: decimal.NewFromInt(150), Quantity: 1}},
		Amount:        decimal.NewFromInt(amount),
		TransactionID: TransactionUnpaid,
		CreatedAt:     created,
		UpdatedAt:     created,
		ExpiresAt:     time.Date(2026, 3, 15, 0, 0, 0, 0, tokyo),
	}
}

func paidOrder(id, userID string, amount int64) *Order {
	o := pendingOrder(id, userID, amount)
	paid := o.CreatedAt.Add(time.Hour)
	o.TransactionID = "tx-settled"
	o.PaidAt = &paid
	return o
}

func TestUpdate_RepricesPendingOrder(t *testing.T) {
	f := newFixture(t, newMockStore(pendingOrder("ord-1", "u1", 150)))

	id, err := f.svc.Update(context.Background(), "ord-1", PutRequest{
		UserID:   "u1",
		Items:    []LineRequest{{Barcode: "4901", Quantity: 2}},
		CouponID: "c-half",
	})

	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)

	stored := f.store.orders["ord-1"]
	// floor(150*2 * 0.5) = 150
	assert.True(t, decimal.NewFromInt(150).Equal(stored.Amount), "got %s", stored.Amount)
}

func TestUpdate_KeepsExpiration(t *testing.T) {
	orig := pendingOrder("ord-1", "u1", 150)
	f := newFixture(t, newMockStore(orig))

	_, err := f.svc.Update(context.Background(), "ord-1", PutRequest{
		UserID: "u1",
		Items:  []LineRequest{{Barcode: "4902", Quantity: 1}},
	})

	require.NoError(t, err)
	assert.True(t, orig.ExpiresAt.Equal(f.store.orders["ord-1"].ExpiresAt),
		"update must not move the expiration instant")
}

func TestUpdate_AlreadyPaid(t *testing.T) {
	paid := paidOrder("ord-1", "u1", 150)
	f := newFixture(t, newMockStore(paid))

	_, err := f.svc.Update(context.Background(), "ord-1", PutRequest{
		UserID: "u1",
		Items:  []LineRequest{{Barcode: "4901", Quantity: 5}},
	})

	require.ErrorIs(t, err, ErrAlreadyPaid)
	stored := f.store.orders["ord-1"]
	assert.True(t, decimal.NewFromInt(150).Equal(stored.Amount), "paid order must stay untouched")
	assert.Len(t, stored.Lines, 1)
	assert.Empty(t, f.notify.receipts)
}

func TestUpdate_ZeroAmountAutoPaid(t *testing.T) {
	f := newFixture(t, newMockStore(pendingOrder("ord-1", "u1", 150)))

	id, err := f.svc.Update(context.Background(), "ord-1", PutRequest{
		UserID:   "u1",
		Items:    []LineRequest{{Barcode: "4901", Quantity: 1}},
		CouponID: "c-free",
	})

	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, TransactionCash, f.store.orders["ord-1"].TransactionID)
	assert.Equal(t, []string{"ord-1"}, f.notify.receipts)
}

// --- Confirm ---

func TestConfirm_SettlesAndNotifies(t *testing.T) {
	f := newFixture(t, newMockStore(pendingOrder("ord-1", "u1", 150)))
	f.gw.confirmResp = []byte(`{"info":{"transactionId":123}}`)

	receipt, err := f.svc.Confirm(context.Background(), "ord-1", "tx-123")

	require.NoError(t, err)
	assert.JSONEq(t, `{"info":{"transactionId":123}}`, string(receipt))
	assert.Equal(t, 1, f.gw.confirmCalls)
	assert.True(t, decimal.NewFromInt(150).Equal(f.gw.lastAmount), "gateway must be called with the stored amount")

	stored := f.store.orders["ord-1"]
	assert.Equal(t, "tx-123", stored.TransactionID)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, []string{"ord-1"}, f.notify.receipts)
}

func TestConfirm_NotFound(t *testing.T) {
	f := newFixture(t, newMockStore())

	_, err := f.svc.Confirm(context.Background(), "missing", "tx-1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.gw.confirmCalls)
}

func TestConfirm_AlreadyPaidSkipsGateway(t *testing.T) {
	f := newFixture(t, newMockStore(paidOrder("ord-1", "u1", 150)))

	_, err := f.svc.Confirm(context.Background(), "ord-1", "tx-2")

	require.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Zero(t, f.gw.confirmCalls)
	assert.Equal(t, "tx-settled", f.store.orders["ord-1"].TransactionID)
}

func TestConfirm_GatewayFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(t, newMockStore(pendingOrder("ord-1", "u1", 150)))
	f.gw.confirmErr = errors.New("gateway: returnCode 1141")

	_, err := f.svc.Confirm(context.Background(), "ord-1", "tx-1")

	require.Error(t, err)
	stored := f.store.orders["ord-1"]
	assert.Equal(t, TransactionUnpaid, stored.TransactionID)
	assert.Nil(t, stored.PaidAt)
	assert.Empty(t, f.store.settled)
	assert.Empty(t, f.notify.receipts)
}

func TestConfirm_LostSettleRace(t *testing.T) {
	f := newFixture(t, newMockStore(pendingOrder("ord-1", "u1", 150)))
	f.store.settleErr = ErrPreconditionFailed

	_, err := f.svc.Confirm(context.Background(), "ord-1", "tx-1")

	require.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Empty(t, f.notify.receipts, "the losing confirmation must not send a receipt")
}

// --- RequestPayment / History ---

func TestRequestPayment_ReturnsGatewayPayload(t *testing.T) {
	f := newFixture(t, newMockStore(pendingOrder("ord-1", "u1", 150)))
	f.gw.reserveResp = []byte(`{"info":{"paymentUrl":{"web":"https://pay.example/x"}}}`)

	resp, err := f.svc.RequestPayment(context.Background(), "ord-1", "https://shop.example/confirm")

	require.NoError(t, err)
	assert.Contains(t, string(resp), "paymentUrl")
}

func TestRequestPayment_AlreadyPaid(t *testing.T) {
	f := newFixture(t, newMockStore(paidOrder("ord-1", "u1", 150)))

	_, err := f.svc.RequestPayment(context.Background(), "ord-1", "https://shop.example/confirm")
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestHistory_ByUser(t *testing.T) {
	f := newFixture(t, newMockStore(
		pendingOrder("ord-1", "u1", 150),
		paidOrder("ord-2", "u1", 320),
		pendingOrder("ord-3", "u2", 90),
	))

	got, err := f.svc.History(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHistory_ByUserAndOrder(t *testing.T) {
	f := newFixture(t, newMockStore(pendingOrder("ord-1", "u1", 150)))

	got, err := f.svc.History(context.Background(), "u1", "ord-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ord-1", got[0].ID)

	got, err = f.svc.History(context.Background(), "u2", "ord-1")
	require.NoError(t, err)
	assert.Empty(t, got, "another user's order id must resolve to nothing")
}
