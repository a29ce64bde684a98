package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/digitalt3/lms-client/core/cart"
	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/data/memdata"
	"github.com/digitalt3/lms-client/localstore"
	"github.com/digitalt3/lms-client/notify"
	"github.com/shopspring/decimal"
)

type payerSpy struct {
	calls  int
	status string
	err    error
	during func()
}

func (p *payerSpy) Pay(_ context.Context, _ decimal.Decimal, method string) (Payment, error) {
	p.calls++
	if p.during != nil {
		p.during()
	}
	if p.err != nil {
		return Payment{}, p.err
	}
	status := p.status
	if status == "" {
		status = StatusSucceeded
	}
	return Payment{Status: status, Method: method, PaidAt: time.Now().UTC()}, nil
}

type fixture struct {
	db    *memdata.Store
	cart  *cart.Manager
	payer *payerSpy
	notes *notify.Queue
	svc   *Service
}

const userID = "u1"

func newFixture(t *testing.T, prices ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		db:    memdata.New(memdata.Unique("cart_items", "cart_id", "course_id")),
		payer: &payerSpy{},
		notes: notify.NewQueue(50),
	}
	f.cart = cart.New(cart.Config{DB: f.db, Local: localstore.NewMemory()})
	t.Cleanup(f.cart.Close)

	if err := f.cart.LoadCartForUser(ctx, userID); err != nil {
		t.Fatal(err)
	}
	for i, p := range prices {
		if _, err := f.cart.AddCourse(ctx, string(rune('a'+i)), dec(p)); err != nil {
			t.Fatal(err)
		}
	}

	f.svc = New(Config{DB: f.db, Cart: f.cart, Payer: f.payer, Notifier: f.notes})
	return f
}

func request() Request {
	return Request{UserID: userID, CustomerName: "Ada Lovelace", CustomerEmail: "ada@example.com", PaymentMethod: MethodCard, Agree: true}
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "10", "20")

	if _, err := f.svc.ApplyCoupon(ctx, "save10"); err != nil {
		t.Fatal(err)
	}

	rcpt, err := f.svc.Confirm(ctx, request())
	if err != nil {
		t.Fatal(err)
	}

	if f.payer.calls != 1 {
		t.Fatalf("expected one payment, got %d", f.payer.calls)
	}
	if n := len(f.db.Rows("orders")); n != 1 {
		t.Fatalf("expected 1 order, got %d", n)
	}
	if n := len(f.db.Rows("order_items")); n != 2 {
		t.Fatalf("expected 2 order items, got %d", n)
	}
	if n := len(f.db.Rows("enrollments")); n != 2 {
		t.Fatalf("expected 2 enrollments, got %d", n)
	}
	if n := len(f.cart.Snapshot().Items); n != 0 {
		t.Fatalf("expected the cart to be empty, got %d items", n)
	}
	if n := len(f.db.Rows("cart_items")); n != 0 {
		t.Fatalf("expected the remote cart to be empty, got %d rows", n)
	}

	ord := f.db.Rows("orders")[0]
	if ord.String("coupon_code") != "SAVE10" || ord.String("status") != "paid" {
		t.Fatalf("unexpected order row %v", ord)
	}
	if !ord.Decimal("total_amount").Equal(dec("28.89")) {
		t.Fatalf("expected total 28.89, got %s", ord.Decimal("total_amount"))
	}
	if len(ord.String("transaction_id")) != 21 {
		t.Fatalf("expected a 21 character transaction id, got %q", ord.String("transaction_id"))
	}
	if rcpt.Order.ID == "" || rcpt.Enrollments != 2 || !rcpt.Totals.Discount.Equal(dec("3")) {
		t.Fatalf("unexpected receipt %+v", rcpt)
	}
	if f.svc.Coupon() != nil {
		t.Fatal("expected the coupon to be dropped after checkout")
	}

	ns := f.notes.Drain()
	if got := ns[len(ns)-1].Message; got != "Payment complete! You're enrolled." {
		t.Fatalf("unexpected notice %q", got)
	}
}

func TestConfirmValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		prices []string
		mod    func(*Request)
		want   error
	}{
		{name: "anonymous", prices: []string{"1"}, mod: func(r *Request) { r.UserID = "" }, want: ErrNotAuthenticated},
		{name: "other user", prices: []string{"1"}, mod: func(r *Request) { r.UserID = "u2" }, want: ErrCartNotReady},
		{name: "empty cart", want: ErrEmptyCart},
		{name: "no name", prices: []string{"1"}, mod: func(r *Request) { r.CustomerName = "  " }, want: ErrMissingCustomer},
		{name: "no email", prices: []string{"1"}, mod: func(r *Request) { r.CustomerEmail = "" }, want: ErrMissingCustomer},
		{name: "terms", prices: []string{"1"}, mod: func(r *Request) { r.Agree = false }, want: ErrTermsNotAccepted},
		{name: "method", prices: []string{"1"}, mod: func(r *Request) { r.PaymentMethod = "cash" }, want: ErrUnknownMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.prices...)
			before := f.db.Mutations()

			req := request()
			if tt.mod != nil {
				tt.mod(&req)
			}
			_, err := f.svc.Confirm(ctx, req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !IsValidation(err) {
				t.Fatalf("expected a validation error, got %T", err)
			}
			if f.payer.calls != 0 {
				t.Fatal("expected no payment attempt")
			}
			if n := f.db.Mutations(); n != before {
				t.Fatalf("expected no writes, saw %d", n-before)
			}
			if n := len(f.cart.Snapshot().Items); n != len(tt.prices) {
				t.Fatalf("expected cart untouched, got %d items", n)
			}
		})
	}
}

func TestConfirmPaymentFailure(t *testing.T) {
	ctx := context.Background()

	for name, payer := range map[string]*payerSpy{
		"declined": {status: "declined"},
		"error":    {err: errors.New("gateway down")},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, "10")
			f.svc.payer = payer

			if _, err := f.svc.Confirm(ctx, request()); !errors.Is(err, ErrPaymentFailed) {
				t.Fatalf("expected ErrPaymentFailed, got %v", err)
			}
			if n := len(f.db.Rows("orders")); n != 0 {
				t.Fatalf("expected no order, got %d", n)
			}
			if n := len(f.cart.Snapshot().Items); n != 1 {
				t.Fatalf("expected cart kept, got %d items", n)
			}
			ns := f.notes.Drain()
			if got := ns[len(ns)-1].Message; got != "Payment failed. Please try another method." {
				t.Fatalf("unexpected notice %q", got)
			}
		})
	}
}

func TestConfirmPartialFailure(t *testing.T) {
	ctx := context.Background()

	for _, table := range []string{"order_items", "enrollments"} {
		t.Run(table, func(t *testing.T) {
			f := newFixture(t, "10", "20")
			f.db.FailOn("insert", table, errors.New("rls denied"))

			_, err := f.svc.Confirm(ctx, request())

			var perr *PartialOrderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *PartialOrderError, got %v", err)
			}
			orders := f.db.Rows("orders")
			if len(orders) != 1 {
				t.Fatalf("expected the order row to remain, got %d", len(orders))
			}
			if orders[0].String("id") != perr.OrderID || orders[0].String("status") != "failed" {
				t.Fatalf("expected order %s marked failed, got %v", perr.OrderID, orders[0])
			}
			if n := len(f.cart.Snapshot().Items); n != 2 {
				t.Fatalf("expected cart kept, got %d items", n)
			}
			if n := len(f.db.Rows("cart_items")); n != 2 {
				t.Fatalf("expected remote cart kept, got %d rows", n)
			}
			ns := f.notes.Drain()
			if got := ns[len(ns)-1].Message; got != "Checkout failed" {
				t.Fatalf("unexpected notice %q", got)
			}
		})
	}
}

func TestConfirmKeepsCoursesAddedDuringPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "10", "20")
	f.payer.during = func() {
		if _, err := f.cart.AddCourse(ctx, "z", dec("7")); err != nil {
			t.Errorf("adding during payment: %v", err)
		}
	}

	rcpt, err := f.svc.Confirm(ctx, request())
	if err != nil {
		t.Fatal(err)
	}

	if len(rcpt.Items) != 2 || !rcpt.Totals.Subtotal.Equal(dec("30")) {
		t.Fatalf("expected the two courses in the cart at confirm to be bought, got %+v", rcpt)
	}
	if n := len(f.db.Rows("enrollments")); n != 2 {
		t.Fatalf("expected 2 enrollments, got %d", n)
	}

	s := f.cart.Snapshot()
	if len(s.Items) != 1 || s.Items[0].CourseID != "z" {
		t.Fatalf("expected course z to stay in the cart, got %+v", s.Items)
	}
	rows := f.db.Rows("cart_items")
	if len(rows) != 1 || rows[0].String("course_id") != "z" {
		t.Fatalf("expected course z to stay in the remote cart, got %v", rows)
	}
}

// cancelAfter cancels the request context once a row lands in table.
type cancelAfter struct {
	*memdata.Store
	table  string
	cancel context.CancelFunc
}

func (c *cancelAfter) Insert(ctx context.Context, table string, rows ...data.Row) ([]data.Row, error) {
	out, err := c.Store.Insert(ctx, table, rows...)
	if err == nil && table == c.table {
		c.cancel()
	}
	return out, err
}

func TestConfirmMarksOrderFailedAfterCancel(t *testing.T) {
	f := newFixture(t, "10", "20")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db := &cancelAfter{Store: f.db, table: "orders", cancel: cancel}
	svc := New(Config{DB: db, Cart: f.cart, Payer: f.payer, Notifier: f.notes})

	_, err := svc.Confirm(ctx, request())

	var perr *PartialOrderError
	if !errors.As(err, &perr) || perr.Step != "order items" {
		t.Fatalf("expected a partial order at the items step, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancellation as cause, got %v", err)
	}

	orders := f.db.Rows("orders")
	if len(orders) != 1 || orders[0].String("status") != "failed" {
		t.Fatalf("expected the order marked failed, got %v", orders)
	}
	if n := len(f.db.Rows("order_items")); n != 0 {
		t.Fatalf("expected no order items, got %d", n)
	}
	if n := len(f.cart.Snapshot().Items); n != 2 {
		t.Fatalf("expected cart kept, got %d items", n)
	}
}

func TestApplyCoupon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "10", "20")

	if _, err := f.svc.ApplyCoupon(ctx, "FLAT5"); err != nil {
		t.Fatal(err)
	}
	if got := f.svc.Totals().Total.StringFixed(2); got != "26.75" {
		t.Fatalf("expected total 26.75, got %s", got)
	}

	if _, err := f.svc.ApplyCoupon(ctx, "BOGUS"); !errors.Is(err, ErrInvalidCoupon) {
		t.Fatalf("expected ErrInvalidCoupon, got %v", err)
	}
	if f.svc.Coupon() != nil {
		t.Fatal("expected an invalid code to clear the coupon")
	}
	if got := f.svc.Totals().Total.StringFixed(2); got != "32.10" {
		t.Fatalf("expected total 32.10, got %s", got)
	}

	f.svc.ApplyCoupon(ctx, "free")
	if c, err := f.svc.ApplyCoupon(ctx, ""); err != nil || c != nil {
		t.Fatalf("expected an empty code to clear the coupon, got %v, %v", c, err)
	}
	if f.svc.Coupon() != nil {
		t.Fatal("expected no coupon")
	}
}
