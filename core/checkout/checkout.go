// Package checkout turns the cart into a paid order. It computes totals
// with an optional coupon, validates the customer details, charges through
// a Payer and stores the order, its items and the enrollments before
// removing the purchased courses from the cart.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/digitalt3/lms-client/core/cart"
	"github.com/digitalt3/lms-client/core/order"
	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/notify"
	"github.com/digitalt3/lms-client/random"
	"github.com/digitalt3/lms-client/validate"
	"github.com/sirupsen/logrus"
)

// ValidationError is a check that failed before any payment was attempted.
// Message is meant for the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrNotAuthenticated  = &ValidationError{Message: "Please login to continue."}
	ErrEmptyCart         = &ValidationError{Message: "Your cart is empty"}
	ErrCartNotReady      = &ValidationError{Message: "Your cart is still loading"}
	ErrMissingCustomer   = &ValidationError{Message: "Please ensure your name and email are present."}
	ErrTermsNotAccepted  = &ValidationError{Message: "Please accept terms to proceed"}
	ErrUnknownMethod     = &ValidationError{Message: "Please choose a payment method"}
	ErrCheckoutInProcess = errors.New("checkout already in progress")
)

// IsValidation reports whether err was raised before payment.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PartialOrderError means the order row was stored but a later step failed.
// The order is marked failed and the cart is left untouched.
type PartialOrderError struct {
	OrderID string
	Step    string
	Err     error
}

func (e *PartialOrderError) Error() string {
	return fmt.Sprintf("order[%s] incomplete, %s failed: %v", e.OrderID, e.Step, e.Err)
}

func (e *PartialOrderError) Unwrap() error { return e.Err }

// Cart is the part of the cart manager checkout depends on.
type Cart interface {
	Snapshot() cart.State
	Ready(userID string) bool
	RemoveCourses(ctx context.Context, courseIDs []string) error
}

// markFailedTimeout bounds marking an incomplete order failed. It runs
// after the caller's context may already be done.
const markFailedTimeout = 5 * time.Second

type Request struct {
	UserID        string `json:"-"`
	CustomerName  string `json:"customerName" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,oneof=processing paypal card"`
	Agree         bool   `json:"agree"`
}

type Receipt struct {
	Order       order.Order  `json:"order"`
	Items       []order.Item `json:"items"`
	Enrollments int          `json:"enrollments"`
	Totals      Totals       `json:"totals"`
	Payment     Payment      `json:"payment"`
	Coupon      *Coupon      `json:"coupon,omitempty"`
}

type Config struct {
	DB       data.Client
	Cart     Cart
	Payer    Payer
	Coupons  CouponSource
	Log      logrus.FieldLogger
	Notifier notify.Notifier
	Now      func() time.Time
}

// Service holds the checkout session of one client: the applied coupon and
// whether a payment is running.
type Service struct {
	db      data.Client
	cart    Cart
	payer   Payer
	coupons CouponSource
	log     logrus.FieldLogger
	notice  notify.Notifier
	now     func() time.Time

	mu     sync.Mutex
	coupon *Coupon
	paying bool
}

func New(cfg Config) *Service {
	s := &Service{
		db:      cfg.DB,
		cart:    cfg.Cart,
		payer:   cfg.Payer,
		coupons: cfg.Coupons,
		log:     cfg.Log,
		notice:  cfg.Notifier,
		now:     cfg.Now,
	}
	if s.payer == nil {
		s.payer = NewSimulator()
	}
	if s.coupons == nil {
		s.coupons = DefaultCoupons()
	}
	if s.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		s.log = l
	}
	s.log = s.log.WithField("component", "checkout")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Coupon returns the applied coupon, nil when none.
func (s *Service) Coupon() *Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coupon == nil {
		return nil
	}
	c := *s.coupon
	return &c
}

// ApplyCoupon resolves code and applies it. An empty code removes the
// applied coupon. An unknown code removes it too and returns
// ErrInvalidCoupon.
func (s *Service) ApplyCoupon(ctx context.Context, code string) (*Coupon, error) {
	c, err := Resolve(ctx, s.coupons, code)

	s.mu.Lock()
	s.coupon = c
	s.mu.Unlock()

	switch {
	case err != nil:
		return nil, err
	case c == nil:
		notify.Info(s.notice, "Enter a coupon code")
		return nil, nil
	}

	notify.Success(s.notice, "Coupon applied: "+c.Label())
	return c, nil
}

// Reset drops the applied coupon, as on sign out.
func (s *Service) Reset() {
	s.mu.Lock()
	s.coupon = nil
	s.mu.Unlock()
}

// Totals computes the totals of the current cart with the applied coupon.
func (s *Service) Totals() Totals {
	return Compute(s.cart.Snapshot().Items, s.Coupon())
}

func (s *Service) check(req *Request, st cart.State) error {
	if req.UserID == "" {
		return ErrNotAuthenticated
	}
	if !s.cart.Ready(req.UserID) {
		return ErrCartNotReady
	}
	if len(st.Items) == 0 {
		return ErrEmptyCart
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.PaymentMethod == "" {
		req.PaymentMethod = MethodProcessing
	}

	if err := validate.Check(req); err != nil {
		var fe *validate.FieldError
		if errors.As(err, &fe) && fe.Field == "PaymentMethod" {
			return ErrUnknownMethod
		}
		return ErrMissingCustomer
	}
	if !req.Agree {
		return ErrTermsNotAccepted
	}
	return nil
}

// Confirm validates req, charges the cart total and records the purchase.
// Nothing is written when validation or payment fails. When the order was
// stored but its items or enrollments were not, the order is marked failed,
// the cart is kept and a *PartialOrderError is returned.
func (s *Service) Confirm(ctx context.Context, req Request) (Receipt, error) {
	st := s.cart.Snapshot()
	if err := s.check(&req, st); err != nil {
		notify.Error(s.notice, err.Error())
		return Receipt{}, err
	}

	s.mu.Lock()
	if s.paying {
		s.mu.Unlock()
		return Receipt{}, ErrCheckoutInProcess
	}
	s.paying = true
	coupon := s.coupon
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.paying = false
		s.mu.Unlock()
	}()

	rcpt, err := s.complete(ctx, req, st.Items, coupon)
	if err != nil {
		if errors.Is(err, ErrPaymentFailed) {
			notify.Error(s.notice, "Payment failed. Please try another method.")
		} else {
			notify.Error(s.notice, "Checkout failed")
		}
		return Receipt{}, err
	}

	s.Reset()
	notify.Success(s.notice, "Payment complete! You're enrolled.")
	return rcpt, nil
}

func (s *Service) complete(ctx context.Context, req Request, items []cart.Item, coupon *Coupon) (Receipt, error) {
	tot := Compute(items, coupon)
	log := s.log.WithFields(logrus.Fields{"user_id": req.UserID, "items": len(items), "total": tot.Total.StringFixed(2)})

	txnID, err := random.Token()
	if err != nil {
		return Receipt{}, fmt.Errorf("generating transaction id: %w", err)
	}

	pay, err := s.payer.Pay(ctx, tot.Total, req.PaymentMethod)
	if err != nil {
		log.WithError(err).Error("payment")
		return Receipt{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if pay.Status != StatusSucceeded {
		log.WithField("status", pay.Status).Warn("payment declined")
		return Receipt{}, fmt.Errorf("%w: status %q", ErrPaymentFailed, pay.Status)
	}

	ord := order.Order{
		UserID:         req.UserID,
		TransactionID:  txnID,
		PaymentMethod:  req.PaymentMethod,
		SubtotalAmount: tot.Subtotal,
		DiscountAmount: tot.Discount,
		TaxAmount:      tot.Tax,
		TotalAmount:    tot.Total,
		Status:         order.Paid,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		PaidAt:         pay.PaidAt,
	}
	if coupon != nil {
		ord.CouponCode = coupon.Code
	}

	ord, err = order.Create(ctx, s.db, ord)
	if err != nil {
		log.WithError(err).Error("creating order")
		return Receipt{}, fmt.Errorf("creating order: %w", err)
	}
	log = log.WithField("order_id", ord.ID)

	lines := make([]order.Item, 0, len(items))
	ens := make([]order.Enrollment, 0, len(items))
	bought := make([]string, 0, len(items))
	enrolledAt := s.now().UTC()
	for _, it := range items {
		bought = append(bought, it.CourseID)
		lines = append(lines, order.Item{OrderID: ord.ID, CourseID: it.CourseID, Price: it.Price, Quantity: 1})
		ens = append(ens, order.Enrollment{
			UserID:     req.UserID,
			CourseID:   it.CourseID,
			OrderID:    ord.ID,
			Status:     order.EnrollmentActive,
			EnrolledAt: enrolledAt,
		})
	}

	if err := order.CreateItems(ctx, s.db, lines); err != nil {
		return Receipt{}, s.abandon(ctx, log, ord.ID, "order items", err)
	}
	if err := order.CreateEnrollments(ctx, s.db, ens); err != nil {
		return Receipt{}, s.abandon(ctx, log, ord.ID, "enrollments", err)
	}

	// The purchase is complete at this point. Only the purchased courses
	// leave the cart, anything added during the payment stays. A cart that
	// fails to update is reported but does not undo the purchase.
	if err := s.cart.RemoveCourses(ctx, bought); err != nil {
		log.WithError(err).Warn("clearing cart after checkout")
		notify.Error(s.notice, "Failed to clear cart")
	}

	log.Info("checkout complete")
	return Receipt{
		Order:       ord,
		Items:       lines,
		Enrollments: len(ens),
		Totals:      tot.Rounded(),
		Payment:     pay,
		Coupon:      coupon,
	}, nil
}

func (s *Service) abandon(ctx context.Context, log logrus.FieldLogger, orderID, step string, err error) error {
	log.WithError(err).WithField("step", step).Error("order incomplete")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()
	if merr := order.MarkFailed(ctx, s.db, orderID); merr != nil {
		log.WithError(merr).Error("marking order failed")
	}
	return &PartialOrderError{OrderID: orderID, Step: step, Err: err}
}
