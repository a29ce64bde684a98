package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MethodProcessing = "processing"
	MethodPaypal     = "paypal"
	MethodCard       = "card"
)

const StatusSucceeded = "succeeded"

var ErrPaymentFailed = errors.New("payment failed")

type Payment struct {
	Status string    `json:"status"`
	Method string    `json:"method"`
	PaidAt time.Time `json:"paidAt"`
}

// Payer charges amount. A returned Payment with a status other than
// succeeded is a declined payment.
type Payer interface {
	Pay(ctx context.Context, amount decimal.Decimal, method string) (Payment, error)
}

const (
	baseDelay = 800 * time.Millisecond
	maxDelay  = 2 * time.Second
)

// Delay grows with the amount: 800ms plus one millisecond per cent, capped
// at two seconds.
func Delay(amount decimal.Decimal) time.Duration {
	if !amount.IsPositive() {
		return baseDelay
	}
	cents := amount.Shift(2)
	if cents.GreaterThanOrEqual(decimal.NewFromInt(int64((maxDelay - baseDelay) / time.Millisecond))) {
		return maxDelay
	}
	return baseDelay + time.Duration(cents.Mul(decimal.NewFromInt(int64(time.Millisecond))).IntPart())
}

// Simulator stands in for a payment gateway. It waits Delay(amount) and
// then always succeeds.
type Simulator struct {
	Now  func() time.Time
	Wait func(ctx context.Context, d time.Duration) error
}

func NewSimulator() *Simulator {
	return &Simulator{Now: time.Now, Wait: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Simulator) Pay(ctx context.Context, amount decimal.Decimal, method string) (Payment, error) {
	wait := s.Wait
	if wait == nil {
		wait = sleep
	}
	if err := wait(ctx, Delay(amount)); err != nil {
		return Payment{}, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return Payment{Status: StatusSucceeded, Method: method, PaidAt: now().UTC()}, nil
}
