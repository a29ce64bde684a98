package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	Percent Kind = "percent"
	Fixed   Kind = "fixed"
)

var ErrInvalidCoupon = errors.New("invalid coupon code")

type Coupon struct {
	Code  string          `json:"code"`
	Kind  Kind            `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Discount is the amount c takes off subtotal, never more than subtotal.
// A nil coupon discounts nothing.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if c == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch c.Kind {
	case Percent:
		d = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	case Fixed:
		d = c.Value
	default:
		return decimal.Zero
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(subtotal, d)
}

// Label is the short description shown once the coupon is applied.
func (c *Coupon) Label() string {
	switch c.Kind {
	case Percent:
		return c.Value.String() + "% off"
	case Fixed:
		return "$" + c.Value.String() + " off"
	}
	return c.Code
}

// CouponSource resolves a normalized coupon code. ok is false when the code
// is unknown.
type CouponSource interface {
	Lookup(ctx context.Context, code string) (c Coupon, ok bool, err error)
}

// StaticCoupons is a fixed coupon table keyed by upper case code.
type StaticCoupons map[string]Coupon

// DefaultCoupons are the codes the storefront advertises.
func DefaultCoupons() StaticCoupons {
	return StaticCoupons{
		"SAVE10": {Code: "SAVE10", Kind: Percent, Value: decimal.NewFromInt(10)},
		"FLAT5":  {Code: "FLAT5", Kind: Fixed, Value: decimal.NewFromInt(5)},
		"FREE":   {Code: "FREE", Kind: Percent, Value: decimal.NewFromInt(100)},
	}
}

func (s StaticCoupons) Lookup(_ context.Context, code string) (Coupon, bool, error) {
	c, ok := s[code]
	return c, ok, nil
}

// NormalizeCode trims and upper cases a code as typed by the user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve looks code up in src. An empty code resolves to no coupon.
func Resolve(ctx context.Context, src CouponSource, code string) (*Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil
	}

	c, ok, err := src.Lookup(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("looking up coupon[%s]: %w", code, err)
	}
	if !ok {
		return nil, fmt.Errorf("coupon[%s]: %w", code, ErrInvalidCoupon)
	}
	return &c, nil
}
