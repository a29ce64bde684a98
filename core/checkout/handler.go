package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/api/weberr"
	"github.com/digitalt3/lms-client/core/cart"
	"github.com/digitalt3/lms-client/core/claims"
)

type Summary struct {
	Items   []cart.Item `json:"items"`
	Coupon  *Coupon     `json:"coupon,omitempty"`
	Totals  Totals      `json:"totals"`
	Methods []string    `json:"methods"`
}

type CouponNew struct {
	Code string `json:"code"`
}

func (s *Service) summary() Summary {
	items := s.cart.Snapshot().Items
	coupon := s.Coupon()
	return Summary{
		Items:   items,
		Coupon:  coupon,
		Totals:  Compute(items, coupon).Rounded(),
		Methods: []string{MethodProcessing, MethodPaypal, MethodCard},
	}
}

func HandleShow(s *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, s.summary(), http.StatusOK)
	}
}

func HandleApplyCoupon(s *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in CouponNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if _, err := s.ApplyCoupon(ctx, in.Code); err != nil {
			if errors.Is(err, ErrInvalidCoupon) {
				return weberr.Unprocessable(err, "Invalid coupon code")
			}
			return fmt.Errorf("applying coupon: %w", err)
		}

		return web.Respond(ctx, w, s.summary(), http.StatusOK)
	}
}

func HandleConfirm(s *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req Request
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if clm, err := claims.Get(ctx); err == nil {
			req.UserID = clm.UserID
		}

		rcpt, err := s.Confirm(ctx, req)
		if err != nil {
			var ve *ValidationError
			var pe *PartialOrderError
			switch {
			case errors.Is(err, ErrNotAuthenticated):
				return weberr.NewError(err, err.Error(), http.StatusUnauthorized)
			case errors.As(err, &ve):
				return weberr.Unprocessable(err, ve.Message)
			case errors.Is(err, ErrCheckoutInProcess):
				return weberr.Conflict(err, "Checkout already in progress")
			case errors.Is(err, ErrPaymentFailed):
				return weberr.NewError(err, "Payment failed. Please try another method.", http.StatusPaymentRequired)
			case errors.As(err, &pe):
				return weberr.InternalError(err, weberr.WithFields(map[string]interface{}{
					"order_id": pe.OrderID,
					"step":     pe.Step,
				}))
			}
			return fmt.Errorf("confirming checkout: %w", err)
		}

		return web.Respond(ctx, w, rcpt, http.StatusCreated)
	}
}
