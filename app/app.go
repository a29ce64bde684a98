// Package app assembles one client session: who is signed in, the cart and
// the checkout, and keeps the cart in step with sign in and sign out.
package app

import (
	"context"
	"time"

	"github.com/digitalt3/lms-client/auth"
	"github.com/digitalt3/lms-client/core/cart"
	"github.com/digitalt3/lms-client/core/checkout"
	"github.com/digitalt3/lms-client/core/session"
	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/localstore"
	"github.com/digitalt3/lms-client/notify"
	"github.com/digitalt3/lms-client/rate"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DB       data.Client
	Auth     auth.Client
	Local    localstore.Store
	Payer    checkout.Payer
	Coupons  checkout.CouponSource
	Limiter  *rate.Limiter
	Log      logrus.FieldLogger
	Notifier notify.Notifier

	// SyncTimeout bounds the cart merge and reload that follow a sign in.
	SyncTimeout time.Duration
}

type App struct {
	DB       data.Client
	Session  *session.Manager
	Cart     *cart.Manager
	Checkout *checkout.Service

	log     logrus.FieldLogger
	timeout time.Duration
	unsub   func()
}

// New wires the components. Call Start to load the guest cart and recover
// a persisted session.
func New(cfg Config) *App {
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	timeout := cfg.SyncTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	a := &App{
		DB:      cfg.DB,
		log:     log,
		timeout: timeout,
	}

	a.Cart = cart.New(cart.Config{
		DB:       cfg.DB,
		Local:    cfg.Local,
		Log:      log,
		Notifier: cfg.Notifier,
	})
	a.Checkout = checkout.New(checkout.Config{
		DB:       cfg.DB,
		Cart:     a.Cart,
		Payer:    cfg.Payer,
		Coupons:  cfg.Coupons,
		Log:      log,
		Notifier: cfg.Notifier,
	})
	a.Session = session.New(session.Config{
		Auth:     cfg.Auth,
		DB:       cfg.DB,
		Limiter:  cfg.Limiter,
		Log:      log,
		Notifier: cfg.Notifier,
	})
	a.unsub = a.Session.Subscribe(a.follow)

	return a
}

// Start loads the guest cart, then recovers the session. A recovered user
// has their cart merged and loaded before Start returns.
func (a *App) Start(ctx context.Context) error {
	if err := a.Cart.InitGuestCart(); err != nil {
		return err
	}
	return a.Session.Initialize(ctx)
}

func (a *App) Close() {
	a.unsub()
	a.Session.Close()
	a.Cart.Close()
}

// follow runs on every session change. A new user gets the guest cart
// merged into theirs and then their cart loaded. A sign out drops the user
// cart and coupon and brings the guest cart back.
func (a *App) follow(prev, next session.State) {
	from, to := prev.UserID(), next.UserID()
	if from == to {
		return
	}
	log := a.log.WithFields(logrus.Fields{"from": from, "to": to})

	if to == "" {
		a.Checkout.Reset()
		if err := a.Cart.Reset(); err != nil {
			log.WithError(err).Error("restoring guest cart")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if from != "" {
		a.Checkout.Reset()
		if err := a.Cart.Reset(); err != nil {
			log.WithError(err).Error("restoring guest cart")
			return
		}
	}

	// A failed merge keeps the guest cart for the next sign in. The user
	// cart is loaded either way.
	if err := a.Cart.MergeGuestCartToUser(ctx, to); err != nil {
		log.WithError(err).Warn("merging guest cart")
	}
	if err := a.Cart.LoadCartForUser(ctx, to); err != nil {
		log.WithError(err).Error("loading user cart")
	}
}
