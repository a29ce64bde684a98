// Package api exposes one client session over a local HTTP API so a UI can
// drive the catalog, the cart and the checkout.
package api

import (
	"context"
	"net/http"

	"github.com/digitalt3/lms-client/api/middleware"
	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/app"
	"github.com/digitalt3/lms-client/core/cart"
	"github.com/digitalt3/lms-client/core/checkout"
	"github.com/digitalt3/lms-client/core/course"
	"github.com/digitalt3/lms-client/core/order"
	"github.com/digitalt3/lms-client/core/session"
	"github.com/digitalt3/lms-client/notify"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigin string
	Log        logrus.FieldLogger
	App        *app.App
	Notices    *notify.Queue
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, session.LoadClaims(cfg.App.Session))
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := session.Authenticate()
	db := cfg.App.DB

	a.Handle(http.MethodPost, "/auth/signup", session.HandleSignup(cfg.App.Session))
	a.Handle(http.MethodPost, "/auth/login", session.HandleLogin(cfg.App.Session))
	a.Handle(http.MethodPost, "/auth/logout", session.HandleLogout(cfg.App.Session))
	a.Handle(http.MethodGet, "/auth/session", session.HandleShow(cfg.App.Session))

	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(db))
	a.Handle(http.MethodGet, "/courses", course.HandleList(db))

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.App.Cart))
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(cfg.App.Cart))
	a.Handle(http.MethodPut, "/cart/items", cart.HandleCreateItem(cfg.App.Cart, db))
	a.Handle(http.MethodDelete, "/cart/items/{course_id}", cart.HandleDeleteItem(cfg.App.Cart))

	a.Handle(http.MethodGet, "/checkout", checkout.HandleShow(cfg.App.Checkout))
	a.Handle(http.MethodPost, "/checkout/coupon", checkout.HandleApplyCoupon(cfg.App.Checkout))
	a.Handle(http.MethodPost, "/checkout/confirm", checkout.HandleConfirm(cfg.App.Checkout), authen)

	a.Handle(http.MethodGet, "/orders/{id}", order.HandleShow(db), authen)
	a.Handle(http.MethodGet, "/orders", order.HandleList(db), authen)
	a.Handle(http.MethodGet, "/enrollments", order.HandleListEnrolled(db), authen)

	if cfg.Notices != nil {
		a.Handle(http.MethodGet, "/notices", notify.HandleDrain(cfg.Notices))
	}

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
