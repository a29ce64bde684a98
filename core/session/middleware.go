package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/api/weberr"
	"github.com/digitalt3/lms-client/core/claims"
)

// LoadClaims stores the signed in user's claims in the request context.
// Anonymous requests pass through untouched.
func LoadClaims(m *Manager) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if clm, ok := m.Snapshot().Claims(); ok {
				ctx = claims.Set(ctx, clm)
			}
			return handler(ctx, w, r)
		}
	}
}

// Authenticate rejects requests without a signed in user.
func Authenticate() web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if !claims.IsAuthenticated(ctx) {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			return handler(ctx, w, r)
		}
	}
}
