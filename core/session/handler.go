package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/api/weberr"
	"github.com/digitalt3/lms-client/auth"
	"github.com/digitalt3/lms-client/validate"
)

func authError(err error, fallback string) error {
	var fe *validate.FieldError
	switch {
	case errors.As(err, &fe):
		return weberr.NewError(err, fe.Message, http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return weberr.NewError(err, Message(err, fallback), http.StatusUnauthorized)
	case errors.Is(err, auth.ErrUserExists):
		return weberr.Conflict(err, Message(err, fallback))
	case errors.Is(err, auth.ErrRateLimited):
		return weberr.TooManyRequests(err, Message(err, fallback))
	}
	return fmt.Errorf("%s: %w", fallback, err)
}

func HandleSignup(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var su Signup
		if err := web.Decode(w, r, &su); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if _, err := m.SignUp(ctx, su); err != nil {
			return authError(err, "Registration failed")
		}

		return web.Respond(ctx, w, m.Snapshot(), http.StatusCreated)
	}
}

func HandleLogin(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var l Login
		if err := web.Decode(w, r, &l); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if _, err := m.SignIn(ctx, l); err != nil {
			return authError(err, "Sign in failed")
		}

		return web.Respond(ctx, w, m.Snapshot(), http.StatusOK)
	}
}

func HandleLogout(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := m.SignOut(ctx); err != nil {
			return fmt.Errorf("signing out: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleShow(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, m.Snapshot(), http.StatusOK)
	}
}
