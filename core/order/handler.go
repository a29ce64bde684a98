package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/api/weberr"
	"github.com/digitalt3/lms-client/core/claims"
	"github.com/digitalt3/lms-client/data"
)

func HandleList(db data.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ords, err := ListByUser(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}

		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

func HandleShow(db data.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		ord, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching order[%s]: %w", id, err)
		}

		if ord.UserID != clm.UserID && !claims.IsAdmin(ctx) {
			return weberr.NotFound(fmt.Errorf("order[%s] belongs to another user", id))
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandleListEnrolled(db data.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ids, err := EnrolledCourses(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing enrollments: %w", err)
		}

		return web.Respond(ctx, w, ids, http.StatusOK)
	}
}
