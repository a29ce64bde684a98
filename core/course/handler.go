package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/api/weberr"
	"github.com/digitalt3/lms-client/data"
)

func HandleShow(db data.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleList(db data.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		number, err := web.QueryInt(r, "page", 0)
		if err != nil {
			return weberr.BadRequest(err)
		}
		rows, err := web.QueryInt(r, "rows", 20)
		if err != nil {
			return weberr.BadRequest(err)
		}

		courses, total, err := List(ctx, db, Page{Number: number, Rows: rows})
		if err != nil {
			return fmt.Errorf("listing courses: %w", err)
		}

		resp := struct {
			Courses []Course `json:"courses"`
			Total   int      `json:"total"`
		}{courses, total}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
