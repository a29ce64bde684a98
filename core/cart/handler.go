package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/api/weberr"
	"github.com/digitalt3/lms-client/core/course"
	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/validate"
)

type ItemNew struct {
	CourseID string `json:"courseId" validate:"required"`
}

func HandleShow(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, m.Snapshot(), http.StatusOK)
	}
}

// HandleCreateItem adds a course at its current catalog price.
func HandleCreateItem(m *Manager, db data.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := course.Fetch(ctx, db, in.CourseID)
		if err != nil {
			if errors.Is(err, course.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("looking up course[%s]: %w", in.CourseID, err)
		}
		if !c.Published {
			return weberr.NotFound(fmt.Errorf("course[%s] is not published", c.ID))
		}

		it, err := m.AddCourse(ctx, c.ID, c.Price)
		if err != nil {
			if errors.Is(err, ErrAlreadyInCart) {
				return weberr.Conflict(err, "Course already in cart")
			}
			return fmt.Errorf("adding course[%s] to cart: %w", c.ID, err)
		}

		return web.Respond(ctx, w, it, http.StatusCreated)
	}
}

func HandleDeleteItem(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "course_id")

		if !m.Snapshot().Has(courseID) {
			return weberr.NotFound(fmt.Errorf("course[%s] not in cart", courseID))
		}

		if err := m.RemoveCourse(ctx, courseID); err != nil {
			return fmt.Errorf("removing course[%s] from cart: %w", courseID, err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleDelete(m *Manager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := m.ClearCart(ctx); err != nil {
			return fmt.Errorf("clearing cart: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
