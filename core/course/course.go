package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalt3/lms-client/data"
	"github.com/shopspring/decimal"
)

const table = "courses"

var ErrNotFound = errors.New("course not found")

type Course struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	InstructorID string          `json:"instructorId,omitempty"`
	Published    bool            `json:"published"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Page selects a window of the catalog, zero based.
type Page struct {
	Number int
	Rows   int
}

func fromRow(r data.Row) Course {
	price := r.Decimal("price")
	if price.IsNegative() {
		price = decimal.Zero
	}
	return Course{
		ID:           r.String("id"),
		Title:        r.String("title"),
		Description:  r.String("description"),
		Price:        price,
		InstructorID: r.String("instructor_id"),
		Published:    r.Bool("published"),
		CreatedAt:    r.Time("created_at"),
		UpdatedAt:    r.Time("updated_at"),
	}
}

func Fetch(ctx context.Context, db data.Client, id string) (Course, error) {
	r, ok, err := data.First(ctx, db, data.Query{
		Table:   table,
		Filters: []data.Filter{data.Eq("id", id)},
	})
	if err != nil {
		return Course{}, fmt.Errorf("fetching course[%s]: %w", id, err)
	}
	if !ok {
		return Course{}, fmt.Errorf("course[%s]: %w", id, ErrNotFound)
	}
	return fromRow(r), nil
}

// List returns published courses ordered by title along with the total count.
func List(ctx context.Context, db data.Client, p Page) ([]Course, int, error) {
	if p.Rows <= 0 {
		p.Rows = 20
	}
	if p.Number < 0 {
		p.Number = 0
	}

	res, err := db.Select(ctx, data.Query{
		Table:   table,
		Filters: []data.Filter{data.Eq("published", true)},
		Order:   &data.Order{Column: "title"},
		Range:   &data.Range{From: p.Number * p.Rows, To: (p.Number+1)*p.Rows - 1},
		Count:   true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing courses: %w", err)
	}

	courses := make([]Course, 0, len(res.Rows))
	for _, r := range res.Rows {
		courses = append(courses, fromRow(r))
	}
	return courses, res.Count, nil
}
