package course

import (
	"context"
	"errors"
	"testing"

	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/data/memdata"
	"github.com/shopspring/decimal"
)

func TestFetchAndList(t *testing.T) {
	ctx := context.Background()
	db := memdata.New()
	db.Seed(table,
		data.Row{"id": "c1", "title": "SQL", "price": "19.90", "published": true},
		data.Row{"id": "c2", "title": "Go", "price": "0", "published": true},
		data.Row{"id": "c3", "title": "Draft", "price": "5", "published": false},
	)

	c, err := Fetch(ctx, db, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Price.Equal(decimal.RequireFromString("19.9")) {
		t.Fatalf("expected price 19.9, got %s", c.Price)
	}

	if _, err := Fetch(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, total, err := List(ctx, db, Page{Number: 0, Rows: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("expected 2 published courses, got %d", total)
	}
	if len(list) != 1 || list[0].Title != "Go" {
		t.Fatalf("expected first page to hold Go, got %+v", list)
	}
}
