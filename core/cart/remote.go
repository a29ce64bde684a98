package cart

import (
	"context"
	"fmt"

	"github.com/digitalt3/lms-client/data"
)

func itemFromRow(r data.Row) Item {
	return Item{
		ID:       r.String("id"),
		CourseID: r.String("course_id"),
		Price:    r.Decimal("price"),
		Quantity: 1,
	}
}

func cartFromRow(r data.Row) UserCart {
	return UserCart{
		ID:        r.String("id"),
		UserID:    r.String("user_id"),
		Status:    r.String("status"),
		CreatedAt: r.Time("created_at"),
	}
}

func findActive(ctx context.Context, db data.Client, userID string) (UserCart, bool, error) {
	r, ok, err := data.First(ctx, db, data.Query{
		Table:   cartTable,
		Filters: []data.Filter{data.Eq("user_id", userID), data.Eq("status", StatusActive)},
	})
	if err != nil || !ok {
		return UserCart{}, false, err
	}
	return cartFromRow(r), true, nil
}

// GetOrCreate returns the active cart of userID, creating it when the user
// has none. A concurrent creation that trips the one-active-cart index is
// resolved by reading the winner.
func GetOrCreate(ctx context.Context, db data.Client, userID string) (UserCart, error) {
	c, ok, err := findActive(ctx, db, userID)
	if err != nil {
		return UserCart{}, fmt.Errorf("looking up cart for user[%s]: %w", userID, err)
	}
	if ok {
		return c, nil
	}

	r, err := data.InsertOne(ctx, db, cartTable, data.Row{"user_id": userID, "status": StatusActive})
	if err == nil {
		return cartFromRow(r), nil
	}
	if !data.IsConstraint(err) {
		return UserCart{}, fmt.Errorf("creating cart for user[%s]: %w", userID, err)
	}

	c, ok, err = findActive(ctx, db, userID)
	if err != nil {
		return UserCart{}, fmt.Errorf("looking up cart for user[%s]: %w", userID, err)
	}
	if !ok {
		return UserCart{}, fmt.Errorf("cart for user[%s] vanished after conflict", userID)
	}
	return c, nil
}

func FetchItems(ctx context.Context, db data.Client, cartID string) ([]Item, error) {
	res, err := db.Select(ctx, data.Query{
		Table:   itemTable,
		Columns: []string{"id", "course_id", "price", "quantity", "created_at"},
		Filters: []data.Filter{data.Eq("cart_id", cartID)},
		Order:   &data.Order{Column: "created_at"},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching items of cart[%s]: %w", cartID, err)
	}

	items := make([]Item, 0, len(res.Rows))
	for _, r := range res.Rows {
		items = append(items, itemFromRow(r))
	}
	return normalize(items), nil
}

// FetchCourseIDs returns the set of courses already in the cart.
func FetchCourseIDs(ctx context.Context, db data.Client, cartID string) (map[string]bool, error) {
	res, err := db.Select(ctx, data.Query{
		Table:   itemTable,
		Columns: []string{"course_id"},
		Filters: []data.Filter{data.Eq("cart_id", cartID)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching course ids of cart[%s]: %w", cartID, err)
	}

	ids := make(map[string]bool, len(res.Rows))
	for _, r := range res.Rows {
		ids[r.String("course_id")] = true
	}
	return ids, nil
}

func itemRow(cartID string, it Item) data.Row {
	return data.Row{
		"cart_id":   cartID,
		"course_id": it.CourseID,
		"price":     it.Price.Round(2),
		"quantity":  1,
	}
}

// CreateItems inserts items in one request. Either all rows are stored or
// none are.
func CreateItems(ctx context.Context, db data.Client, cartID string, items []Item) ([]Item, error) {
	if len(items) == 0 {
		return []Item{}, nil
	}

	rows := make([]data.Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, itemRow(cartID, it))
	}

	stored, err := db.Insert(ctx, itemTable, rows...)
	if err != nil {
		return nil, fmt.Errorf("inserting %d items into cart[%s]: %w", len(items), cartID, err)
	}

	out := make([]Item, 0, len(stored))
	for _, r := range stored {
		out = append(out, itemFromRow(r))
	}
	return out, nil
}

func CreateItem(ctx context.Context, db data.Client, cartID string, it Item) (Item, error) {
	r, err := data.InsertOne(ctx, db, itemTable, itemRow(cartID, it))
	if err != nil {
		return Item{}, fmt.Errorf("inserting course[%s] into cart[%s]: %w", it.CourseID, cartID, err)
	}
	return itemFromRow(r), nil
}

func DeleteItem(ctx context.Context, db data.Client, cartID, courseID string) error {
	if err := db.Delete(ctx, itemTable, data.Eq("cart_id", cartID), data.Eq("course_id", courseID)); err != nil {
		return fmt.Errorf("deleting course[%s] from cart[%s]: %w", courseID, cartID, err)
	}
	return nil
}

// DeleteCourses removes the given courses from the cart in one call.
func DeleteCourses(ctx context.Context, db data.Client, cartID string, courseIDs []string) error {
	if err := db.Delete(ctx, itemTable, data.Eq("cart_id", cartID), data.In("course_id", courseIDs)); err != nil {
		return fmt.Errorf("deleting %d courses from cart[%s]: %w", len(courseIDs), cartID, err)
	}
	return nil
}

// DeleteItems empties the cart. The cart row itself stays active.
func DeleteItems(ctx context.Context, db data.Client, cartID string) error {
	if err := db.Delete(ctx, itemTable, data.Eq("cart_id", cartID)); err != nil {
		return fmt.Errorf("clearing cart[%s]: %w", cartID, err)
	}
	return nil
}
