// Package cart keeps the shopping cart of one client session. A guest cart
// lives in the local store; once a user is known the cart lives remotely and
// the guest content is merged into it. Either way a cart holds at most one
// entry per course and every entry has quantity 1.
package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive = "active"

	cartTable = "cart"
	itemTable = "cart_items"
)

var (
	// ErrAlreadyInCart is returned when adding a course the cart already holds.
	ErrAlreadyInCart = errors.New("course already in cart")

	ErrClosed = errors.New("cart manager closed")
)

// Item is one course in a cart. Price is captured when the course is added
// and is not re-checked at checkout.
type Item struct {
	ID       string          `json:"id"`
	CourseID string          `json:"courseId"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// UserCart is the remote cart owned by one user.
type UserCart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []Item    `json:"items"`
}

// State is the snapshot every observer of the cart sees. It is replaced as a
// whole on each change, never edited in place.
type State struct {
	Items       []Item `json:"items"`
	CartID      string `json:"cartId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Loading     bool   `json:"loading"`
	Err         error  `json:"-"`
	Initialized bool   `json:"initialized"`
}

// Has reports whether the cart holds courseID.
func (s State) Has(courseID string) bool {
	for _, it := range s.Items {
		if it.CourseID == courseID {
			return true
		}
	}
	return false
}

// Subtotal sums the item prices.
func (s State) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.Items {
		sum = sum.Add(it.Price)
	}
	return sum
}

func (s State) clone() State {
	c := s
	c.Items = append([]Item(nil), s.Items...)
	if c.Items == nil {
		c.Items = []Item{}
	}
	return c
}

// normalize applies the cart rules to a list coming from storage:
// quantity is always 1, prices are never negative and only the first entry
// per course is kept.
func normalize(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.CourseID == "" || seen[it.CourseID] || it.Price.IsNegative() {
			continue
		}
		seen[it.CourseID] = true
		it.Quantity = 1
		out = append(out, it)
	}
	return out
}

func without(items []Item, courseIDs ...string) []Item {
	drop := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		drop[id] = true
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !drop[it.CourseID] {
			out = append(out, it)
		}
	}
	return out
}
