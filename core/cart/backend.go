package cart

import (
	"context"

	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/validate"
)

// backend persists cart mutations for one owner. The manager picks the
// guest or the user backend from the current state.
type backend interface {
	add(ctx context.Context, items []Item, it Item) (Item, error)
	remove(ctx context.Context, items []Item, courseIDs ...string) error
	clear(ctx context.Context) error

	// cartID is the remote cart the last call resolved, empty for guests.
	cartID() string
}

type guestBackend struct {
	store *GuestStore
}

func (g *guestBackend) add(_ context.Context, items []Item, it Item) (Item, error) {
	it.ID = validate.GenerateID()
	it.Quantity = 1
	g.store.Save(Guest{Items: append(append([]Item(nil), items...), it)})
	return it, nil
}

func (g *guestBackend) remove(_ context.Context, items []Item, courseIDs ...string) error {
	g.store.Save(Guest{Items: without(items, courseIDs...)})
	return nil
}

func (g *guestBackend) clear(context.Context) error {
	g.store.Save(Guest{})
	return nil
}

func (g *guestBackend) cartID() string { return "" }

type userBackend struct {
	db     data.Client
	userID string
	cart   string
}

func (u *userBackend) resolve(ctx context.Context) (string, error) {
	if u.cart != "" {
		return u.cart, nil
	}
	c, err := GetOrCreate(ctx, u.db, u.userID)
	if err != nil {
		return "", err
	}
	u.cart = c.ID
	return u.cart, nil
}

func (u *userBackend) add(ctx context.Context, _ []Item, it Item) (Item, error) {
	id, err := u.resolve(ctx)
	if err != nil {
		return Item{}, err
	}
	return CreateItem(ctx, u.db, id, it)
}

func (u *userBackend) remove(ctx context.Context, _ []Item, courseIDs ...string) error {
	switch {
	case u.cart == "" || len(courseIDs) == 0:
		return nil
	case len(courseIDs) == 1:
		return DeleteItem(ctx, u.db, u.cart, courseIDs[0])
	}
	return DeleteCourses(ctx, u.db, u.cart, courseIDs)
}

func (u *userBackend) clear(ctx context.Context) error {
	if u.cart == "" {
		return nil
	}
	return DeleteItems(ctx, u.db, u.cart)
}

func (u *userBackend) cartID() string { return u.cart }
