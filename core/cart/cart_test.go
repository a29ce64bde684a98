package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/data/memdata"
	"github.com/digitalt3/lms-client/localstore"
	"github.com/digitalt3/lms-client/notify"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

type fixture struct {
	db     *memdata.Store
	local  *localstore.Memory
	notes  *notify.Queue
	m      *Manager
	userID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db: memdata.New(
			memdata.Unique(itemTable, "cart_id", "course_id"),
			memdata.Unique(cartTable, "user_id", "status"),
		),
		local:  localstore.NewMemory(),
		notes:  notify.NewQueue(50),
		userID: "u1",
	}
	f.m = New(Config{DB: f.db, Local: f.local, Notifier: f.notes})
	t.Cleanup(f.m.Close)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func courseIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.CourseID)
	}
	sort.Strings(ids)
	return ids
}

func remoteCourseIDs(db *memdata.Store) []string {
	var ids []string
	for _, r := range db.Rows(itemTable) {
		ids = append(ids, r.String("course_id"))
	}
	sort.Strings(ids)
	return ids
}

func lastNotice(q *notify.Queue) string {
	ns := q.Drain()
	if len(ns) == 0 {
		return ""
	}
	return ns[len(ns)-1].Message
}

func TestGuestAddIsUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.m.InitGuestCart(); err != nil {
		t.Fatal(err)
	}
	if !f.m.Snapshot().Initialized {
		t.Fatal("expected cart to be initialized")
	}

	if _, err := f.m.AddCourse(ctx, "c1", dec("10")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.AddCourse(ctx, "c2", dec("0")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.AddCourse(ctx, "c1", dec("10")); !errors.Is(err, ErrAlreadyInCart) {
		t.Fatalf("expected ErrAlreadyInCart, got %v", err)
	}
	if got := lastNotice(f.notes); got != "Course already in cart" {
		t.Fatalf("unexpected notice %q", got)
	}

	s := f.m.Snapshot()
	if diff := cmp.Diff([]string{"c1", "c2"}, courseIDs(s.Items)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	for _, it := range s.Items {
		if it.Quantity != 1 {
			t.Fatalf("course %s: expected quantity 1, got %d", it.CourseID, it.Quantity)
		}
		if it.ID == "" {
			t.Fatalf("course %s: expected a generated id", it.CourseID)
		}
	}

	if n := f.db.Calls("select", "") + f.db.Mutations(); n != 0 {
		t.Fatalf("expected guest cart to leave remote storage alone, saw %d calls", n)
	}

	// A fresh manager over the same local store sees the persisted cart.
	other := New(Config{DB: f.db, Local: f.local})
	defer other.Close()
	if err := other.InitGuestCart(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c1", "c2"}, courseIDs(other.Snapshot().Items)); diff != "" {
		t.Fatalf("persisted items mismatch (-want +got):\n%s", diff)
	}
}

func TestGuestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.InitGuestCart()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := f.m.AddCourse(ctx, id, dec("1")); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.m.RemoveCourse(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "c"}, courseIDs(f.m.Snapshot().Items)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "c"}, courseIDs(f.m.guest.Load().Items)); diff != "" {
		t.Fatalf("stored items mismatch (-want +got):\n%s", diff)
	}

	if err := f.m.ClearCart(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(f.m.Snapshot().Items); n != 0 {
		t.Fatalf("expected empty cart, got %d items", n)
	}
	if n := len(f.m.guest.Load().Items); n != 0 {
		t.Fatalf("expected empty guest store, got %d items", n)
	}
	if got := lastNotice(f.notes); got != "Cart cleared" {
		t.Fatalf("unexpected notice %q", got)
	}
}

func TestUserCartStaysRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.local.SetItem(GuestKey, `{"items":[]}`)
	if err := f.m.LoadCartForUser(ctx, f.userID); err != nil {
		t.Fatal(err)
	}
	s := f.m.Snapshot()
	if s.CartID == "" || s.UserID != f.userID || !s.Initialized || s.Loading {
		t.Fatalf("unexpected state after load: %+v", s)
	}
	if !f.m.Ready(f.userID) {
		t.Fatal("expected cart to be ready for the user")
	}

	before, _, _ := f.local.GetItem(GuestKey)

	if _, err := f.m.AddCourse(ctx, "c1", dec("12.5")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.AddCourse(ctx, "c2", dec("3")); err != nil {
		t.Fatal(err)
	}
	inserts := f.db.Calls("insert", itemTable)
	if _, err := f.m.AddCourse(ctx, "c1", dec("12.5")); !errors.Is(err, ErrAlreadyInCart) {
		t.Fatalf("expected ErrAlreadyInCart, got %v", err)
	}
	if n := f.db.Calls("insert", itemTable); n != inserts {
		t.Fatalf("expected no insert for a duplicate, saw %d more", n-inserts)
	}
	if err := f.m.RemoveCourse(ctx, "c2"); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"c1"}, remoteCourseIDs(f.db)); diff != "" {
		t.Fatalf("remote items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c1"}, courseIDs(f.m.Snapshot().Items)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	for _, r := range f.db.Rows(itemTable) {
		if r.Int("quantity") != 1 {
			t.Fatalf("expected stored quantity 1, got %v", r["quantity"])
		}
	}

	after, _, _ := f.local.GetItem(GuestKey)
	if before != after {
		t.Fatalf("guest key rewritten while signed in: %q -> %q", before, after)
	}

	if err := f.m.ClearCart(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(f.db.Rows(itemTable)); n != 0 {
		t.Fatalf("expected remote cart to be empty, got %d rows", n)
	}
	if n := len(f.db.Rows(cartTable)); n != 1 {
		t.Fatalf("expected the cart row to survive clearing, got %d", n)
	}
}

func TestLoadCartReusesActiveCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.db.Seed(cartTable, data.Row{"id": "old", "user_id": f.userID, "status": "ordered"})
	f.db.Seed(cartTable, data.Row{"id": "cart-1", "user_id": f.userID, "status": StatusActive})
	f.db.Seed(itemTable, data.Row{"cart_id": "cart-1", "course_id": "c9", "price": "4.20", "quantity": 3})

	for i := 0; i < 2; i++ {
		if err := f.m.LoadCartForUser(ctx, f.userID); err != nil {
			t.Fatal(err)
		}
	}

	s := f.m.Snapshot()
	if s.CartID != "cart-1" {
		t.Fatalf("expected active cart to be reused, got %q", s.CartID)
	}
	if f.db.Calls("insert", cartTable) != 0 {
		t.Fatal("expected no cart to be created")
	}
	want := []Item{{ID: s.Items[0].ID, CourseID: "c9", Price: dec("4.2"), Quantity: 1}}
	if diff := cmp.Diff(want, s.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFailureStillInitializes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("network down")
	f.db.FailOn("select", cartTable, boom)

	var seen []State
	cancel := f.m.Subscribe(func(s State) { seen = append(seen, s) })
	defer cancel()

	if err := f.m.LoadCartForUser(ctx, f.userID); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}

	s := f.m.Snapshot()
	if !s.Initialized || s.Loading || !errors.Is(s.Err, boom) {
		t.Fatalf("unexpected state after failed load: %+v", s)
	}
	if len(seen) < 2 || !seen[0].Loading {
		t.Fatalf("expected a loading snapshot before the failure, got %+v", seen)
	}
	if got := lastNotice(f.notes); got != "Failed to load cart" {
		t.Fatalf("unexpected notice %q", got)
	}
}

func TestLoadFailureSwitchesToUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.m.InitGuestCart(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.AddCourse(ctx, "g1", dec("5")); err != nil {
		t.Fatal(err)
	}

	f.db.FailOn("select", cartTable, errors.New("network down"))
	if err := f.m.LoadCartForUser(ctx, f.userID); err == nil {
		t.Fatal("expected the load to fail")
	}

	s := f.m.Snapshot()
	if s.UserID != f.userID || len(s.Items) != 0 || s.CartID != "" {
		t.Fatalf("expected an empty cart owned by %s, got %+v", f.userID, s)
	}

	f.db.ClearFailures()
	if _, err := f.m.AddCourse(ctx, "c1", dec("10")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"c1"}, remoteCourseIDs(f.db)); diff != "" {
		t.Fatalf("remote items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"g1"}, courseIDs(f.m.guest.Load().Items)); diff != "" {
		t.Fatalf("expected the guest cart kept for later (-want +got):\n%s", diff)
	}
}

func TestRemoveCourses(t *testing.T) {
	ctx := context.Background()

	for _, user := range []bool{false, true} {
		name := "guest"
		if user {
			name = "user"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			if user {
				if err := f.m.LoadCartForUser(ctx, f.userID); err != nil {
					t.Fatal(err)
				}
			} else if err := f.m.InitGuestCart(); err != nil {
				t.Fatal(err)
			}
			for _, id := range []string{"a", "b", "c"} {
				if _, err := f.m.AddCourse(ctx, id, dec("1")); err != nil {
					t.Fatal(err)
				}
			}
			f.notes.Drain()

			if err := f.m.RemoveCourses(ctx, []string{"a", "c", "x"}); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"b"}, courseIDs(f.m.Snapshot().Items)); diff != "" {
				t.Fatalf("items mismatch (-want +got):\n%s", diff)
			}
			if user {
				if diff := cmp.Diff([]string{"b"}, remoteCourseIDs(f.db)); diff != "" {
					t.Fatalf("remote items mismatch (-want +got):\n%s", diff)
				}
			} else if diff := cmp.Diff([]string{"b"}, courseIDs(f.m.guest.Load().Items)); diff != "" {
				t.Fatalf("guest items mismatch (-want +got):\n%s", diff)
			}
			if ns := f.notes.Drain(); len(ns) != 0 {
				t.Fatalf("expected no notices, got %+v", ns)
			}
		})
	}
}

func TestFailedMutationsKeepState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.m.LoadCartForUser(ctx, f.userID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.AddCourse(ctx, "c1", dec("10")); err != nil {
		t.Fatal(err)
	}
	before := f.m.Snapshot()

	boom := errors.New("timeout")
	f.db.FailOn("insert", itemTable, boom)
	f.db.FailOn("delete", itemTable, boom)

	if _, err := f.m.AddCourse(ctx, "c2", dec("5")); !errors.Is(err, boom) {
		t.Fatalf("expected add to fail with %v, got %v", boom, err)
	}
	if got := lastNotice(f.notes); got != "Failed to add to cart" {
		t.Fatalf("unexpected notice %q", got)
	}
	if err := f.m.RemoveCourse(ctx, "c1"); !errors.Is(err, boom) {
		t.Fatalf("expected remove to fail with %v, got %v", boom, err)
	}
	if got := lastNotice(f.notes); got != "Failed to remove" {
		t.Fatalf("unexpected notice %q", got)
	}
	if err := f.m.ClearCart(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected clear to fail with %v, got %v", boom, err)
	}

	if diff := cmp.Diff(before.Items, f.m.Snapshot().Items); diff != "" {
		t.Fatalf("state changed after failures (-before +after):\n%s", diff)
	}
}

func TestMergeSkipsCoursesAlreadyRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.db.Seed(cartTable, data.Row{"id": "cart-1", "user_id": f.userID, "status": StatusActive})
	f.db.Seed(itemTable, data.Row{"cart_id": "cart-1", "course_id": "1", "price": "10", "quantity": 1})

	f.m.InitGuestCart()
	f.m.AddCourse(ctx, "1", dec("10"))
	f.m.AddCourse(ctx, "2", dec("0"))
	f.notes.Drain()

	if err := f.m.MergeGuestCartToUser(ctx, f.userID); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"1", "2"}, remoteCourseIDs(f.db)); diff != "" {
		t.Fatalf("remote items mismatch (-want +got):\n%s", diff)
	}
	s := f.m.Snapshot()
	if s.UserID != f.userID || s.CartID != "cart-1" {
		t.Fatalf("unexpected state after merge: %+v", s)
	}
	if diff := cmp.Diff([]string{"1", "2"}, courseIDs(s.Items)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if n := len(f.m.guest.Load().Items); n != 0 {
		t.Fatalf("expected guest cart to be cleared, got %d items", n)
	}
	if got := f.notes.Drain(); len(got) == 0 || got[0].Message != "Cart items merged from guest session" {
		t.Fatalf("unexpected notices %+v", got)
	}

	// The guest cart is empty now, so a second merge only records the user.
	rows := len(f.db.Rows(itemTable))
	if err := f.m.MergeGuestCartToUser(ctx, f.userID); err != nil {
		t.Fatal(err)
	}
	if n := len(f.db.Rows(itemTable)); n != rows {
		t.Fatalf("expected %d remote rows after second merge, got %d", rows, n)
	}
}

func TestMergeFailureKeepsGuestCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.m.InitGuestCart()
	f.m.AddCourse(ctx, "a", dec("1"))

	boom := errors.New("policy")
	f.db.FailOn("insert", itemTable, boom)

	if err := f.m.MergeGuestCartToUser(ctx, f.userID); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if got := lastNotice(f.notes); got != "Failed to merge cart" {
		t.Fatalf("unexpected notice %q", got)
	}
	if n := len(f.m.guest.Load().Items); n != 1 {
		t.Fatalf("expected guest cart to survive, got %d items", n)
	}
	if s := f.m.Snapshot(); s.UserID != "" || len(s.Items) != 1 {
		t.Fatalf("expected state unchanged, got %+v", s)
	}
}

func TestConcurrentAddsStoreOneRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.m.LoadCartForUser(ctx, f.userID); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.m.AddCourse(ctx, "c1", dec("10"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrAlreadyInCart):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one add to succeed, got %d", ok)
	}
	if n := len(f.db.Rows(itemTable)); n != 1 {
		t.Fatalf("expected one remote row, got %d", n)
	}
}

func TestDuplicateRejectedByStorageResyncs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.m.LoadCartForUser(ctx, f.userID); err != nil {
		t.Fatal(err)
	}
	cartID := f.m.Snapshot().CartID

	// Another device added the course after this cart was loaded.
	f.db.Seed(itemTable, data.Row{"cart_id": cartID, "course_id": "c1", "price": "10", "quantity": 1})

	if _, err := f.m.AddCourse(ctx, "c1", dec("10")); !errors.Is(err, ErrAlreadyInCart) {
		t.Fatalf("expected ErrAlreadyInCart, got %v", err)
	}
	if diff := cmp.Diff([]string{"c1"}, courseIDs(f.m.Snapshot().Items)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestClosedManager(t *testing.T) {
	f := newFixture(t)
	f.m.Close()
	if _, err := f.m.AddCourse(context.Background(), "c1", dec("1")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := f.m.InitGuestCart(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
