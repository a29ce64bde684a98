package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/localstore"
	"github.com/digitalt3/lms-client/notify"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DB       data.Client
	Local    localstore.Store
	Log      logrus.FieldLogger
	Notifier notify.Notifier
}

// Manager owns the cart of one client session. Mutating operations run one
// at a time; readers get a copy of the current snapshot.
type Manager struct {
	db     data.Client
	guest  *GuestStore
	log    logrus.FieldLogger
	notice notify.Notifier

	ops sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
	closed bool
}

func New(cfg Config) *Manager {
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Manager{
		db:     cfg.DB,
		guest:  NewGuestStore(cfg.Local, log),
		log:    log.WithField("component", "cart"),
		notice: cfg.Notifier,
		state:  State{Items: []Item{}},
		subs:   make(map[int]func(State)),
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Subscribe registers fn to receive every new snapshot. The returned func
// removes the subscription. fn runs on the goroutine that changed the state
// and must not call back into the cart operations.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close drops all subscribers. Later operations fail with ErrClosed.
func (m *Manager) Close() {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	m.closed = true
	m.subs = make(map[int]func(State))
	m.mu.Unlock()
}

// Ready reports whether the cart holds the authoritative content for userID.
func (m *Manager) Ready(userID string) bool {
	s := m.Snapshot()
	return userID != "" && s.UserID == userID && s.CartID != "" && s.Initialized && !s.Loading
}

func (m *Manager) update(fn func(s *State)) {
	m.mu.Lock()
	next := m.state.clone()
	fn(&next)
	m.state = next

	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
}

func (m *Manager) begin() (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return State{}, ErrClosed
	}
	return m.state.clone(), nil
}

func (m *Manager) backend(s State) backend {
	if s.UserID == "" {
		return &guestBackend{store: m.guest}
	}
	return &userBackend{db: m.db, userID: s.UserID, cart: s.CartID}
}

// InitGuestCart loads the guest cart into state. It is called at startup
// and again after sign out.
func (m *Manager) InitGuestCart() error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if _, err := m.begin(); err != nil {
		return err
	}

	g := m.guest.Load()
	m.update(func(s *State) {
		*s = State{Items: g.Items, Initialized: true}
	})
	return nil
}

// Reset forgets the user and reloads the guest cart.
func (m *Manager) Reset() error {
	return m.InitGuestCart()
}

// LoadCartForUser replaces the in-memory cart with the user's remote cart,
// creating it when needed. It always leaves the cart initialized. When the
// load fails for a different user than the current one, the cart switches
// to that user with no items so later changes reach the user's remote cart.
func (m *Manager) LoadCartForUser(ctx context.Context, userID string) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if _, err := m.begin(); err != nil {
		return err
	}
	return m.load(ctx, userID)
}

func (m *Manager) load(ctx context.Context, userID string) error {
	m.update(func(s *State) {
		s.Loading = true
		s.Err = nil
	})

	c, err := GetOrCreate(ctx, m.db, userID)
	if err == nil {
		c.Items, err = FetchItems(ctx, m.db, c.ID)
	}
	if err != nil {
		m.log.WithError(err).WithField("user_id", userID).Error("loading cart")
		notify.Error(m.notice, "Failed to load cart")
		m.update(func(s *State) {
			if s.UserID != userID {
				s.Items = []Item{}
				s.CartID = ""
				s.UserID = userID
			}
			s.Loading = false
			s.Err = err
			s.Initialized = true
		})
		return err
	}

	m.update(func(s *State) {
		*s = State{Items: c.Items, CartID: c.ID, UserID: userID, Initialized: true}
	})
	return nil
}

// MergeGuestCartToUser moves the guest cart into the user's remote cart,
// skipping courses the remote cart already has, then reloads. It must
// finish before the cart is used for the signed in user.
func (m *Manager) MergeGuestCartToUser(ctx context.Context, userID string) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if _, err := m.begin(); err != nil {
		return err
	}

	g := m.guest.Load()
	if len(g.Items) == 0 {
		m.update(func(s *State) { s.UserID = userID })
		return nil
	}

	log := m.log.WithFields(logrus.Fields{"user_id": userID, "guest_items": len(g.Items)})

	added, err := m.merge(ctx, userID, g.Items)
	if err != nil {
		log.WithError(err).Error("merging guest cart")
		notify.Error(m.notice, "Failed to merge cart")
		return err
	}

	m.guest.Save(Guest{})
	log.WithField("added", added).Info("guest cart merged")
	notify.Success(m.notice, "Cart items merged from guest session")

	return m.load(ctx, userID)
}

func (m *Manager) merge(ctx context.Context, userID string, guest []Item) (int, error) {
	c, err := GetOrCreate(ctx, m.db, userID)
	if err != nil {
		return 0, err
	}

	present, err := FetchCourseIDs(ctx, m.db, c.ID)
	if err != nil {
		return 0, err
	}

	var missing []Item
	for _, it := range guest {
		if !present[it.CourseID] {
			missing = append(missing, it)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	if _, err := CreateItems(ctx, m.db, c.ID, missing); err == nil {
		return len(missing), nil
	} else if !data.IsConstraint(err) {
		return 0, err
	}

	// Another writer added one of the courses between the read and the
	// batch insert. Insert one by one and skip the ones now present.
	added := 0
	for _, it := range missing {
		if _, err := CreateItem(ctx, m.db, c.ID, it); err != nil {
			if data.IsConstraint(err) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}

// AddCourse puts courseID in the cart at price. Adding a course the cart
// already holds returns ErrAlreadyInCart without touching storage.
func (m *Manager) AddCourse(ctx context.Context, courseID string, price decimal.Decimal) (Item, error) {
	m.ops.Lock()
	defer m.ops.Unlock()

	s, err := m.begin()
	if err != nil {
		return Item{}, err
	}
	if courseID == "" {
		return Item{}, errors.New("course id is required")
	}
	if price.IsNegative() {
		return Item{}, fmt.Errorf("course[%s]: negative price %s", courseID, price)
	}
	if s.Has(courseID) {
		notify.Info(m.notice, "Course already in cart")
		return Item{}, ErrAlreadyInCart
	}

	b := m.backend(s)
	it, err := b.add(ctx, s.Items, Item{CourseID: courseID, Price: price, Quantity: 1})
	if err != nil {
		if data.IsConstraint(err) {
			return Item{}, m.resync(ctx, s.UserID, b.cartID())
		}
		m.log.WithError(err).WithField("course_id", courseID).Error("adding to cart")
		notify.Error(m.notice, "Failed to add to cart")
		return Item{}, err
	}
	it.Quantity = 1

	m.update(func(st *State) {
		st.Items = append(st.Items, it)
		if id := b.cartID(); id != "" {
			st.CartID = id
		}
	})
	notify.Success(m.notice, "Added to cart")
	return it, nil
}

// resync handles a duplicate rejected by storage: the remote cart already
// has the course, so the local copy is stale. It reloads the items and
// reports the duplicate.
func (m *Manager) resync(ctx context.Context, userID, cartID string) error {
	items, err := FetchItems(ctx, m.db, cartID)
	if err != nil {
		m.log.WithError(err).WithField("cart_id", cartID).Warn("resyncing cart after duplicate")
	} else {
		m.update(func(st *State) {
			if st.UserID == userID {
				st.Items = items
				st.CartID = cartID
			}
		})
	}
	notify.Info(m.notice, "Course already in cart")
	return ErrAlreadyInCart
}

func (m *Manager) RemoveCourse(ctx context.Context, courseID string) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	s, err := m.begin()
	if err != nil {
		return err
	}

	if err := m.backend(s).remove(ctx, s.Items, courseID); err != nil {
		m.log.WithError(err).WithField("course_id", courseID).Error("removing from cart")
		notify.Error(m.notice, "Failed to remove")
		return err
	}

	m.update(func(st *State) { st.Items = without(st.Items, courseID) })
	notify.Success(m.notice, "Removed from cart")
	return nil
}

func (m *Manager) ClearCart(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	s, err := m.begin()
	if err != nil {
		return err
	}
	return m.clear(ctx, s)
}

// RemoveCourses drops the given courses without a notice. Checkout uses it
// after a completed order so that courses added while the payment ran stay
// in the cart.
func (m *Manager) RemoveCourses(ctx context.Context, courseIDs []string) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	s, err := m.begin()
	if err != nil {
		return err
	}
	if len(courseIDs) == 0 {
		return nil
	}

	if err := m.backend(s).remove(ctx, s.Items, courseIDs...); err != nil {
		m.log.WithError(err).WithField("courses", len(courseIDs)).Error("removing purchased courses")
		return err
	}

	m.update(func(st *State) { st.Items = without(st.Items, courseIDs...) })
	return nil
}

func (m *Manager) clear(ctx context.Context, s State) error {
	if err := m.backend(s).clear(ctx); err != nil {
		m.log.WithError(err).Error("clearing cart")
		notify.Error(m.notice, "Failed to clear cart")
		return err
	}

	m.update(func(st *State) { st.Items = []Item{} })
	notify.Success(m.notice, "Cart cleared")
	return nil
}
