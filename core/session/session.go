// Package session tracks who is signed in. It follows the auth client's
// state changes, loads the matching profile and tells subscribers about
// every transition so the cart can follow the user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/digitalt3/lms-client/auth"
	"github.com/digitalt3/lms-client/core/claims"
	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/notify"
	"github.com/digitalt3/lms-client/rate"
	"github.com/digitalt3/lms-client/validate"
	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusIdle          Status = "idle"
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusError         Status = "error"
)

const profileTable = "profiles"

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type State struct {
	User    *auth.User `json:"user"`
	Profile *Profile   `json:"profile"`
	Status  Status     `json:"status"`
	Err     error      `json:"-"`
}

// UserID returns the id of the signed in user, empty when signed out.
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Claims describes the signed in user for request handlers.
func (s State) Claims() (claims.Claims, bool) {
	if s.User == nil {
		return claims.Claims{}, false
	}
	role := claims.RoleStudent
	if s.Profile != nil && s.Profile.Role != "" {
		role = s.Profile.Role
	}
	return claims.Claims{UserID: s.User.ID, Email: s.User.Email, Role: role}, true
}

type Signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"fullName" validate:"required"`
}

type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Config struct {
	Auth     auth.Client
	DB       data.Client
	Limiter  *rate.Limiter
	Log      logrus.FieldLogger
	Notifier notify.Notifier

	// ProfileTimeout bounds the profile lookup run on auth state changes.
	ProfileTimeout time.Duration
}

type Manager struct {
	auth    auth.Client
	db      data.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
	notice  notify.Notifier
	timeout time.Duration
	unsub   func()

	mu     sync.RWMutex
	state  State
	subs   map[int]func(prev, next State)
	nextID int
}

// New builds the manager and starts following cfg.Auth. Close stops it.
func New(cfg Config) *Manager {
	log := cfg.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	timeout := cfg.ProfileTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	m := &Manager{
		auth:    cfg.Auth,
		db:      cfg.DB,
		limiter: cfg.Limiter,
		log:     log.WithField("component", "session"),
		notice:  cfg.Notifier,
		timeout: timeout,
		state:   State{Status: StatusIdle},
		subs:    make(map[int]func(prev, next State)),
	}
	m.unsub = cfg.Auth.OnAuthStateChange(m.onAuthChange)
	return m
}

func (m *Manager) Close() {
	m.unsub()

	m.mu.Lock()
	m.subs = make(map[int]func(prev, next State))
	m.mu.Unlock()
}

func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) UserID() string {
	return m.Snapshot().UserID()
}

// Subscribe calls fn with the previous and the new state on every change,
// on the goroutine that caused it. The returned func cancels.
func (m *Manager) Subscribe(fn func(prev, next State)) func() {
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

func (m *Manager) set(fn func(s *State)) {
	m.mu.Lock()
	prev := m.state
	next := prev
	fn(&next)
	m.state = next

	// Subscribers run in registration order.
	subs := make([]func(prev, next State), 0, len(m.subs))
	for i := 0; i < m.nextID; i++ {
		if sub, ok := m.subs[i]; ok {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub(prev, next)
	}
}

func (m *Manager) signedIn(ctx context.Context, u auth.User) {
	p := m.fetchProfile(ctx, u.ID)
	m.set(func(s *State) {
		*s = State{User: &u, Profile: p, Status: StatusAuthenticated}
	})
}

func (m *Manager) signedOut() {
	m.set(func(s *State) {
		*s = State{Status: StatusIdle}
	})
}

func (m *Manager) onAuthChange(evt auth.Event, sess *auth.Session) {
	if evt == auth.SignedIn && sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.signedIn(ctx, sess.User)
		return
	}
	m.signedOut()
}

// fetchProfile returns nil when the profile cannot be read. The user stays
// signed in without it.
func (m *Manager) fetchProfile(ctx context.Context, userID string) *Profile {
	r, ok, err := data.First(ctx, m.db, data.Query{
		Table:   profileTable,
		Filters: []data.Filter{data.Eq("id", userID)},
	})
	if err != nil {
		m.log.WithError(err).WithField("user_id", userID).Error("loading profile")
		return nil
	}
	if !ok {
		return nil
	}

	return &Profile{
		ID:        r.String("id"),
		Email:     r.String("email"),
		FullName:  r.String("full_name"),
		AvatarURL: r.String("avatar_url"),
		Role:      r.String("role"),
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}
}

// Initialize recovers a persisted session. A recovered user is announced to
// subscribers like a fresh sign in.
func (m *Manager) Initialize(ctx context.Context) error {
	m.set(func(s *State) {
		s.Status = StatusLoading
		s.Err = nil
	})

	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		m.log.WithError(err).Error("recovering session")
		m.set(func(s *State) {
			s.Status = StatusError
			s.Err = err
		})
		return fmt.Errorf("recovering session: %w", err)
	}

	if sess == nil {
		m.signedOut()
		return nil
	}
	m.signedIn(ctx, sess.User)
	return nil
}

func (m *Manager) fail(err error, fallback string) {
	m.set(func(s *State) {
		s.Status = StatusError
		s.Err = err
	})
	notify.Error(m.notice, Message(err, fallback))
}

// SignIn signs in with email and password. Subscribers have seen the new
// user by the time it returns.
func (m *Manager) SignIn(ctx context.Context, l Login) (auth.User, error) {
	l.Email = strings.TrimSpace(l.Email)
	if err := validate.Check(l); err != nil {
		m.fail(err, "Sign in failed")
		return auth.User{}, err
	}
	if m.limiter != nil && !m.limiter.Allow(l.Email) {
		err := &auth.Error{Op: "sign in", Err: auth.ErrRateLimited}
		m.fail(err, "Sign in failed")
		return auth.User{}, err
	}

	m.set(func(s *State) {
		s.Status = StatusLoading
		s.Err = nil
	})

	u, err := m.auth.SignInWithPassword(ctx, l.Email, l.Password)
	if err != nil {
		m.log.WithError(err).WithField("email", l.Email).Warn("sign in")
		m.fail(err, "Sign in failed")
		return auth.User{}, err
	}

	m.ensure(ctx, u)
	notify.Success(m.notice, "Signed in successfully")
	return u, nil
}

// SignUp creates the account and signs it in.
func (m *Manager) SignUp(ctx context.Context, su Signup) (auth.User, error) {
	su.Email = strings.TrimSpace(su.Email)
	su.FullName = strings.TrimSpace(su.FullName)
	if err := validate.Check(su); err != nil {
		m.fail(err, "Registration failed")
		return auth.User{}, err
	}

	m.set(func(s *State) {
		s.Status = StatusLoading
		s.Err = nil
	})

	u, err := m.auth.SignUp(ctx, su.Email, su.Password, map[string]string{"full_name": su.FullName})
	if err != nil {
		m.log.WithError(err).WithField("email", su.Email).Warn("sign up")
		m.fail(err, "Registration failed")
		return auth.User{}, err
	}

	m.ensure(ctx, u)
	notify.Success(m.notice, "Account created. Please verify your email if required.")
	return u, nil
}

// ensure covers auth clients that do not report the sign in through their
// listeners.
func (m *Manager) ensure(ctx context.Context, u auth.User) {
	if m.UserID() == u.ID {
		return
	}
	m.signedIn(ctx, u)
}

func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		m.log.WithError(err).Warn("sign out")
		notify.Error(m.notice, Message(err, "Sign out failed"))
		return err
	}

	if s := m.Snapshot(); s.User != nil || s.Status != StatusIdle {
		m.signedOut()
	}
	notify.Success(m.notice, "Signed out")
	return nil
}

// Message turns err into a short sentence for the user.
func Message(err error, fallback string) string {
	var fe *validate.FieldError
	switch {
	case errors.As(err, &fe):
		return fe.Message
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid login credentials"
	case errors.Is(err, auth.ErrUserExists):
		return "User already registered"
	case errors.Is(err, auth.ErrRateLimited):
		return "Too many attempts, try again later"
	}
	return fallback
}
