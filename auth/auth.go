// Package auth describes the authentication collaborator: session retrieval,
// email/password sign-in and sign-up, sign-out and change notifications.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrRateLimited        = errors.New("too many attempts, try again later")
)

type User struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Session struct {
	AccessToken string    `json:"-"`
	User        User      `json:"user"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type Event string

const (
	SignedIn  Event = "SIGNED_IN"
	SignedOut Event = "SIGNED_OUT"
)

// Listener receives every login and logout. session is nil after a logout.
type Listener func(evt Event, session *Session)

type Client interface {
	// GetSession returns the persisted session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (User, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (User, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(l Listener) (unsubscribe func())
}

// Error wraps a failed auth call.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Listeners is a registry implementations embed to fan out state changes.
type Listeners struct {
	mu   sync.Mutex
	next int
	m    map[int]Listener
}

func (ls *Listeners) Add(l Listener) func() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.m == nil {
		ls.m = make(map[int]Listener)
	}
	id := ls.next
	ls.next++
	ls.m[id] = l

	return func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		delete(ls.m, id)
	}
}

// Emit calls every listener outside the registry lock, in registration order.
func (ls *Listeners) Emit(evt Event, s *Session) {
	ls.mu.Lock()
	snapshot := make([]Listener, 0, len(ls.m))
	for i := 0; i < ls.next; i++ {
		if l, ok := ls.m[i]; ok {
			snapshot = append(snapshot, l)
		}
	}
	ls.mu.Unlock()

	for _, l := range snapshot {
		l(evt, s)
	}
}
