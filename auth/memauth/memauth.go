// Package memauth is an in-memory auth.Client for tests and the offline demo.
package memauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/digitalt3/lms-client/auth"
	"github.com/digitalt3/lms-client/validate"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	user auth.User
	hash []byte
}

type Client struct {
	mu        sync.Mutex
	accounts  map[string]account
	current   *auth.Session
	listeners auth.Listeners

	// Fail, when set, is returned by every call.
	Fail error
}

func New() *Client {
	return &Client{accounts: make(map[string]account)}
}

// AddUser registers an account without signing in.
func (c *Client) AddUser(email, password string, metadata map[string]string) auth.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := auth.User{ID: validate.GenerateID(), Email: email, Metadata: metadata}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[strings.ToLower(email)] = account{user: u, hash: hash}
	return u
}

func (c *Client) GetSession(ctx context.Context) (*auth.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return nil, &auth.Error{Op: "get session", Err: c.Fail}
	}
	if c.current == nil {
		return nil, nil
	}
	s := *c.current
	return &s, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (auth.User, error) {
	c.mu.Lock()
	if c.Fail != nil {
		c.mu.Unlock()
		return auth.User{}, &auth.Error{Op: "sign in", Err: c.Fail}
	}
	acc, ok := c.accounts[strings.ToLower(strings.TrimSpace(email))]
	c.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return auth.User{}, &auth.Error{Op: "sign in", Err: auth.ErrInvalidCredentials}
	}

	c.start(acc.user)
	return acc.user, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (auth.User, error) {
	c.mu.Lock()
	if c.Fail != nil {
		c.mu.Unlock()
		return auth.User{}, &auth.Error{Op: "sign up", Err: c.Fail}
	}
	_, exists := c.accounts[strings.ToLower(strings.TrimSpace(email))]
	c.mu.Unlock()

	if exists {
		return auth.User{}, &auth.Error{Op: "sign up", Err: auth.ErrUserExists}
	}

	u := c.AddUser(strings.TrimSpace(email), password, metadata)
	c.start(u)
	return u, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.Fail != nil {
		c.mu.Unlock()
		return &auth.Error{Op: "sign out", Err: c.Fail}
	}
	c.current = nil
	c.mu.Unlock()

	c.listeners.Emit(auth.SignedOut, nil)
	return nil
}

func (c *Client) OnAuthStateChange(l auth.Listener) func() {
	return c.listeners.Add(l)
}

func (c *Client) start(u auth.User) {
	s := &auth.Session{AccessToken: validate.GenerateID(), User: u, ExpiresAt: time.Now().Add(time.Hour)}

	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	cp := *s
	c.listeners.Emit(auth.SignedIn, &cp)
}
