// Package pgauth authenticates against the users and sessions tables and
// persists the session token in the local store so it survives restarts.
package pgauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/digitalt3/lms-client/auth"
	"github.com/digitalt3/lms-client/database"
	"github.com/digitalt3/lms-client/localstore"
	"github.com/digitalt3/lms-client/random"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

const sessionKey = "lms_auth_session"

type Client struct {
	db        *sqlx.DB
	local     localstore.Store
	ttl       time.Duration
	listeners auth.Listeners

	mu      sync.Mutex
	current *auth.Session
}

func New(db *sqlx.DB, local localstore.Store, ttl time.Duration) *Client {
	return &Client{db: db, local: local, ttl: ttl}
}

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Metadata     []byte `db:"metadata"`
}

func (r userRow) user() auth.User {
	u := auth.User{ID: r.ID, Email: r.Email}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &u.Metadata)
	}
	return u
}

func (c *Client) GetSession(ctx context.Context) (*auth.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && time.Now().Before(c.current.ExpiresAt) {
		s := *c.current
		return &s, nil
	}
	c.current = nil

	token, ok, err := c.local.GetItem(sessionKey)
	if err != nil {
		return nil, &auth.Error{Op: "get session", Err: err}
	}
	if !ok || token == "" {
		return nil, nil
	}

	var row struct {
		userRow
		ExpiresAt time.Time `db:"expires_at"`
	}
	const q = `
	SELECT u.id, u.email, u.password_hash, u.metadata, s.expires_at
	FROM sessions s JOIN users u ON u.id = s.user_id
	WHERE s.token = $1 AND s.expires_at > now()`

	err = c.db.GetContext(ctx, &row, q, token)
	if errors.Is(err, sql.ErrNoRows) {
		_ = c.local.RemoveItem(sessionKey)
		return nil, nil
	}
	if err != nil {
		return nil, &auth.Error{Op: "get session", Err: err}
	}

	c.current = &auth.Session{AccessToken: token, User: row.user(), ExpiresAt: row.ExpiresAt}
	s := *c.current
	return &s, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (auth.User, error) {
	var row userRow
	const q = `SELECT id, email, password_hash, metadata FROM users WHERE lower(email) = lower($1)`

	err := c.db.GetContext(ctx, &row, q, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, &auth.Error{Op: "sign in", Err: auth.ErrInvalidCredentials}
	}
	if err != nil {
		return auth.User{}, &auth.Error{Op: "sign in", Err: err}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return auth.User{}, &auth.Error{Op: "sign in", Err: auth.ErrInvalidCredentials}
	}

	u := row.user()
	if err := c.startSession(ctx, c.db, u); err != nil {
		return auth.User{}, &auth.Error{Op: "sign in", Err: err}
	}
	return u, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]string) (auth.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return auth.User{}, &auth.Error{Op: "sign up", Err: fmt.Errorf("hashing password: %w", err)}
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return auth.User{}, &auth.Error{Op: "sign up", Err: err}
	}
	if metadata == nil {
		meta = []byte("{}")
	}

	u := auth.User{Email: strings.TrimSpace(email), Metadata: metadata}
	err = database.Transaction(c.db, func(tx sqlx.ExtContext) error {
		const qu = `INSERT INTO users (email, password_hash, metadata) VALUES ($1, $2, $3) RETURNING id`
		if err := sqlx.GetContext(ctx, tx, &u.ID, qu, u.Email, string(hash), string(meta)); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		const qp = `INSERT INTO profiles (id, email, full_name) VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, qp, u.ID, u.Email, metadata["full_name"]); err != nil {
			return fmt.Errorf("creating profile: %w", err)
		}
		return nil
	})

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return auth.User{}, &auth.Error{Op: "sign up", Err: auth.ErrUserExists}
	}
	if err != nil {
		return auth.User{}, &auth.Error{Op: "sign up", Err: err}
	}

	if err := c.startSession(ctx, c.db, u); err != nil {
		return auth.User{}, &auth.Error{Op: "sign up", Err: err}
	}
	return u, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := ""
	if c.current != nil {
		token = c.current.AccessToken
	} else if t, ok, err := c.local.GetItem(sessionKey); err == nil && ok {
		token = t
	}
	c.current = nil
	c.mu.Unlock()

	if token != "" {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
			return &auth.Error{Op: "sign out", Err: err}
		}
	}
	if err := c.local.RemoveItem(sessionKey); err != nil {
		return &auth.Error{Op: "sign out", Err: err}
	}

	c.listeners.Emit(auth.SignedOut, nil)
	return nil
}

func (c *Client) OnAuthStateChange(l auth.Listener) func() {
	return c.listeners.Add(l)
}

func (c *Client) startSession(ctx context.Context, db sqlx.ExecerContext, u auth.User) error {
	token, err := random.Token()
	if err != nil {
		return fmt.Errorf("generating session token: %w", err)
	}
	expires := time.Now().Add(c.ttl).UTC()

	const q = `INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := db.ExecContext(ctx, q, token, u.ID, expires); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	if err := c.local.SetItem(sessionKey, token); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	s := &auth.Session{AccessToken: token, User: u, ExpiresAt: expires}
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	cp := *s
	c.listeners.Emit(auth.SignedIn, &cp)
	return nil
}
