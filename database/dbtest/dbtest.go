// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/digitalt3/lms-client/database"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// NewDB returns a migrated database. The test is skipped in -short mode or
// when no Docker daemon is reachable.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=lms",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres container: %v", err)
		}
	})
	_ = res.Expire(300)

	cfg := database.Config{
		User:         "postgres",
		Password:     "postgres",
		Host:         res.GetHostPort("5432/tcp"),
		Name:         "lms",
		DisableTLS:   true,
		MaxIdleConns: 2,
		MaxOpenConns: 5,
	}

	var db *sqlx.DB
	pool.MaxWait = time.Minute
	err = pool.Retry(func() error {
		var err error
		db, err = database.Open(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	})
	if err != nil {
		t.Fatalf("waiting for postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

// CreateUser inserts a bare user row and returns its id.
func CreateUser(t *testing.T, db *sqlx.DB, email string) string {
	t.Helper()

	var id string
	q := `INSERT INTO users (email, password_hash) VALUES ($1, 'x') RETURNING id`
	if err := db.Get(&id, q, email); err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	q = `INSERT INTO profiles (id, email) VALUES ($1, $2)`
	if _, err := db.Exec(q, id, email); err != nil {
		t.Fatalf("creating profile %s: %v", email, err)
	}
	return fmt.Sprint(id)
}
