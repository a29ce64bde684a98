// Package config holds the settings of the client, read from LMS_* environment
// variables and command line flags.
package config

import (
	"time"

	"github.com/digitalt3/lms-client/database"
)

type Web struct {
	Address         string        `conf:"default:127.0.0.1:8080"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:30s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Cors struct {
	Origin string `conf:"default:http://localhost:3000"`
}

// Local is the on-device store holding the guest cart and the session token.
type Local struct {
	Path string `conf:"default:lms-local.db"`
}

type Auth struct {
	SessionTTL     time.Duration `conf:"default:168h"`
	LoginBurst     int           `conf:"default:5"`
	LoginInterval  time.Duration `conf:"default:1m"`
	LoginExpiry    time.Duration `conf:"default:1h"`
	ProfileTimeout time.Duration `conf:"default:10s"`
}

type Checkout struct {
	// SyncTimeout bounds the cart merge and reload after a sign in.
	SyncTimeout time.Duration `conf:"default:30s"`
	NoticeQueue int           `conf:"default:50"`
}

type Log struct {
	Level string `conf:"default:info"`
	JSON  bool   `conf:"default:false"`
}

// Demo runs against in-memory data and auth with a seeded catalog and
// account instead of PostgreSQL.
type Demo struct {
	Enabled  bool   `conf:"default:false"`
	Email    string `conf:"default:demo@example.com"`
	Password string `conf:"default:demo1234,mask"`
}

type Config struct {
	Web      Web
	Cors     Cors
	DB       database.Config
	Local    Local
	Auth     Auth
	Checkout Checkout
	Log      Log
	Demo     Demo
}
