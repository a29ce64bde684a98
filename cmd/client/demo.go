package main

import (
	"github.com/digitalt3/lms-client/auth"
	"github.com/digitalt3/lms-client/auth/memauth"
	"github.com/digitalt3/lms-client/config"
	"github.com/digitalt3/lms-client/data"
	"github.com/digitalt3/lms-client/data/memdata"
)

// demo returns in-memory collaborators with the same uniqueness rules as
// the database schema, a small catalog and one account.
func demo(cfg config.Demo) (data.Client, auth.Client) {
	db := memdata.New(
		memdata.Unique("cart", "user_id", "status"),
		memdata.Unique("cart_items", "cart_id", "course_id"),
		memdata.Unique("orders", "transaction_id"),
	)
	db.Seed("courses",
		data.Row{"title": "Go for Backend Developers", "description": "Services, testing and deployment.", "price": "49.00", "published": true},
		data.Row{"title": "SQL Fundamentals", "description": "Queries, joins and indexes.", "price": "19.99", "published": true},
		data.Row{"title": "Intro to Programming", "description": "Start here.", "price": "0", "published": true},
	)

	ac := memauth.New()
	u := ac.AddUser(cfg.Email, cfg.Password, map[string]string{"full_name": "Demo Student"})
	db.Seed("profiles", data.Row{"id": u.ID, "email": u.Email, "full_name": "Demo Student", "role": "student"})

	return db, ac
}
