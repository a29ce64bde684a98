package cart

import (
	"encoding/json"

	"github.com/digitalt3/lms-client/localstore"
	"github.com/sirupsen/logrus"
)

// GuestKey is the local store key holding the guest cart.
const GuestKey = "lms_guest_cart"

type Guest struct {
	Items []Item `json:"items"`
}

// GuestStore reads and writes the guest cart. Storage is best effort: read
// failures and malformed content yield an empty cart, write failures are
// logged and dropped.
type GuestStore struct {
	local localstore.Store
	log   logrus.FieldLogger
}

func NewGuestStore(local localstore.Store, log logrus.FieldLogger) *GuestStore {
	return &GuestStore{local: local, log: log}
}

func (g *GuestStore) Load() Guest {
	raw, ok, err := g.local.GetItem(GuestKey)
	if err != nil {
		g.log.WithError(err).Debug("reading guest cart")
		return Guest{Items: []Item{}}
	}
	if !ok || raw == "" {
		return Guest{Items: []Item{}}
	}

	var cart Guest
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		g.log.WithError(err).Debug("discarding malformed guest cart")
		return Guest{Items: []Item{}}
	}
	cart.Items = normalize(cart.Items)
	return cart
}

func (g *GuestStore) Save(cart Guest) {
	if cart.Items == nil {
		cart.Items = []Item{}
	}

	b, err := json.Marshal(cart)
	if err != nil {
		g.log.WithError(err).Debug("encoding guest cart")
		return
	}
	if err := g.local.SetItem(GuestKey, string(b)); err != nil {
		g.log.WithError(err).Debug("writing guest cart")
	}
}
