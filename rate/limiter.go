package rate

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles attempts per key (an email address for sign-in).
// Keys that have not been seen for longer than the expiry are forgotten.
type Limiter struct {
	expiry  time.Duration
	burst   int
	limit   rate.Limit
	clients map[string]*clientLimiter
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLimiter allows burst attempts at once and then one attempt every interval.
func NewLimiter(burst int, interval time.Duration, expiry time.Duration) *Limiter {
	lm := &Limiter{
		expiry:  expiry,
		burst:   burst,
		limit:   rate.Every(interval),
		clients: make(map[string]*clientLimiter),
		done:    make(chan struct{}),
	}
	go lm.refresh()
	return lm
}

// Allow reports whether one more attempt for key is permitted now.
func (l *Limiter) Allow(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))

	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter.Allow()
}

// Close stops the sweeping goroutine.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) refresh() {
	sweep := time.Minute
	if l.expiry < sweep {
		sweep = l.expiry
	}
	if sweep <= 0 {
		sweep = time.Minute
	}

	t := time.NewTicker(sweep)
	defer t.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-t.C:
		}

		l.mu.Lock()
		for id, v := range l.clients {
			if time.Since(v.lastAccess) > l.expiry {
				delete(l.clients, id)
			}
		}
		l.mu.Unlock()
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
