// Package notify carries short user-facing notices, the toasts of the UI.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(n Notice)
}

func Success(n Notifier, msg string) { send(n, LevelSuccess, msg) }

func Info(n Notifier, msg string) { send(n, LevelInfo, msg) }

func Error(n Notifier, msg string) { send(n, LevelError, msg) }

func send(n Notifier, lvl Level, msg string) {
	if n == nil {
		return
	}
	n.Notify(Notice{Level: lvl, Message: msg, At: time.Now().UTC()})
}

// Log writes notices to a logger.
type Log struct {
	log logrus.FieldLogger
}

func NewLog(log logrus.FieldLogger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(n Notice) {
	entry := l.log.WithField("notice", n.Level)
	if n.Level == LevelError {
		entry.Warn(n.Message)
		return
	}
	entry.Info(n.Message)
}

// Queue keeps the most recent notices until the UI drains them.
type Queue struct {
	mu    sync.Mutex
	max   int
	items []Notice
}

func NewQueue(max int) *Queue {
	return &Queue{max: max}
}

func (q *Queue) Notify(n Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, n)
	if over := len(q.items) - q.max; q.max > 0 && over > 0 {
		q.items = append([]Notice(nil), q.items[over:]...)
	}
}

// Drain returns pending notices oldest first and empties the queue.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Fanout delivers each notice to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(n Notice) {
	for _, nt := range f {
		nt.Notify(n)
	}
}
