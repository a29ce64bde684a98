package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/random"
)

const (
	RequestIDHeader = "X-Request-Id"

	requestIDLengthLimit = 128
)

type reqIDKeyCtx int

const reqIDKey reqIDKeyCtx = 1

var reqID int64

// reqPrefix makes ids unique across restarts of the client.
var reqPrefix = func() string {
	p, err := random.StringSecure(10)
	if err != nil {
		return random.String(10)
	}
	return p
}()

// RequestID reuses the caller's X-Request-Id or assigns a new one, and
// echoes it on the response.
func RequestID() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = fmt.Sprintf("%s-%d", reqPrefix, atomic.AddInt64(&reqID, 1))
			} else if len(id) > requestIDLengthLimit {
				id = id[:requestIDLengthLimit]
			}
			w.Header().Set(RequestIDHeader, id)

			return handler(context.WithValue(ctx, reqIDKey, id), w, r)
		}
		return h
	}
	return m
}

func ContextRequestID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey).(string)
	return id
}
