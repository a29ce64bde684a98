package notify

import (
	"context"
	"net/http"

	"github.com/digitalt3/lms-client/api/web"
)

// HandleDrain returns and forgets the queued notices.
func HandleDrain(q *Queue) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, q.Drain(), http.StatusOK)
	}
}
