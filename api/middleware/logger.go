package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/digitalt3/lms-client/api/web"
	"github.com/digitalt3/lms-client/core/claims"
	"github.com/sirupsen/logrus"
	"github.com/zenazn/goji/web/mutil"
)

// Logger records every request once it completes, with the signed in user
// when there is one.
func Logger(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			log := log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			if rid := ContextRequestID(ctx); rid != "" {
				log = log.WithField("req_id", rid)
			}
			if clm, err := claims.Get(ctx); err == nil {
				log = log.WithField("user_id", clm.UserID)
			}

			log.Debug("started")
			start := time.Now()

			lw := mutil.WrapWriter(w)
			err := handler(ctx, lw, r)

			log.WithFields(logrus.Fields{
				"statuscode": lw.Status(),
				"bytes":      lw.BytesWritten(),
				"since":      time.Since(start).String(),
			}).Info("completed")
			return err
		}
		return h
	}
	return m
}
