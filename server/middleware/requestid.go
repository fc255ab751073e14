package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/logger"
)

// RequestID ensures every request carries an X-Request-ID, echoes it on the
// response and stores it in the request context so outbound calls forward it.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(httpclient.HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(httpclient.HeaderRequestID, id)
			}
			w.Header().Set(httpclient.HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
		})
	}
}
