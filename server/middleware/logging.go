package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/sonify/logger"
)

// quietPaths are polled often enough that logging them is noise.
var quietPaths = map[string]bool{
	"/health": true,
	"/alive":  true,
	"/ready":  true,
}

// slowRequest marks a request as slow in the access log. SSE streams and
// uploads exceed it routinely.
const slowRequest = 2 * time.Second

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			fields := logger.Fields(
				"method", r.Method,
				logger.FieldPath, r.URL.Path,
				"status", sw.status,
				"bytes", sw.written,
				"duration_ms", elapsed.Milliseconds(),
			)
			if elapsed > slowRequest {
				fields["slow"] = true
			}

			l := log.WithContext(r.Context())
			switch {
			case sw.status >= 500:
				l.Error("request completed", fields)
			case sw.status >= 400:
				l.Warn("request completed", fields)
			default:
				l.Debug("request completed", fields)
			}
		})
	}
}
