package server

import (
	"net/http"
	"time"

	"github.com/ovoronin/audiobook-manager/internal/logger"
)

// slowRequestThreshold is the duration past which a request is logged as slow.
const slowRequestThreshold = 5 * time.Second

// statusRecorder captures the response code for access logging.
type statusRecorder struct {
	http.ResponseWriter

	// status is the last written status code.
	status int
}

// WriteHeader records the status code before delegating.
func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// accessLogMiddleware logs every request with method, path, status and
// duration, and raises slow requests to warning level.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{
			ResponseWriter: w,
			status:         http.StatusOK,
		}

		start := time.Now()
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)

		ctx := r.Context()
		if elapsed > slowRequestThreshold {
			logger.WarnKV(ctx, "Slow request",
				"method", r.Method, "path", r.URL.Path,
				"status", recorder.status, "duration", elapsed.String())

			return
		}

		logger.InfoKV(ctx, "Request",
			"method", r.Method, "path", r.URL.Path,
			"status", recorder.status, "duration", elapsed.String())
	})
}

// recoverMiddleware converts handler panics into JSON 500 responses
// so one bad request never takes the server down.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.ErrorKV(r.Context(), "Handler panicked",
					"method", r.Method, "path", r.URL.Path, "panic", recovered)

				respondError(r.Context(), w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// serverHeaderMiddleware adds a Server identification header. It is only
// installed when the deployment opts in; by default the server stays
// anonymous in responses.
func serverHeaderMiddleware(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", name)
			next.ServeHTTP(w, r)
		})
	}
}
