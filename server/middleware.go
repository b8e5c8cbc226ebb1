package server

import (
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/henkedude/atomicops"
)

// RequireMediaType enforces JSON:API content negotiation on request bodies:
// the Content-Type must be the JSON:API media type, carrying exactly the
// given extension URIs in its ext parameter. The atomic operations endpoint
// passes the extension URI; plain endpoints pass none.
func RequireMediaType(extensions ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mediatype, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediatype != atomicops.MediaType {
				unsupportedMediaType(w, "Use the JSON:API media type in the Content-Type header.")
				return
			}

			if !extensionsMatch(params["ext"], extensions) {
				unsupportedMediaType(w, "The Content-Type header does not carry the required JSON:API extensions.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extensionsMatch(param string, want []string) bool {
	got := strings.Fields(param)
	if len(got) != len(want) {
		return false
	}
	set := make(map[string]struct{}, len(got))
	for _, uri := range got {
		set[uri] = struct{}{}
	}
	for _, uri := range want {
		if _, ok := set[uri]; !ok {
			return false
		}
	}
	return true
}

func unsupportedMediaType(w http.ResponseWriter, detail string) {
	WriteError(w, &atomicops.Error{
		Status: strconv.Itoa(http.StatusUnsupportedMediaType),
		Title:  "Unsupported media type.",
		Detail: detail,
	})
}

// RateLimit rejects requests above the sustained rate (with the given burst)
// with 429. The limiter is shared across all requests passing through the
// middleware.
func RateLimit(limit rate.Limit, burst int) mux.MiddlewareFunc {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				WriteError(w, &atomicops.Error{
					Status: strconv.Itoa(http.StatusTooManyRequests),
					Title:  "Too many requests.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogging logs one line per request at debug level.
func RequestLogging(logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("request served")
		})
	}
}
