package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"reuse-console/internal/model"
)

type contextKey string

const UserContextKey contextKey = "identity"

var ErrNoIdentity = errors.New("user not found in context")

// Identity is the caller resolved from a verified access token.
type Identity struct {
	UserID string
	Email  string
	Role   model.Role
	Token  string
}

func IdentityFromContext(r *http.Request) (Identity, error) {
	id, ok := r.Context().Value(UserContextKey).(Identity)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

type (
	responseData struct {
		status int
		size   int
	}
	loggingResponseWriter struct {
		http.ResponseWriter
		responseData *responseData
	}
)

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	if r.responseData.status == 0 {
		r.responseData.status = http.StatusOK
	}
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.responseData.status = statusCode
}

// LoggingMiddleware logs one line per request with status, size and duration.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			data := &responseData{}
			lw := &loggingResponseWriter{ResponseWriter: w, responseData: data}

			next.ServeHTTP(lw, r)

			logger.Info("request",
				"uri", r.RequestURI,
				"method", r.Method,
				"status", fmt.Sprintf("%v: %v", data.status, http.StatusText(data.status)),
				slog.Duration("duration", time.Since(start)),
				"size", data.size,
				"request_id", r.Header.Get("X-Request-ID"),
			)
		})
	}
}
