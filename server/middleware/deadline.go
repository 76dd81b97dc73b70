package middleware

import (
	"context"
	"net/http"
	"time"
)

// maxWriteMargin is the most WriteBudget keeps back for writing the error
// response itself.
const maxWriteMargin = time.Second

// WriteBudget returns the part of an http.Server WriteTimeout a handler may
// spend before it has to answer. Zero means no bound.
func WriteBudget(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	return writeTimeout - min(writeTimeout/10, maxWriteMargin)
}

// Deadline bounds the request context by budget. Everything downstream
// (queue wait, completion call) shares the same deadline, so a slow request
// is answered with a 503 or 504 before the server drops the connection.
func Deadline(budget time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if budget <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), budget)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
