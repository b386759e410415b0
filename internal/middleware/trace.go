// Package middleware holds the small HTTP middlewares shared by all routes.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-Id"

type traceCtxKey struct{}

// Trace tags every request with a trace id and echoes it in the response
// header so a client-side report can be matched to server logs. An inbound
// X-Trace-Id is kept as-is, which lets the API gateway correlate one id
// across services; otherwise a fresh id is generated.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(traceHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(traceHeader, id)
		ctx := context.WithValue(r.Context(), traceCtxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceID returns the request's trace id, or "" outside a traced request.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceCtxKey{}).(string)
	return id
}
