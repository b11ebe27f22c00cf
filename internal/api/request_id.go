package api

import (
	"context"
	"net/http"

	"github.com/dunamismax/resizeflow/internal/id"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// withRequestID tags the request and its logger with an identifier, echoing a
// well-formed inbound X-Request-ID.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := id.New()
		if inbound := r.Header.Get(requestIDHeader); inbound != "" {
			rid = id.FromHeader(inbound)
		}
		w.Header().Set(requestIDHeader, rid)

		logger := s.logger.With().
			Str("request_id", rid).
			Str("route", routeLabel(r.URL.Path)).
			Logger()
		ctx := context.WithValue(r.Context(), requestIDKey{}, rid)
		ctx = logger.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
