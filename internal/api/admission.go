package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/resizeflow/internal/domain"
	"github.com/dunamismax/resizeflow/internal/ratelimit"
	"github.com/rs/zerolog"
)

// KeyFunc derives the client identity used for admission control.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc uses the first X-Forwarded-For address when trusted, then the
// connection's remote host.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

type clientKey struct{}

func withClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

func clientFromContext(ctx context.Context) string {
	if client, ok := ctx.Value(clientKey{}).(string); ok {
		return client
	}
	return ""
}

// withAdmission holds one concurrency slot for the lifetime of the request and
// charges the client's rate window. Rejections never reach next.
func (s *Server) withAdmission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := s.keyFn(r)
		ctx := withClient(r.Context(), client)
		logger := zerolog.Ctx(ctx).With().Str("client", client).Logger()
		ctx = logger.WithContext(ctx)

		if s.guard == nil {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		admission, err := s.guard.Admit(ctx, client)
		if err != nil {
			logger.Warn().Err(err).Msg("rate limiter unavailable, admitting request")
		}
		defer admission.Release()

		if admission.Remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(admission.Remaining, 10))
		}
		if admission.Allowed {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		retryAfter := int(admission.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.admissionRejected.WithLabelValues(admission.Reason).Inc()

		cause := "rate limit exceeded"
		if admission.Reason == ratelimit.ReasonConcurrency {
			cause = "too many concurrent requests"
		}
		s.writeFailure(ctx, w, fmt.Errorf("%w: %s", domain.ErrAdmissionRejected, cause))
	})
}
