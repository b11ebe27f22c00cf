package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dunamismax/resizeflow/internal/domain"
)

func (s *Server) withAuth(next http.Handler) http.Handler {
	if !s.authRequired {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.authToken) == "" {
			s.writeFailure(r.Context(), w, domain.ErrAuthNotConfigured)
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="resizeflow"`)
			s.writeFailure(r.Context(), w, domain.ErrAuthRejected)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
