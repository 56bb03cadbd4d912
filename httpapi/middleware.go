package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gigflow/identity"
	"gigflow/metrics"
)

type contextKey struct{ name string }

var actorKey = contextKey{"actor"}

// authenticate resolves the bearer token into an Actor and rejects anything
// the verifier does not accept. Handlers downstream can assume actorFrom
// succeeds.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "missing_token", Message: "authorization required"})
			return
		}

		actor, err := s.verifier.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "invalid_token", Message: "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates administrative routes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFrom(r.Context()).Role != identity.RoleAdmin {
			writeJSON(w, http.StatusForbidden, errorBody{Code: "forbidden", Message: "admin only"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(ctx context.Context) identity.Actor {
	actor, _ := ctx.Value(actorKey).(identity.Actor)
	return actor
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// observe records request durations labelled by the matched route pattern so
// path parameters do not explode the label space.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
