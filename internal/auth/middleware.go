package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// Middleware authenticates requests. Unauthenticated requests never reach
// the authorization engine.
type Middleware struct {
	verifier *Verifier
	logger   *slog.Logger
}

// NewMiddleware wires the verifier.
func NewMiddleware(verifier *Verifier, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{verifier: verifier, logger: logger}
}

// Handler rejects requests without a valid bearer token.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearer(r)
		var actor *shared.Actor
		if err == nil {
			actor, err = m.verifier.Verify(raw)
		}
		if err != nil {
			if !errors.Is(err, ErrMissingToken) {
				m.logger.Info("reject token", slog.Any("error", err), slog.String("path", r.URL.Path))
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="ovr-admin"`)
			httpx.WriteProblem(w, httpx.ProblemDetail{
				Title:  http.StatusText(http.StatusUnauthorized),
				Status: http.StatusUnauthorized,
				Detail: "A valid bearer token is required.",
				Code:   "UNAUTHENTICATED",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func bearer(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}
