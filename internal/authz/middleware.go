package authz

import (
	"net/http"

	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

// Middleware adapts the engine to chi route groups.
type Middleware struct {
	Engine *Engine
}

// NewMiddleware wraps engine.
func NewMiddleware(engine *Engine) *Middleware {
	return &Middleware{Engine: engine}
}

// Require rejects requests the engine denies for op.
func (m *Middleware) Require(op OperationDescriptor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := m.Engine.Authorize(r.Context(), shared.ActorFromContext(r.Context()), op, r)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			WriteDenial(w, d)
		})
	}
}

// WriteDenial renders a denial as a problem document.
func WriteDenial(w http.ResponseWriter, d Decision) {
	problem := httpx.ProblemDetail{
		Title:  http.StatusText(d.Status()),
		Status: d.Status(),
		Detail: d.Message,
		Code:   string(d.Reason),
	}
	if len(d.Required) > 0 {
		problem.Extra = map[string]any{"required": d.Required}
	}
	if d.Reason == ReasonUnauthenticated {
		w.Header().Set("WWW-Authenticate", `Bearer realm="ovr-admin"`)
	}
	httpx.WriteProblem(w, problem)
}
