package audithttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/ovr-admin/ovr-admin/internal/authz"
	"github.com/ovr-admin/ovr-admin/internal/platform/httpx"
	"github.com/ovr-admin/ovr-admin/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// Guard wraps a route with an authorization check.
type Guard interface {
	Require(op authz.OperationDescriptor) func(http.Handler) http.Handler
}

var (
	opTimeline = authz.Operation("audit.timeline").Require("read:log").Build()
	opExport   = authz.Operation("audit.export").Require("read:log").Build()
)

// MountRoutes registers the timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "export rate limit reached")
		}),
	)
	r.With(h.guard.Require(opTimeline)).Get("/", h.handleTimeline)
	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.Require(opExport), limiter)
		gr.Get("/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := strings.TrimSpace(shared.ActorID(r.Context())); actor != "" {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
