// Package httpapi serves the identity store over JSON/HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	RecordRequest(transport, operation, outcome string, d time.Duration)
}

// Deps are the collaborators of the router.
type Deps struct {
	Accounts   *services.AccountService
	Groups     *services.GroupService
	Membership *services.MembershipService

	// IdentityHeader carries the caller's account id for GET /account.
	IdentityHeader string
	Metrics        RequestRecorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// Ping backs /healthz when set.
	Ping func(ctx context.Context) error
	Logger logging.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	h := &handler{
		accounts:       d.Accounts,
		groups:         d.Groups,
		membership:     d.Membership,
		identityHeader: d.IdentityHeader,
		ping:           d.Ping,
		log:            d.Logger.With("module", "http_server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe(d.Metrics))

	r.Get("/healthz", h.healthz)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Post("/auth", h.checkCredentials)

	r.Route("/account", func(r chi.Router) {
		r.Post("/", h.createAccount)
		r.Get("/", h.readAccount)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.readAccount)
			r.Patch("/", h.updateAccount)
			r.Put("/password", h.changePassword)
			r.Put("/login-key", h.changeLoginKey)
			r.Get("/groups", h.isAccountInAnyGroup)
		})
	})
	r.Get("/accounts", h.queryAccounts)

	r.Route("/group", func(r chi.Router) {
		r.Post("/", h.createGroup)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.readGroup)
			r.Patch("/", h.updateGroup)
			r.Delete("/", h.removeGroup)
			r.Put("/accounts/{account}", h.addAccountToGroup)
			r.Delete("/accounts/{account}", h.removeAccountFromGroup)
		})
	})
	r.Get("/groups", h.queryGroups)

	r.Post("/maintenance/reconcile", h.reconcile)

	return r
}

// observe records every request under its route pattern.
func observe(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rec == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			op := r.Method
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				op += " " + rctx.RoutePattern()
			}
			rec.RecordRequest("http", op, outcome(ww.Status()), time.Since(start))
		})
	}
}

func outcome(status int) string {
	switch {
	case status == 0 || status < 400:
		return "ok"
	case status == http.StatusBadRequest:
		return "validation"
	case status == http.StatusUnauthorized:
		return "wrong"
	case status == http.StatusNotFound:
		return "unknown"
	case status == http.StatusConflict:
		return "conflict"
	default:
		return "internal"
	}
}
