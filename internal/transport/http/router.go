// Package httptransport assembles the public HTTP surface from the module
// handlers and the shared middleware chain.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	agreementhandler "transferai/internal/agreement/handler"
	"transferai/internal/chat"
	coursemaphandler "transferai/internal/coursemap/handler"
	"transferai/internal/identity"
	usagehandler "transferai/internal/usage/handler"
	usagemiddleware "transferai/internal/usage/middleware"
	"transferai/pkg/platform/audit"
	"transferai/pkg/platform/middleware/admin"
	"transferai/pkg/platform/middleware/metadata"
	"transferai/pkg/platform/middleware/request"
	"transferai/pkg/platform/middleware/requesttime"
)

// Deps are the handlers and collaborators the router mounts. Chat is optional;
// the admin routes are mounted only when AdminToken is set.
type Deps struct {
	Logger         *slog.Logger
	TrustProxy     bool
	AdminToken     string
	Agreements     *agreementhandler.Handler
	Usage          *usagehandler.Handler
	CourseMaps     *coursemaphandler.Handler
	Chat           *chat.Handler
	Health         *HealthHandler
	Verifier       identity.Verifier
	Accounts       identity.AccountEnsurer
	Quota          usagemiddleware.Consumer
	AuditPublisher audit.Publisher
}

// NewRouter wires every route behind request id, client metadata, request
// time, access logging and panic recovery.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata(d.TrustProxy))
	r.Use(requesttime.Middleware)
	r.Use(request.AccessLog(d.Logger))
	r.Use(request.Recover(d.Logger))

	r.Get("/health", d.Health.HandleLive)
	r.Get("/health/ready", d.Health.HandleReady)
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := identity.RequireAuth(d.Verifier, d.Accounts, d.Logger, d.AuditPublisher)

	r.Route("/api", func(api chi.Router) {
		d.Agreements.Register(api)

		api.Group(func(authed chi.Router) {
			authed.Use(requireAuth)
			d.Agreements.RegisterAuthenticated(authed)
			d.Usage.Register(authed)
			d.CourseMaps.Register(authed)

			if d.Chat != nil {
				authed.Group(func(metered chi.Router) {
					metered.Use(usagemiddleware.RequireQuota(d.Quota, d.Logger))
					d.Chat.Register(metered)
				})
			}
		})
	})

	if d.AdminToken != "" {
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
			d.Usage.RegisterAdmin(ar)
		})
	}

	return r
}
