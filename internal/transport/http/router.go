// Package httptransport wires the module handlers into one chi router.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authorityHandler "attestry/internal/authority/handler"
	ownershipHandler "attestry/internal/ownership/handler"
	paymentHandler "attestry/internal/payment/handler"
	resolverHandler "attestry/internal/resolver/handler"
	adminmw "attestry/pkg/platform/middleware/admin"
	request "attestry/pkg/platform/middleware/request"
)

// Deps carries everything the router mounts.
type Deps struct {
	Logger         *slog.Logger
	Ownership      ownershipHandler.Service
	Payment        paymentHandler.Service
	Authority      authorityHandler.Service
	Resolver       resolverHandler.Service
	AdminTokenHash string
}

// NewRouter builds the public router: module routes, admin routes behind the
// operator token, plus health and metrics endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)

	ownershipHandler.New(deps.Ownership, deps.Logger).Register(r)
	paymentHandler.New(deps.Payment, deps.Logger).Register(r)
	authorityHandler.New(deps.Authority, deps.Logger).Register(r)
	resolverHandler.New(deps.Resolver, deps.Logger).Register(r)

	if deps.AdminTokenHash != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(adminmw.RequireAdminToken(deps.AdminTokenHash, deps.Logger))
			paymentHandler.New(deps.Payment, deps.Logger).RegisterAdmin(admin)
			authorityHandler.New(deps.Authority, deps.Logger).RegisterAdmin(admin)
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
