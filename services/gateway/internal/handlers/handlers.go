package handlers

import (
	"net/http"
	"strings"

	"github.com/diagnosis/apartment-reservations/pkg/auth"
	mw "github.com/diagnosis/apartment-reservations/pkg/middleware"
	"github.com/diagnosis/apartment-reservations/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	authProxy         *proxy.ServiceProxy
	reservationsProxy *proxy.ServiceProxy
}

func New(authProxy, reservationsProxy *proxy.ServiceProxy) *Handlers {
	return &Handlers{authProxy: authProxy, reservationsProxy: reservationsProxy}
}

// Routes exposes the public /v1 API. Tokens are checked here and again
// upstream.
func (h *Handlers) Routes(r chi.Router, jwtSecret string) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.toAuth("/register"))
			r.Post("/login", h.toAuth("/login"))
			r.With(mw.RequireJWT(jwtSecret, "")).Get("/me", h.toAuth("/me"))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Use(mw.RequireJWT(jwtSecret, ""))
			r.HandleFunc("/*", h.toReservations)
			r.HandleFunc("/", h.toReservations)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireJWT(jwtSecret, auth.RoleAdmin))
			r.Get("/users", h.toAuth("/users"))
			r.HandleFunc("/reservations/*", h.toReservations)
			r.HandleFunc("/reservations", h.toReservations)
		})
	})
}

func (h *Handlers) toAuth(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.authProxy.Forward(w, r, path)
	}
}

// toReservations keeps the path below /v1 unchanged.
func (h *Handlers) toReservations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1")
	if path == "/reservations" || path == "/admin/reservations" {
		path += "/"
	}
	h.reservationsProxy.Forward(w, r, path)
}
