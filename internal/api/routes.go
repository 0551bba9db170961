package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouteOptions configures SetupRoutes.
type RouteOptions struct {
	AdminToken  string
	CORSOrigins []string
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Manifest-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	if h.health != nil {
		r.Get("/health", h.health.HandleHealth)
		r.Get("/health/live", h.health.HandleLiveness)
		r.Get("/health/ready", h.health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}

	r.Route("/api", func(r chi.Router) {
		// Donor-facing routes
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Get("/families/{id}", h.GetFamily)
		r.Get("/families/{id}/preview", h.PreviewAdoption)
		r.Post("/families/{id}/adopt", h.AdoptFamily)
		r.Post("/families/{id}/persons/{personID}/adopt", h.AdoptPerson)
		r.Get("/gifts/{id}", h.GetGift)
		r.Post("/gifts/{id}/claims", h.ClaimGift)
		if h.links != nil {
			r.Get("/donors/claims", h.DonorClaims)
		}

		// Admin routes (bearer token)
		if opts.AdminToken == "" {
			return
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin(opts.AdminToken))

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.ListCampaigns)
				r.Post("/", h.CreateCampaign)
				r.Get("/{id}", h.GetCampaignGraph)
				r.Patch("/{id}", h.UpdateCampaign)
				r.Delete("/{id}", h.DeleteCampaign)
				r.Post("/{id}/status", h.SetCampaignStatus)
				r.Post("/{id}/families", h.CreateFamily)
				r.Get("/{id}/claims", h.ListCampaignClaims)
				r.Get("/{id}/manifest.csv", h.DownloadManifest)
			})

			r.Delete("/families/{id}", h.DeleteFamily)
			r.Post("/families/{id}/persons", h.AddPerson)
			r.Post("/families/{id}/gifts", h.AddGift)
			r.Delete("/persons/{id}", h.DeletePerson)
			r.Delete("/gifts/{id}", h.DeleteGift)
			r.Delete("/claims/{id}", h.RemoveClaim)
			if h.links != nil {
				r.Get("/donors/link", h.DonorLink)
			}
		})
	})

	return r
}
