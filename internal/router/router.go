package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/weijianlim/go-mes-dashboard/internal/api"
	"github.com/weijianlim/go-mes-dashboard/internal/api/auth"
	"github.com/weijianlim/go-mes-dashboard/internal/api/production"
	"github.com/weijianlim/go-mes-dashboard/internal/api/qualitycontrol"
)

// Config contains the dependencies needed for the router setup.
type Config struct {
	Logger                *slog.Logger
	AllowedOrigins        []string
	TokenService          auth.TokenService
	AuthHandler           *auth.HandlerImpl
	ProductionHandler     *production.HandlerImpl
	QualityControlHandler *qualitycontrol.HandlerImpl
}

// SetupRouter wires the HTTP surface. Server-wide middleware (request ID,
// logging, recoverer) is applied by main before mounting this router.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSONResponse(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.AuthHandler.Register)
			r.Post("/login", cfg.AuthHandler.Login)
			r.Post("/refresh-token", cfg.AuthHandler.RefreshToken)
			// Logout only clears the cookie, so it works without a live
			// access token.
			r.Post("/logout", cfg.AuthHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(auth.Authenticate(cfg.TokenService, cfg.Logger))
				r.Get("/me", cfg.AuthHandler.Me)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(cfg.TokenService, cfg.Logger))
			r.Use(auth.EnforceDataScope(cfg.Logger))

			r.Route("/production", func(r chi.Router) {
				r.Get("/", cfg.ProductionHandler.List)
				r.Post("/", cfg.ProductionHandler.Create)
				// Registered before /{id} so "export" never parses as an ID.
				r.Get("/export/csv", cfg.ProductionHandler.ExportCSV)
				r.Get("/{id}", cfg.ProductionHandler.Get)
				r.Put("/{id}", cfg.ProductionHandler.Update)
				r.Delete("/{id}", cfg.ProductionHandler.Delete)
			})

			r.Route("/quality-control", func(r chi.Router) {
				r.Get("/", cfg.QualityControlHandler.List)
				r.Post("/", cfg.QualityControlHandler.Create)
				r.Get("/export/csv", cfg.QualityControlHandler.ExportCSV)
				r.Get("/{id}", cfg.QualityControlHandler.Get)
				r.Put("/{id}", cfg.QualityControlHandler.Update)
				r.Delete("/{id}", cfg.QualityControlHandler.Delete)
			})
		})
	})

	return r
}
