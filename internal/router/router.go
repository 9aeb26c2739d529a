package router

import (
	"net/http"

	"wbtrack-rest-api/internal/handler"
	"wbtrack-rest-api/internal/metrics"
	"wbtrack-rest-api/internal/middleware"
	"wbtrack-rest-api/pkg/apierror"
	"wbtrack-rest-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	AuthHandler    *handler.AuthHandler
	ProductHandler *handler.ProductHandler
	AuthMiddleware func(http.Handler) http.Handler
	LoginLimiter   func(http.Handler) http.Handler
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Metrics))
	r.Use(middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, apierror.NotFound(""))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, apierror.MethodNotAllowed(""))
	})

	// The auth middleware keeps its own allow-list of public paths.
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		if cfg.MetricsHandler != nil {
			r.Handle("/metrics", cfg.MetricsHandler)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Auth endpoints
			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/register", cfg.AuthHandler.Register)

					r.Group(func(r chi.Router) {
						if cfg.LoginLimiter != nil {
							r.Use(cfg.LoginLimiter)
						}
						r.Post("/auth-by-username", cfg.AuthHandler.LoginByUsername)
						r.Post("/auth-by-user-id", cfg.AuthHandler.LoginByUserID)
					})

					r.Post("/change-password", cfg.AuthHandler.ChangePassword)
					r.Get("/user-info", cfg.AuthHandler.UserInfo)
					r.Post("/logout", cfg.AuthHandler.Logout)
				})
			}

			// Wildberries product endpoints
			if cfg.ProductHandler != nil {
				r.Route("/third-party/wildberries", func(r chi.Router) {
					r.Get("/get-product-details/{artikul}", cfg.ProductHandler.GetProductDetails)
					r.Post("/add-product", cfg.ProductHandler.AddProduct)
					r.Get("/get-lasted-products-by-artikul/{artikul}", cfg.ProductHandler.GetHistory)
					r.Get("/get-last-dataproduct-by-artikul/{artikul}", cfg.ProductHandler.GetLatest)
					r.Get("/get-price-dynamics/{artikul}", cfg.ProductHandler.GetPriceDynamics)
					r.Get("/products", cfg.ProductHandler.ListProducts)
				})
			}
		})
	})

	return r
}
