package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/middleware"
)

// Routes groups the dependencies of the API router.
type Routes struct {
	Auth        *AuthHandler
	Application *ApplicationHandler
	Payment     *PaymentHandler
	// Sessions resolves bearer tokens for the protected group.
	Sessions middleware.Authenticator
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Log         *zap.Logger
}

// NewRouter constructs the HTTP handler that serves the DigitalPass API.
//
// Middleware chain (applied in order):
//  1. AllowContentType rejects bodies that are neither JSON nor multipart
//  2. cors.Handler answers browser preflight requests
//  3. RequestID tags each request
//  4. WithRequestLogging logs incoming requests
//
// Everything except registration, login and the location list requires a
// bearer session token.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json", "multipart/form-data"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.WithRequestLogging(rt.Log))

	if rt.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rt.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", rt.Auth.Register)
		r.Post("/login", rt.Auth.Login)
		r.Get("/locations", rt.Application.Locations)

		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(rt.Sessions, rt.Log))

			r.Post("/logout", rt.Auth.Logout)

			r.Route("/application", func(r chi.Router) {
				r.Get("/", rt.Application.Get)
				r.Delete("/", rt.Application.Abandon)
				r.Put("/personal", rt.Application.UpdatePersonal)
				r.Put("/education", rt.Application.UpdateEducation)
				r.Put("/travel", rt.Application.UpdateTravel)
				r.Post("/photo", rt.Application.UploadPhoto)
				r.Post("/next", rt.Application.Next)
				r.Post("/back", rt.Application.Back)
				r.Post("/confirm", rt.Application.Confirm)
			})
			r.Get("/applications", rt.Application.List)

			r.Route("/payment", func(r chi.Router) {
				r.Get("/", rt.Payment.Status)
				r.Post("/start", rt.Payment.Start)
				r.Post("/pin", rt.Payment.Press)
				r.Delete("/pin", rt.Payment.Delete)
				r.Post("/submit", rt.Payment.Submit)
				r.Post("/retry", rt.Payment.Retry)
			})

			r.Get("/pass", rt.Application.Pass)
			r.Get("/pass/card", rt.Application.Card)
		})
	})

	return r
}
