package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/safetrail/go-identity-server/auth"
	"github.com/safetrail/go-identity-server/guardians"
	"github.com/safetrail/go-identity-server/internal/config"
	"github.com/safetrail/go-identity-server/prefs"
	"github.com/safetrail/go-identity-server/rides"
	"github.com/safetrail/go-identity-server/token"
)

// Services bundles the domain services the HTTP layer fronts.
type Services struct {
	Auth      *auth.Service
	Rides     *rides.Service
	Guardians *guardians.Service
	Prefs     *prefs.Service
	Tokens    *token.Issuer
}

type Server struct {
	config   config.Config
	log      zerolog.Logger
	services Services
	router   chi.Router
}

func New(cfg config.Config, log zerolog.Logger, services Services) (*Server, error) {
	if services.Auth == nil || services.Rides == nil || services.Guardians == nil || services.Prefs == nil {
		return nil, errors.New("[Server New] all services are required")
	}
	if services.Tokens == nil {
		return nil, errors.New("[Server New] token issuer is required")
	}

	s := &Server{
		config:   cfg,
		log:      log,
		services: services,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.GetAllowedOrigins(),
		AllowedMethods: s.config.GetAllowedMethods(),
		AllowedHeaders: s.config.GetAllowedHeaders(),
		MaxAge:         86400,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.HealthHandler)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.SignupHandler)
			r.Post("/login", s.LoginHandler)
			r.Post("/verify-otp", s.VerifyOTPHandler)
		})

		r.Route("/rides/provider", func(r chi.Router) {
			// The provider redirects the end-user's browser here with no
			// session; the link state alone binds the callback to a user.
			r.Get("/callback", s.ProviderCallbackHandler)

			r.Group(func(r chi.Router) {
				r.Use(s.RequireAuth)
				r.Get("/link", s.BeginLinkHandler)
				r.Get("/profile", s.ProviderProfileHandler)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)

			r.Route("/guardians", func(r chi.Router) {
				r.Get("/", s.ListGuardiansHandler)
				r.Post("/", s.AddGuardianHandler)
				r.Delete("/{email}", s.RemoveGuardianHandler)
				r.Post("/alert", s.TriggerAlertHandler)
			})

			r.Route("/users/me/preferences", func(r chi.Router) {
				r.Get("/", s.GetPreferencesHandler)
				r.Patch("/", s.UpdatePreferencesHandler)
			})
		})
	})

	return r
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
