package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/square-bookings/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/square-bookings/internal/http/middleware"
	"github.com/wolfman30/square-bookings/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Booking *handlers.BookingHandler

	// SMSLimiter guards the routes that send a verification text. Nil
	// disables limiting.
	SMSLimiter        httpmiddleware.Limiter
	RateLimitFailOpen bool

	Metrics            httpmiddleware.HTTPObserver
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// TraceName enables otelhttp server spans when set.
	TraceName string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.Metrics(cfg.Metrics))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", handlers.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if h := cfg.Booking; h != nil {
		smsLimited := func(next http.Handler) http.Handler { return next }
		if cfg.SMSLimiter != nil {
			smsLimited = httpmiddleware.RateLimit(cfg.SMSLimiter, "sms", cfg.RateLimitFailOpen, cfg.Logger)
		}

		r.Get("/", h.Home)
		r.Get("/services", h.Services)
		r.Get("/availability", h.Availability)
		r.Post("/availability", h.Availability)
		r.Get("/contact", h.Contact)

		r.Route("/customers", func(r chi.Router) {
			r.With(smsLimited).Post("/search", h.SearchCustomer)
			r.Post("/validate", h.ValidateCustomer)
		})
		r.Post("/payments", h.Payments)

		r.Route("/booking", func(r chi.Router) {
			r.Post("/create", h.CreateBooking)
			r.Route("/{bookingID}", func(r chi.Router) {
				r.Get("/", h.Confirmation)
				r.Get("/reschedule", h.RescheduleOptions)
				r.Post("/reschedule", h.Reschedule)
				r.Post("/delete", h.Cancel)
			})
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.HistoryStart)
			r.With(smsLimited).Post("/verifynumber", h.HistoryVerifyNumber)
			r.Post("/verifyauthcode", h.HistoryVerifyCode)
		})
	}

	if cfg.TraceName == "" {
		return r
	}
	return otelhttp.NewHandler(r, cfg.TraceName)
}
