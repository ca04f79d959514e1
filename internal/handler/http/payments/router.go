package payments_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"merchantpay/internal/app/payments"
)

type RouteOptions struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
}

func RegisterRoutes(r chi.Router, s payments.CheckoutService, opts RouteOptions, l *zap.Logger) {
	handler := NewPaymentHandler(s, l.With(zap.String("component", "PaymentHTTPHandler")))

	limiter := func(next http.Handler) http.Handler { return next }
	if opts.RateLimitPerMinute > 0 {
		limiter = httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Payments service is healthy!"))
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(limiter)
		r.Post("/{orderID}", handler.CheckoutHandler)
	})

	r.With(limiter).Post("/ipn", handler.NotificationHandler)
}
