package accounts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carelink/portal/internal/middleware"
)

// SetupRoutes serves the account pages; mount it at /accounts.
func SetupRoutes(h *Handler, fetcher middleware.SessionFetcher, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Public routes - signup and login, throttled per client
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Limit)
		}
		r.Get("/", h.Signup)
		r.Post("/", h.Signup)
		r.Get("/signup/", h.Signup)
		r.Post("/signup/", h.Signup)
		r.Get("/login/", h.Login)
		r.Post("/login/", h.Login)
	})

	// Session routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(fetcher, LoginURL))
		r.Get("/logout/", h.Logout)
		r.Post("/logout/", h.Logout)
		r.Get("/dashboard/", h.Dashboard)
	})

	return r
}

// SetupAdminRoutes serves the staff pages; mount it at /admin.
func SetupAdminRoutes(h *Handler, fetcher middleware.SessionFetcher, staff middleware.StaffChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(fetcher, LoginURL))
	r.Use(middleware.StaffMiddleware(staff))

	r.Get("/profiles/", h.AdminProfiles)
	return r
}
