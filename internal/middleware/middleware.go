package middleware

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/carelink/portal/internal/session"
	"github.com/carelink/portal/internal/utils"
)

type SessionFetcher interface {
	FindSessionByID(ctx context.Context, id string) (utils.SessionData, error)
}

// LoginRedirect sends the browser to loginURL, remembering the requested
// path in the next query parameter.
func LoginRedirect(w http.ResponseWriter, r *http.Request, loginURL string) {
	target := loginURL
	if r.URL.Path != "" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func lookupSession(fetcher SessionFetcher, r *http.Request) (utils.SessionData, bool) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return utils.SessionData{}, false
	}

	sess, err := fetcher.FindSessionByID(r.Context(), cookie.Value)
	if err != nil {
		return utils.SessionData{}, false
	}

	if !sess.ExpiresAt.After(time.Now()) {
		return utils.SessionData{}, false
	}
	return sess, true
}

// SessionMiddleware lets a request through only with a live session; anything
// else is redirected to loginURL without running next.
func SessionMiddleware(fetcher SessionFetcher, loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := lookupSession(fetcher, r)
			if !ok {
				LoginRedirect(w, r, loginURL)
				return
			}

			ctx := utils.WithUserID(r.Context(), sess.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSession attaches the user id when a live session is present and
// never blocks the request.
func OptionalSession(fetcher SessionFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess, ok := lookupSession(fetcher, r); ok {
				r = r.WithContext(utils.WithUserID(r.Context(), sess.UserID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StaffChecker reports whether a user may use the staff pages.
type StaffChecker interface {
	IsStaff(ctx context.Context, userID string) (bool, error)
}

// StaffMiddleware must run after SessionMiddleware.
func StaffMiddleware(checker StaffChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := utils.GetUserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
				return
			}

			staff, err := checker.IsStaff(r.Context(), userID)
			if err != nil {
				http.Error(w, "Unauthorized: user not found", http.StatusUnauthorized)
				return
			}

			if !staff {
				http.Error(w, "Forbidden: staff access required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets the clickjacking, sniffing and referrer headers on
// every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "same-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// BodyLimit caps request bodies at n bytes.
func BodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
