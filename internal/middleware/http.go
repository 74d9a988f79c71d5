package middleware

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"nestegg/internal/config"
	"nestegg/internal/models"
	"nestegg/internal/rate"
	"nestegg/internal/service"
	"nestegg/internal/web"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(web.WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// Recover turns panics into the funnel's unclassified path instead of a
// dropped connection.
func Recover(f *web.Funnel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("panic recovered method=%s path=%s err=%v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
					f.Fail(w, r, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		w.Header().Set(
			"Content-Security-Policy",
			"default-src 'self'; "+
				"img-src 'self' data: https:; "+
				"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; "+
				"font-src 'self' https://fonts.gstatic.com; "+
				"connect-src 'self'; script-src 'self'; "+
				"frame-src 'none'; object-src 'none'; form-action 'self'; "+
				"frame-ancestors 'none'; base-uri 'self'",
		)
		next.ServeHTTP(w, r)
	})
}

// SessionLoader attaches the request's session, creating an anonymous one
// (with its CSRF token) when the cookie is missing, expired, or bogus. An
// idle-timed-out session therefore degrades to anonymous on its next request.
func SessionLoader(svc *service.Service, cfg config.Config, f *web.Funnel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(cfg.SessionCookieName); err == nil && c.Value != "" {
				if sess, user, err := svc.ValidateSession(r.Context(), c.Value); err == nil {
					ctx := web.WithSession(r.Context(), sess)
					if user != nil {
						ctx = web.WithUser(ctx, *user)
					}
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			raw, sess, err := svc.CreateAnonymousSession(r.Context(), web.ClientIP(r, cfg.TrustProxy), r.UserAgent())
			if err != nil {
				f.Fail(w, r, fmt.Errorf("create session: %w", err))
				return
			}
			SetSessionCookie(w, r, cfg, raw)
			next.ServeHTTP(w, r.WithContext(web.WithSession(r.Context(), sess)))
		})
	}
}

// RequireAuth gates routes on an authenticated session: browsers get sent to
// the login page, API clients get 401.
func RequireAuth(f *web.Funnel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := web.User(r.Context()); !ok {
				if acceptsHTML(r) {
					http.Redirect(w, r, "/login", http.StatusSeeOther)
					return
				}
				f.Fail(w, r, web.E(web.KindUnauthenticated, "Authentication required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership checks that the userId named by the request is well
// formed and belongs to the caller. Malformed ids are a 400, someone else's
// a 403.
func RequireOwnership(f *web.Funnel, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := chi.URLParam(r, param)
			if userID == "" {
				userID = r.URL.Query().Get(param)
			}
			if userID == "" {
				f.Fail(w, r, web.E(web.KindMalformedID, "User ID required"))
				return
			}
			if _, err := uuid.Parse(userID); err != nil {
				f.Fail(w, r, web.E(web.KindMalformedID, "Invalid user ID format"))
				return
			}
			u, _ := web.User(r.Context())
			if u.ID != userID {
				f.Fail(w, r, web.E(web.KindForbidden, "Access denied: insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRole(f *web.Funnel, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := web.User(r.Context())
			if !ok || u.Role != role {
				f.Fail(w, r, web.E(web.KindForbidden, "Access denied: insufficient privileges"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func AdminOnly(f *web.Funnel) func(http.Handler) http.Handler {
	return RequireRole(f, models.RoleAdmin)
}

const CSRFHeader = "X-CSRF-Token"

// VerifyCSRF rejects state-changing requests whose token does not match the
// session's stored token. Safe methods pass through.
func VerifyCSRF(f *web.Funnel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			sess, ok := web.Session(r.Context())
			if !ok || sess.CSRFToken == "" {
				f.Fail(w, r, web.E(web.KindCSRF, "Invalid CSRF token"))
				return
			}
			got := r.Header.Get(CSRFHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(got)) != 1 {
				f.Fail(w, r, web.E(web.KindCSRF, "Invalid CSRF token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitPolicy describes one rate-limit window. ForgiveSuccess uncounts
// requests that completed below 400, so successful logins never consume the
// auth budget.
type LimitPolicy struct {
	Name           string
	Limit          int
	Window         time.Duration
	Message        string
	ForgiveSuccess bool
}

func RateLimit(l rate.Limiter, f *web.Funnel, p LimitPolicy, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := p.Name + ":" + web.ClientIP(r, trustProxy)
			ok, retryAfter := l.Allow(r.Context(), key, p.Limit, p.Window)
			if !ok {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
				f.Fail(w, r, web.E(web.KindRateLimited, p.Message))
				return
			}
			if !p.ForgiveSuccess {
				next.ServeHTTP(w, r)
				return
			}
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			if sr.status < 400 {
				l.Forgive(r.Context(), key)
			}
		})
	}
}

func SetSessionCookie(w http.ResponseWriter, r *http.Request, cfg config.Config, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(cfg.SessionAbsoluteDuration().Seconds()),
	})
}

func ClearSessionCookie(w http.ResponseWriter, r *http.Request, cfg config.Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0).UTC(),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		log.Printf("request method=%s path=%s status=%d duration_ms=%d request_id=%s remote_ip=%s",
			r.Method, r.URL.Path, sr.status, time.Since(start).Milliseconds(), web.RequestID(r.Context()), web.ClientIP(r, false))
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
