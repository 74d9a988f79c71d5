package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"nestegg/internal/config"
	"nestegg/internal/middleware"
	"nestegg/internal/rate"
	"nestegg/internal/service"
	"nestegg/internal/store"
	"nestegg/internal/web"
)

type Handlers struct {
	cfg    config.Config
	svc    *service.Service
	funnel *web.Funnel
	market *store.MarketData
}

// NewRouter assembles the hardening chain in order: rate limiting, security
// headers, session loading, then per-route CSRF/auth/ownership/role gates.
// Handlers sanitize and validate their bodies before touching the service.
func NewRouter(cfg config.Config, svc *service.Service, limiter rate.Limiter, market *store.MarketData) http.Handler {
	funnel := web.NewFunnel(svc.Store(), cfg.DevMode, cfg.TrustProxy)
	h := &Handlers{cfg: cfg, svc: svc, funnel: funnel, market: market}

	r := chi.NewRouter()
	r.Use(middleware.Recover(funnel))
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.RateLimit(limiter, funnel, middleware.LimitPolicy{
		Name:    "global",
		Limit:   cfg.RateGlobalLimit,
		Window:  cfg.RateWindow(),
		Message: "Too many requests from this IP, please try again later.",
	}, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", middleware.CSRFHeader},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionLoader(svc, cfg, funnel))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/session", h.SessionInfo)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(limiter, funnel, middleware.LimitPolicy{
					Name:           "auth",
					Limit:          cfg.RateAuthLimit,
					Window:         cfg.RateWindow(),
					Message:        "Too many login attempts from this IP, please try again later.",
					ForgiveSuccess: true,
				}, cfg.TrustProxy))
				r.Use(middleware.VerifyCSRF(funnel))
				r.Post("/login", h.Login)
				r.Post("/signup", h.Signup)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(funnel))
				r.Get("/logout", h.Logout)
				r.Get("/me", h.Me)
				r.Get("/contributions", h.GetContributions)
				r.Get("/memos", h.ListMemos)

				r.Group(func(r chi.Router) {
					r.Use(middleware.VerifyCSRF(funnel))
					r.Post("/profile", h.UpdateProfile)
					r.With(middleware.RequireOwnership(funnel, "userId")).Post("/contributions", h.UpdateContributions)
					r.Post("/memos/addMemo", h.AddMemo)
					r.Post("/research", h.Research)
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(middleware.AdminOnly(funnel))
					r.Get("/users", h.AdminListUsers)
					r.Get("/audit-log", h.AdminAuditLog)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		funnel.Fail(w, r, web.E(web.KindNotFound, "Resource not found"))
	})

	return r
}

func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": map[string]any{},
	}
	comps := ready["components"].(map[string]any)

	ok := true
	if err := h.svc.Store().Ping(r.Context()); err != nil {
		ok = false
		comps["db"] = map[string]any{"ok": false, "error": err.Error()}
	} else {
		comps["db"] = map[string]any{"ok": true}
	}
	if h.market != nil {
		if err := h.market.Ping(r.Context()); err != nil {
			ok = false
			comps["market_db"] = map[string]any{"ok": false, "error": err.Error()}
		} else {
			comps["market_db"] = map[string]any{"ok": true}
		}
	}

	if ok {
		ready["status"] = "ready"
		web.WriteJSON(w, http.StatusOK, ready)
		return
	}
	ready["status"] = "degraded"
	web.WriteJSON(w, http.StatusServiceUnavailable, ready)
}
