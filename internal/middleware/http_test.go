package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nestegg/internal/models"
	"nestegg/internal/rate"
	"nestegg/internal/web"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Fatalf("header %s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("missing Content-Security-Policy")
	}
}

func TestRequireOwnership(t *testing.T) {
	funnel := web.NewFunnel(nil, false, false)
	own := "0c7a736e-2d38-4f0e-9e1c-1111e5d1b111"
	other := "9f1b42aa-77aa-4b4b-8a55-2222e5d1b222"

	handler := RequireOwnership(funnel, "userId")(okHandler())

	serve := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", target, nil)
		req = req.WithContext(web.WithUser(req.Context(), models.User{ID: own}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve("/contributions"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400, got %d", rec.Code)
	}
	rec := serve("/contributions?userId=A")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed id: expected 400, got %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["message"] != "Invalid user ID format" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	if rec := serve("/contributions?userId=" + other); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign id: expected 403, got %d", rec.Code)
	}
	if rec := serve("/contributions?userId=" + own); rec.Code != http.StatusOK {
		t.Fatalf("own id: expected 200, got %d", rec.Code)
	}
}

func TestVerifyCSRF(t *testing.T) {
	funnel := web.NewFunnel(nil, false, false)
	handler := VerifyCSRF(funnel)(okHandler())
	sess := models.Session{ID: "s1", CSRFToken: "expected-token"}

	serve := func(method, token string, withSession bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/x", nil)
		if withSession {
			req = req.WithContext(web.WithSession(req.Context(), sess))
		}
		if token != "" {
			req.Header.Set(CSRFHeader, token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve("GET", "", true); rec.Code != http.StatusOK {
		t.Fatalf("safe method: expected 200, got %d", rec.Code)
	}
	if rec := serve("POST", "", true); rec.Code != http.StatusForbidden {
		t.Fatalf("missing token: expected 403, got %d", rec.Code)
	}
	if rec := serve("POST", "wrong-token", true); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong token: expected 403, got %d", rec.Code)
	}
	if rec := serve("POST", "expected-token", false); rec.Code != http.StatusForbidden {
		t.Fatalf("no session: expected 403, got %d", rec.Code)
	}
	if rec := serve("POST", "expected-token", true); rec.Code != http.StatusOK {
		t.Fatalf("matching token: expected 200, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	funnel := web.NewFunnel(nil, false, false)
	handler := AdminOnly(funnel)(okHandler())

	req := httptest.NewRequest("GET", "/admin/users", nil)
	req = req.WithContext(web.WithUser(req.Context(), models.User{ID: "u1", Role: models.RoleUser}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user role: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/admin/users", nil)
	req = req.WithContext(web.WithUser(req.Context(), models.User{ID: "u2", Role: models.RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin role: expected 200, got %d", rec.Code)
	}
}

func TestRateLimitForgiveSuccessUncountsBelow400(t *testing.T) {
	funnel := web.NewFunnel(nil, false, false)
	limiter := rate.NewMemoryLimiter()
	policy := LimitPolicy{
		Name:           "auth",
		Limit:          2,
		Window:         time.Minute,
		Message:        "slow down",
		ForgiveSuccess: true,
	}

	status := http.StatusUnauthorized
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	handler := RateLimit(limiter, funnel, policy, false)(inner)

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/login", nil))
		return rec
	}

	// Successes are uncounted, so any number of them passes.
	status = http.StatusOK
	for i := 0; i < 5; i++ {
		if rec := serve(); rec.Code != http.StatusOK {
			t.Fatalf("success %d: got %d", i+1, rec.Code)
		}
	}

	status = http.StatusUnauthorized
	if rec := serve(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("failure 1: got %d", rec.Code)
	}
	if rec := serve(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("failure 2: got %d", rec.Code)
	}
	rec := serve()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after budget exhausted, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRequestIDMiddlewareSetsHeaderAndContext(t *testing.T) {
	var fromCtx string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = web.RequestID(r.Context())
	})
	rec := httptest.NewRecorder()
	RequestIDMiddleware(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if fromCtx == "" {
		t.Fatal("request id missing from context")
	}
	if rec.Header().Get("X-Request-ID") != fromCtx {
		t.Fatal("header and context request ids differ")
	}
}

func TestRecoverTurnsPanicIntoResponse(t *testing.T) {
	funnel := web.NewFunnel(nil, false, false)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	Recover(funnel)(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
