package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"nestegg/internal/middleware"
	"nestegg/internal/models"
	"nestegg/internal/sanitize"
	"nestegg/internal/service"
	"nestegg/internal/validate"
	"nestegg/internal/web"
)

const (
	maxBodyBytes = 1 << 20
	maxBodyDepth = 64
)

var errTooDeep = errors.New("request body exceeds allowed nesting")

// decodeBody reads a bounded JSON object body and sanitizes every string
// leaf before any field is looked at. Anything that is not a JSON object,
// or nests past the depth bound, is rejected as malformed.
func (h *Handlers) decodeBody(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, web.Wrap(web.KindValidation, "Malformed request body", err)
	}
	if depthOf(body, 1) > maxBodyDepth {
		return nil, web.Wrap(web.KindValidation, "Malformed request body", errTooDeep)
	}
	return sanitize.Map(body), nil
}

func depthOf(v any, d int) int {
	max := d
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if cd := depthOf(child, d+1); cd > max {
				max = cd
			}
		}
	case []any:
		for _, child := range t {
			if cd := depthOf(child, d+1); cd > max {
				max = cd
			}
		}
	}
	return max
}

func fieldsOf(body map[string]any, keys ...string) map[string]string {
	fields := make(map[string]string, len(keys))
	for _, k := range keys {
		fields[k] = validate.FieldString(body, k)
	}
	return fields
}

// parsePagination caps list endpoints at 200 rows per page.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func userView(u models.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"userName":  u.UserName,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"email":     u.Email,
		"role":      u.Role,
	}
}

// SessionInfo is the bootstrap call: clients hit it first to obtain the
// session cookie and the CSRF token they must echo on writes.
func (h *Handlers) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, _ := web.Session(r.Context())
	data := map[string]any{
		"authenticated": false,
		"csrf_token":    sess.CSRFToken,
	}
	if u, ok := web.User(r.Context()); ok {
		data["authenticated"] = true
		data["user"] = userView(u)
	}
	web.OK(w, http.StatusOK, data)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	fields := fieldsOf(body, "userName", "password")
	if errs := loginRules().Apply(fields); len(errs) > 0 {
		h.funnel.Fail(w, r, web.Validation(errs))
		return
	}

	sess, _ := web.Session(r.Context())
	raw, u, newSess, err := h.svc.Login(r.Context(),
		fields["userName"], fields["password"],
		web.ClientIP(r, h.cfg.TrustProxy), r.UserAgent(), sess.ID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.funnel.Fail(w, r, web.E(web.KindUnauthenticated, "Invalid credentials"))
			return
		}
		h.funnel.Fail(w, r, err)
		return
	}

	middleware.SetSessionCookie(w, r, h.cfg, raw)
	web.OK(w, http.StatusOK, map[string]any{
		"user":       userView(u),
		"csrf_token": newSess.CSRFToken,
	})
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	fields := fieldsOf(body, "userName", "firstName", "lastName", "email", "password")
	if errs := signupRules(h.svc).Apply(fields); len(errs) > 0 {
		h.funnel.Fail(w, r, web.Validation(errs))
		return
	}

	sess, _ := web.Session(r.Context())
	raw, u, newSess, err := h.svc.Signup(r.Context(), service.SignupParams{
		UserName:  fields["userName"],
		FirstName: fields["firstName"],
		LastName:  fields["lastName"],
		Email:     fields["email"],
		Password:  fields["password"],
	}, web.ClientIP(r, h.cfg.TrustProxy), r.UserAgent(), sess.ID)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateUser) {
			h.funnel.Fail(w, r, web.E(web.KindDuplicate, "Username or email already in use"))
			return
		}
		h.funnel.Fail(w, r, err)
		return
	}

	middleware.SetSessionCookie(w, r, h.cfg, raw)
	web.OK(w, http.StatusCreated, map[string]any{
		"user":       userView(u),
		"csrf_token": newSess.CSRFToken,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cfg.SessionCookieName); err == nil && c.Value != "" {
		if err := h.svc.Logout(r.Context(), c.Value, web.ClientIP(r, h.cfg.TrustProxy), r.UserAgent()); err != nil {
			h.funnel.Fail(w, r, err)
			return
		}
	}
	middleware.ClearSessionCookie(w, r, h.cfg)
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	web.OK(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := web.User(r.Context())
	web.OK(w, http.StatusOK, map[string]any{"user": userView(u)})
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	fields := fieldsOf(body, "firstName", "lastName")
	if errs := profileRules().Apply(fields); len(errs) > 0 {
		h.funnel.Fail(w, r, web.Validation(errs))
		return
	}

	u, _ := web.User(r.Context())
	updated, err := h.svc.UpdateProfile(r.Context(), u.ID, fields["firstName"], fields["lastName"])
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	web.OK(w, http.StatusOK, map[string]any{"user": userView(updated)})
}

func (h *Handlers) GetContributions(w http.ResponseWriter, r *http.Request) {
	u, _ := web.User(r.Context())
	c, err := h.svc.GetContributions(r.Context(), u.ID)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	web.OK(w, http.StatusOK, map[string]any{"contributions": c})
}

func (h *Handlers) UpdateContributions(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	fields := fieldsOf(body, "pretax", "roth")
	if errs := contributionRules().Apply(fields); len(errs) > 0 {
		h.funnel.Fail(w, r, web.Validation(errs))
		return
	}

	u, _ := web.User(r.Context())
	c, err := h.svc.UpdateContributions(r.Context(), u.ID,
		validate.Num(fields, "pretax"), validate.Num(fields, "roth"))
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	web.OK(w, http.StatusOK, map[string]any{"contributions": c})
}

func (h *Handlers) ListMemos(w http.ResponseWriter, r *http.Request) {
	u, _ := web.User(r.Context())
	limit, offset := parsePagination(r)
	memos, err := h.svc.ListMemos(r.Context(), u.ID, limit, offset)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	if memos == nil {
		memos = []models.Memo{}
	}
	web.OK(w, http.StatusOK, map[string]any{"memos": memos})
}

func (h *Handlers) AddMemo(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	fields := fieldsOf(body, "memo")
	if errs := memoRules().Apply(fields); len(errs) > 0 {
		h.funnel.Fail(w, r, web.Validation(errs))
		return
	}

	u, _ := web.User(r.Context())
	m, err := h.svc.AddMemo(r.Context(), u.ID, fields["memo"])
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	web.OK(w, http.StatusCreated, map[string]any{"memo": m})
}

func (h *Handlers) Research(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	fields := fieldsOf(body, "symbol")
	fields["symbol"] = strings.ToUpper(strings.TrimSpace(fields["symbol"]))
	if errs := researchRules().Apply(fields); len(errs) > 0 {
		h.funnel.Fail(w, r, web.Validation(errs))
		return
	}

	st, err := h.svc.Research(r.Context(), fields["symbol"])
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	web.OK(w, http.StatusOK, map[string]any{
		"stock":        st,
		"searchSymbol": fields["symbol"],
	})
}

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	users, err := h.svc.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	views := make([]map[string]any, 0, len(users))
	for _, u := range users {
		views = append(views, userView(u))
	}
	web.OK(w, http.StatusOK, map[string]any{"users": views})
}

func (h *Handlers) AdminAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	events, err := h.svc.ListAudit(r.Context(), limit, offset)
	if err != nil {
		h.funnel.Fail(w, r, err)
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	web.OK(w, http.StatusOK, map[string]any{"events": events})
}
