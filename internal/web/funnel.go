package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"nestegg/internal/models"
)

type Auditor interface {
	RecordAudit(ctx context.Context, ev models.AuditEvent) error
}

// Funnel is the single exit for request failures: it classifies the error,
// shapes the JSON envelope, and records the security-relevant ones. In
// non-dev mode internal detail never reaches the client.
type Funnel struct {
	aud        Auditor
	dev        bool
	trustProxy bool
}

func NewFunnel(aud Auditor, dev, trustProxy bool) *Funnel {
	return &Funnel{aud: aud, dev: dev, trustProxy: trustProxy}
}

func (f *Funnel) Fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)

	switch e.Kind {
	case KindInternal:
		log.Printf("unclassified error method=%s path=%s request_id=%s err=%v",
			r.Method, r.URL.Path, RequestID(r.Context()), err)
		f.Record(r, models.AuditException, "error", r.Method+" "+r.URL.Path)
	case KindNotFound:
		f.Record(r, models.AuditNotFound, "miss", r.Method+" "+r.URL.Path)
	}

	msg := e.Message
	if e.Kind == KindInternal && !f.dev {
		msg = "Internal server error"
	}
	payload := map[string]any{"success": false, "message": msg}
	if len(e.Fields) > 0 {
		payload["errors"] = e.Fields
	}
	if rid := RequestID(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	if f.dev && e.Kind == KindInternal && e.Err != nil {
		payload["detail"] = e.Err.Error()
	}
	WriteJSON(w, StatusOf(e.Kind), payload)
}

// Record appends one audit event for the request. Detail must never carry
// passwords or raw tokens.
func (f *Funnel) Record(r *http.Request, kind, outcome, detail string) {
	if f.aud == nil {
		return
	}
	ev := models.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    ActorID(r.Context()),
		ClientIP:  ClientIP(r, f.trustProxy),
		UserAgent: r.UserAgent(),
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.aud.RecordAudit(r.Context(), ev); err != nil {
		log.Printf("audit write failed kind=%s err=%v", kind, err)
	}
}

func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, "Internal server error", err)
}
