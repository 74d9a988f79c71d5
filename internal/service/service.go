package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"nestegg/internal/auth"
	"nestegg/internal/config"
	"nestegg/internal/models"
	"nestegg/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	ErrDuplicateUser      = errors.New("a user with that name or email already exists")
)

// StockSource is the research lookup contract; the local stocks table and
// the external market-data database both satisfy it.
type StockSource interface {
	GetStock(ctx context.Context, symbol string) (models.Stock, error)
}

type Service struct {
	cfg    config.Config
	st     *store.Store
	stocks StockSource
}

func New(cfg config.Config, st *store.Store, stocks StockSource) *Service {
	if stocks == nil {
		stocks = st
	}
	return &Service{cfg: cfg, st: st, stocks: stocks}
}

func (s *Service) Store() *store.Store { return s.st }

func hashUA(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

// CreateAnonymousSession opens a fresh unauthenticated session carrying a
// CSRF token, returning the raw cookie token. Expired rows are swept here
// opportunistically.
func (s *Service) CreateAnonymousSession(ctx context.Context, ip, userAgent string) (string, models.Session, error) {
	_ = s.st.DeleteExpiredSessions(ctx, time.Now().UTC())
	return s.createSession(ctx, nil, ip, userAgent)
}

func (s *Service) createSession(ctx context.Context, userID *string, ip, userAgent string) (string, models.Session, error) {
	raw, tokenHash, err := auth.NewOpaqueToken()
	if err != nil {
		return "", models.Session{}, err
	}
	csrf, err := auth.NewCSRFToken()
	if err != nil {
		return "", models.Session{}, err
	}
	now := time.Now().UTC()
	sess := models.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		TokenHash:     tokenHash,
		CSRFToken:     csrf,
		IPHint:        ip,
		UserAgentHash: hashUA(userAgent),
		CreatedAt:     now,
		LastSeenAt:    now,
		IdleExpiresAt: now.Add(s.cfg.SessionIdleDuration()),
		ExpiresAt:     now.Add(s.cfg.SessionAbsoluteDuration()),
	}
	if err := s.st.CreateSession(ctx, sess); err != nil {
		return "", models.Session{}, err
	}
	return raw, sess, nil
}

// ValidateSession resolves a raw cookie token to a live session, touching
// its idle expiry. Expired or unknown tokens come back ErrInvalidSession so
// the caller treats the request as anonymous.
func (s *Service) ValidateSession(ctx context.Context, rawToken string) (models.Session, *models.User, error) {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return models.Session{}, nil, ErrInvalidSession
	}
	now := time.Now().UTC()
	if now.After(sess.ExpiresAt) || now.After(sess.IdleExpiresAt) {
		_ = s.st.DeleteSession(ctx, sess.ID)
		return models.Session{}, nil, ErrInvalidSession
	}
	idle := now.Add(s.cfg.SessionIdleDuration())
	if err := s.st.TouchSession(ctx, sess.ID, idle); err != nil {
		return models.Session{}, nil, err
	}
	sess.LastSeenAt = now
	sess.IdleExpiresAt = idle

	if !sess.Authenticated() {
		return sess, nil, nil
	}
	u, err := s.st.GetUserByID(ctx, *sess.UserID)
	if err != nil {
		_ = s.st.DeleteSession(ctx, sess.ID)
		return models.Session{}, nil, ErrInvalidSession
	}
	return sess, &u, nil
}

// Login verifies credentials and, on success, regenerates the session: a new
// row with a new identifier and CSRF token is stored durably before the old
// one is destroyed. The prior session never survives the privilege change.
func (s *Service) Login(ctx context.Context, userName, password, ip, userAgent, priorSessionID string) (string, models.User, models.Session, error) {
	u, err := s.st.GetUserByUserName(ctx, userName)
	if err != nil {
		s.audit(ctx, models.AuditLoginAttempt, models.AnonymousUser, ip, userAgent, "failure", "userName="+userName)
		if err == store.ErrNotFound {
			// Burn a comparison so unknown and known names cost the same.
			auth.VerifyPassword("$2a$12$C6UzMDM.H6dfI/f/IKcEeO7la71ZbyRCjbvyaYzBHyJqcPcs1nqnm", password)
			return "", models.User{}, models.Session{}, ErrInvalidCredentials
		}
		return "", models.User{}, models.Session{}, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		s.audit(ctx, models.AuditLoginAttempt, u.ID, ip, userAgent, "failure", "userName="+userName)
		return "", models.User{}, models.Session{}, ErrInvalidCredentials
	}

	raw, sess, err := s.createSession(ctx, &u.ID, ip, userAgent)
	if err != nil {
		s.audit(ctx, models.AuditLoginAttempt, u.ID, ip, userAgent, "failure", "session regeneration failed")
		return "", models.User{}, models.Session{}, fmt.Errorf("regenerate session: %w", err)
	}
	if priorSessionID != "" {
		if err := s.st.DeleteSession(ctx, priorSessionID); err != nil {
			log.Printf("delete prior session failed id=%s err=%v", priorSessionID, err)
		}
	}
	s.audit(ctx, models.AuditLoginAttempt, u.ID, ip, userAgent, "success", "")
	return raw, u, sess, nil
}

type SignupParams struct {
	UserName  string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Signup creates the user and logs them straight in, with the same session
// regeneration contract as Login.
func (s *Service) Signup(ctx context.Context, p SignupParams, ip, userAgent, priorSessionID string) (string, models.User, models.Session, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return "", models.User{}, models.Session{}, err
	}
	u, err := s.st.CreateUser(ctx, p.UserName, p.FirstName, p.LastName, email, hash, models.RoleUser)
	if err != nil {
		if err == store.ErrConflict {
			s.audit(ctx, models.AuditSignup, models.AnonymousUser, ip, userAgent, "failure", "duplicate userName="+p.UserName)
			return "", models.User{}, models.Session{}, ErrDuplicateUser
		}
		return "", models.User{}, models.Session{}, err
	}

	raw, sess, err := s.createSession(ctx, &u.ID, ip, userAgent)
	if err != nil {
		return "", models.User{}, models.Session{}, fmt.Errorf("regenerate session: %w", err)
	}
	if priorSessionID != "" {
		if err := s.st.DeleteSession(ctx, priorSessionID); err != nil {
			log.Printf("delete prior session failed id=%s err=%v", priorSessionID, err)
		}
	}
	s.audit(ctx, models.AuditSignup, u.ID, ip, userAgent, "success", "")
	return raw, u, sess, nil
}

// Logout destroys the server-side session record.
func (s *Service) Logout(ctx context.Context, rawToken, ip, userAgent string) error {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return nil
	}
	actor := models.AnonymousUser
	if sess.Authenticated() {
		actor = *sess.UserID
	}
	if err := s.st.DeleteSession(ctx, sess.ID); err != nil {
		return err
	}
	s.audit(ctx, models.AuditLogout, actor, ip, userAgent, "success", "")
	return nil
}

func (s *Service) UpdateContributions(ctx context.Context, userID string, pretax, roth float64) (models.Contribution, error) {
	return s.st.UpsertContribution(ctx, userID, pretax, roth)
}

// GetContributions reports zeroes for users who never saved, matching the
// form's defaults.
func (s *Service) GetContributions(ctx context.Context, userID string) (models.Contribution, error) {
	c, err := s.st.GetContribution(ctx, userID)
	if err == store.ErrNotFound {
		return models.Contribution{UserID: userID}, nil
	}
	return c, err
}

func (s *Service) AddMemo(ctx context.Context, userID, memo string) (models.Memo, error) {
	return s.st.InsertMemo(ctx, userID, memo)
}

func (s *Service) ListMemos(ctx context.Context, userID string, limit, offset int) ([]models.Memo, error) {
	return s.st.ListMemos(ctx, userID, limit, offset)
}

// Research is an exact-symbol lookup. Unknown symbols are not an error:
// the caller renders "no results".
func (s *Service) Research(ctx context.Context, symbol string) (*models.Stock, error) {
	st, err := s.stocks.GetStock(ctx, strings.ToUpper(symbol))
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID, firstName, lastName string) (models.User, error) {
	if err := s.st.UpdateUserName(ctx, userID, firstName, lastName); err != nil {
		return models.User{}, err
	}
	return s.st.GetUserByID(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.st.ListUsers(ctx, limit, offset)
}

func (s *Service) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEvent, error) {
	return s.st.ListAudit(ctx, limit, offset)
}

// ValidatePassword enforces the signup complexity policy: bounded length and
// at least three character classes.
func (s *Service) ValidatePassword(pw string) error {
	if pw == "" {
		return errors.New("password is required")
	}
	if len(pw) < s.cfg.PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", s.cfg.PasswordMinLength)
	}
	if len(pw) > s.cfg.PasswordMaxLength {
		return fmt.Errorf("password must be at most %d characters", s.cfg.PasswordMaxLength)
	}
	classes := 0
	if strings.IndexFunc(pw, func(r rune) bool { return r >= 'a' && r <= 'z' }) >= 0 {
		classes++
	}
	if strings.IndexFunc(pw, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0 {
		classes++
	}
	if strings.IndexFunc(pw, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
		classes++
	}
	if strings.IndexFunc(pw, func(r rune) bool {
		return (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126)
	}) >= 0 {
		classes++
	}
	if classes < 3 {
		return errors.New("password must include at least 3 character classes (lower/upper/number/symbol)")
	}
	return nil
}

func (s *Service) audit(ctx context.Context, kind, userID, ip, userAgent, outcome, detail string) {
	ev := models.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		ClientIP:  ip,
		UserAgent: userAgent,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.st.RecordAudit(ctx, ev); err != nil {
		log.Printf("audit write failed kind=%s err=%v", kind, err)
	}
}
