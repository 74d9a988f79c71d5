package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"nestegg/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, userName, firstName, lastName, email, passwordHash, role string) (models.User, error) {
	now := time.Now().UTC()
	u := models.User{
		ID:           uuid.NewString(),
		UserName:     userName,
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		LastModified: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id,user_name,first_name,last_name,email,password_hash,role,created_at,last_modified) VALUES(?,?,?,?,?,?,?,?,?)`,
		u.ID, u.UserName, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.LastModified,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) EnsureAdmin(ctx context.Context, userName, email, passwordHash string) error {
	userName = strings.TrimSpace(userName)
	if userName == "" || passwordHash == "" {
		return nil
	}
	u, err := s.GetUserByUserName(ctx, userName)
	if err == ErrNotFound {
		_, err = s.CreateUser(ctx, userName, "Site", "Admin", email, passwordHash, models.RoleAdmin)
		return err
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET role='admin', password_hash=?, last_modified=? WHERE id=?`,
		passwordHash, time.Now().UTC(), u.ID,
	)
	return err
}

func (s *Store) GetUserByUserName(ctx context.Context, userName string) (models.User, error) {
	return s.getUser(ctx, `WHERE user_name=?`, userName)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, `WHERE id=?`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id,user_name,first_name,last_name,email,password_hash,role,created_at,last_modified FROM users `+where,
		arg,
	).Scan(&u.ID, &u.UserName, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.LastModified)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUserName(ctx context.Context, userID, firstName, lastName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET first_name=?, last_name=?, last_modified=? WHERE id=?`,
		firstName, lastName, time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,user_name,first_name,last_name,email,password_hash,role,created_at,last_modified FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.UserName, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.LastModified); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id,user_id,token_hash,csrf_token,ip_hint,user_agent_hash,created_at,last_seen_at,idle_expires_at,expires_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.CSRFToken, sess.IPHint, sess.UserAgentHash, sess.CreatedAt, sess.LastSeenAt, sess.IdleExpiresAt, sess.ExpiresAt,
	)
	return err
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	var sess models.Session
	var userID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id,user_id,token_hash,csrf_token,ip_hint,user_agent_hash,created_at,last_seen_at,idle_expires_at,expires_at FROM sessions WHERE token_hash=?`,
		tokenHash,
	).Scan(&sess.ID, &userID, &sess.TokenHash, &sess.CSRFToken, &sess.IPHint, &sess.UserAgentHash, &sess.CreatedAt, &sess.LastSeenAt, &sess.IdleExpiresAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	if userID.Valid && userID.String != "" {
		v := userID.String
		sess.UserID = &v
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, idleExpiry time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, idle_expires_at=? WHERE id=?`, now, idleExpiry, id)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, userID)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE idle_expires_at < ? OR expires_at < ?`, now, now)
	return err
}

func (s *Store) UpsertContribution(ctx context.Context, userID string, pretax, roth float64) (models.Contribution, error) {
	now := time.Now().UTC()
	c := models.Contribution{UserID: userID, Pretax: pretax, Roth: roth, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contributions(user_id,pretax,roth,updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET pretax=excluded.pretax, roth=excluded.roth, updated_at=excluded.updated_at`,
		c.UserID, c.Pretax, c.Roth, c.UpdatedAt,
	)
	return c, err
}

func (s *Store) GetContribution(ctx context.Context, userID string) (models.Contribution, error) {
	var c models.Contribution
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id,pretax,roth,updated_at FROM contributions WHERE user_id=?`, userID,
	).Scan(&c.UserID, &c.Pretax, &c.Roth, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Contribution{}, ErrNotFound
	}
	if err != nil {
		return models.Contribution{}, err
	}
	return c, nil
}

func (s *Store) InsertMemo(ctx context.Context, userID, memo string) (models.Memo, error) {
	m := models.Memo{ID: uuid.NewString(), UserID: userID, Memo: memo, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memos(id,user_id,memo,created_at) VALUES(?,?,?,?)`,
		m.ID, m.UserID, m.Memo, m.CreatedAt,
	)
	return m, err
}

func (s *Store) ListMemos(ctx context.Context, userID string, limit, offset int) ([]models.Memo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,user_id,memo,created_at FROM memos WHERE user_id=? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Memo
	for rows.Next() {
		var m models.Memo
		if err := rows.Scan(&m.ID, &m.UserID, &m.Memo, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetStock(ctx context.Context, symbol string) (models.Stock, error) {
	var st models.Stock
	err := s.db.QueryRowContext(ctx,
		`SELECT symbol,name,price,updated_at FROM stocks WHERE symbol=?`, symbol,
	).Scan(&st.Symbol, &st.Name, &st.Price, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Stock{}, ErrNotFound
	}
	if err != nil {
		return models.Stock{}, err
	}
	return st, nil
}

func (s *Store) RecordAudit(ctx context.Context, ev models.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.UserID == "" {
		ev.UserID = models.AnonymousUser
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events(id,kind,user_id,client_ip,user_agent,outcome,detail,created_at) VALUES(?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Kind, ev.UserID, ev.ClientIP, ev.UserAgent, ev.Outcome, ev.Detail, ev.CreatedAt,
	)
	return err
}

func (s *Store) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,kind,user_id,client_ip,user_agent,outcome,detail,created_at FROM audit_events ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.AuditEvent, 0, limit)
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.UserID, &e.ClientIP, &e.UserAgent, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
