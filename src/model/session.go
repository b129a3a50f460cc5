package model

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	UserAgent string    `json:"user_agent"`
	ClientIP  string    `json:"client_ip"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func CreateSession(ctx context.Context, q Querier, session *Session) error {
	session.CreatedAt = time.Now().UTC()

	query := `
	INSERT INTO sessions (user_id, token, user_agent, client_ip, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query,
		session.UserID,
		session.Token,
		session.UserAgent,
		session.ClientIP,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	session.ID = id
	return nil
}

func GetSessionByToken(ctx context.Context, q Querier, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, user_agent, client_ip, expires_at, created_at
	FROM sessions
	WHERE token = ? AND expires_at > ?`

	row := q.QueryRowContext(ctx, query, token, time.Now().UTC())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.UserAgent,
		&session.ClientIP,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("session not found or expired")
		}
		return nil, err
	}
	return &session, nil
}

func DeleteSessionByToken(ctx context.Context, q Querier, token string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// DeleteExpiredSessions clears out sessions past their expiry. Called
// opportunistically on login; there is no background sweeper.
func DeleteExpiredSessions(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
