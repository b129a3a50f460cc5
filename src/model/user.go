package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Password  string          `json:"-"`
	Cash      decimal.Decimal `json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

func (u *User) CreateUser(ctx context.Context, q Querier) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
	INSERT INTO users (username, password, cash, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`
	res, err := q.ExecContext(ctx, query, u.Username, u.Password, u.Cash.String(), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var cashStr string

	err := row.Scan(&user.ID, &user.Username, &user.Password, &cashStr, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}

	user.Cash, err = decimal.NewFromString(cashStr)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByID(ctx context.Context, q Querier, id int64) (*User, error) {
	query := `
	SELECT id, username, password, cash, created_at, updated_at
	FROM users
	WHERE id = ?`
	return scanUser(q.QueryRowContext(ctx, query, id))
}

func GetUserByUsername(ctx context.Context, q Querier, username string) (*User, error) {
	query := `
	SELECT id, username, password, cash, created_at, updated_at
	FROM users
	WHERE username = ?`
	return scanUser(q.QueryRowContext(ctx, query, username))
}

// GetUserCash reads only the cash balance. Trade execution calls this inside
// a transaction so the balance it validates against is the one it debits.
func GetUserCash(ctx context.Context, q Querier, userID int64) (decimal.Decimal, error) {
	var cashStr string
	err := q.QueryRowContext(ctx, `SELECT cash FROM users WHERE id = ?`, userID).Scan(&cashStr)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(cashStr)
}

func UpdateUserCash(ctx context.Context, q Querier, userID int64, cash decimal.Decimal, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET cash = ?, updated_at = ? WHERE id = ?`,
		cash.String(), now, userID)
	return err
}
