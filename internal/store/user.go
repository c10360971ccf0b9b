package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/papertrade/apiserver/types"
	"github.com/shopspring/decimal"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.getOne(ctx, queryGetUserByID, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getOne(ctx, queryGetUserByUsername, username)
}

// ListIDs returns the ids of every registered user in ascending order.
func (r *UserRepository) ListIDs(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, queryListUserIDs)
	if err != nil {
		return nil, persistenceError("list users", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, persistenceError("scan user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("list users", err)
	}
	return ids, nil
}

// Create inserts a new user. Cash starts at InitialCash.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.CreatedAt = time.Now().UTC()
	user.Cash = user.InitialCash

	if err := r.db.QueryRowContext(
		ctx,
		queryInsertUser,
		user.Username,
		user.PasswordHash,
		user.Cash.String(),
		user.InitialCash.String(),
		user.CreatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, fmt.Errorf("%w: %s", types.ErrDuplicateUsername, user.Username)
		}
		return types.User{}, persistenceError("insert user", err)
	}
	return user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	var cashStr, initialStr string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&cashStr,
		&initialStr,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, persistenceError("get user", err)
	}

	if user.Cash, err = parseDecimal("cash", cashStr); err != nil {
		return types.User{}, err
	}
	if user.InitialCash, err = parseDecimal("initial_cash", initialStr); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, persistenceError(fmt.Sprintf("parse %s %q", field, raw), err)
	}
	return value, nil
}
