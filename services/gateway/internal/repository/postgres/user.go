package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tan-res-space/draft-genie-sub004/pkg/database"
	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db     database.DBTX
	tracer *database.QueryTracer
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX, tracer *database.QueryTracer) *UserRepository {
	return &UserRepository{db: db, tracer: tracer}
}

const userColumns = `id, email, password_hash, display_name, role, created_at`

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, end := r.tracer.Trace(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.DisplayName,
		u.Role,
		u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`

	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`

	return r.scanUser(ctx, "GetUserByEmail", query, email)
}

// scanUser executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, op, query string, args ...any) (_ *domain.User, err error) {
	ctx, end := r.tracer.Trace(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var u domain.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}
