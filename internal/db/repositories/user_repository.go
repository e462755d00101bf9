// Package repositories implements the data access layer for seatdesk.
// Each repository type encapsulates the SQL for one table; handlers never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, organization_id, role, first_login, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.OrganizationID,
		&user.Role,
		&user.FirstLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
}

// CreateUser inserts a user. A duplicate email is reported as ErrEmailTaken.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (id, name, email, password_hash, organization_id, role, first_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.OrganizationID,
		user.Role,
		user.FirstLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx, query, userID), user)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	user := &models.User{}
	err := scanUser(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)), user)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserWithOrganization retrieves a user joined with its organization name
func (r *UserRepository) GetUserWithOrganization(ctx context.Context, userID string) (*models.UserWithOrganization, error) {
	query := `
		SELECT u.id, u.name, u.email, u.password_hash, u.organization_id, u.role, u.first_login,
		       u.created_at, u.updated_at, o.name
		FROM users u
		LEFT JOIN organizations o ON o.id = u.organization_id
		WHERE u.id = $1
	`

	out := &models.UserWithOrganization{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&out.ID,
		&out.Name,
		&out.Email,
		&out.PasswordHash,
		&out.OrganizationID,
		&out.Role,
		&out.FirstLogin,
		&out.CreatedAt,
		&out.UpdatedAt,
		&out.OrganizationName,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return out, nil
}

// UpdatePassword stores a new hash and clears the first-login flag
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, first_login = false, updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, userID, passwordHash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateUser saves name, role, and organization
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET name = $2, role = $3, organization_id = $4, updated_at = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Role,
		user.OrganizationID,
		user.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrOrganizationMissing
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListUsers returns users with their organization names, newest first. An empty orgID
// lists all users.
func (r *UserRepository) ListUsers(ctx context.Context, orgID string, limit, offset int) ([]*models.UserWithOrganization, int, error) {
	where := ""
	args := []interface{}{}
	if orgID != "" {
		where = ` WHERE u.organization_id = $1`
		args = append(args, orgID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `
		SELECT u.id, u.name, u.email, u.password_hash, u.organization_id, u.role, u.first_login,
		       u.created_at, u.updated_at, o.name
		FROM users u
		LEFT JOIN organizations o ON o.id = u.organization_id` + where +
		fmt.Sprintf(` ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.UserWithOrganization, 0)
	for rows.Next() {
		u := &models.UserWithOrganization{}
		if err := rows.Scan(
			&u.ID,
			&u.Name,
			&u.Email,
			&u.PasswordHash,
			&u.OrganizationID,
			&u.Role,
			&u.FirstLogin,
			&u.CreatedAt,
			&u.UpdatedAt,
			&u.OrganizationName,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// CountUsers returns the number of users
func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
