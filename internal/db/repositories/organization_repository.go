// organization_repository.go implements OrganizationRepository, providing database queries
// for organization CRUD, email-domain resolution, and reference counts.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, email_domain, auto_provision, created_at, updated_at`

func scanOrganization(row interface{ Scan(...interface{}) error }, org *models.Organization) error {
	return row.Scan(
		&org.ID,
		&org.Name,
		&org.EmailDomain,
		&org.AutoProvision,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
}

// NormalizeDomain lowercases and trims a domain, dropping a leading "@"
func NormalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`

	org := &models.Organization{}
	err := scanOrganization(r.db.QueryRowContext(ctx, query, id), org)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByEmailDomain retrieves the organization that claims domain, case-insensitively
func (r *OrganizationRepository) GetByEmailDomain(ctx context.Context, domain string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE LOWER(email_domain) = $1`

	org := &models.Organization{}
	err := scanOrganization(r.db.QueryRowContext(ctx, query, NormalizeDomain(domain)), org)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization by domain: %w", err)
	}
	return org, nil
}

// List returns all organizations ordered by name
func (r *OrganizationRepository) List(ctx context.Context) ([]*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org := &models.Organization{}
		if err := scanOrganization(rows, org); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// Count returns the number of organizations
func (r *OrganizationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", err)
	}
	return n, nil
}

// Create inserts an organization. A domain already claimed by another organization is
// reported as ErrDomainTaken.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.EmailDomain != nil {
		d := NormalizeDomain(*org.EmailDomain)
		org.EmailDomain = &d
	}

	query := `
		INSERT INTO organizations (name, email_domain, auto_provision)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, org.Name, org.EmailDomain, org.AutoProvision).Scan(
		&org.ID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDomainTaken
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// Update saves name, email domain, and auto-provisioning
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	if org.EmailDomain != nil {
		d := NormalizeDomain(*org.EmailDomain)
		org.EmailDomain = &d
	}
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations
		SET name = $2, email_domain = $3, auto_provision = $4, updated_at = $5
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, org.ID, org.Name, org.EmailDomain, org.AutoProvision, org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDomainTaken
		}
		return fmt.Errorf("failed to update organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an organization. Callers check references first; a remaining
// reference is reported as ErrOrganizationInUse.
func (r *OrganizationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrOrganizationInUse
		}
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountReferences returns how many users and licenses belong to the organization
func (r *OrganizationRepository) CountReferences(ctx context.Context, id string) (users, licenses int, err error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users WHERE organization_id = $1),
			(SELECT COUNT(*) FROM licenses WHERE organization_id = $1)
	`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&users, &licenses); err != nil {
		return 0, 0, fmt.Errorf("failed to count organization references: %w", err)
	}
	return users, licenses, nil
}
