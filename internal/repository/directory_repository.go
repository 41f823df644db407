package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/resto-audit-api/internal/models"
)

// DirectoryRepository reads restaurants and users owned by the tenant directory.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs the repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetRestaurant returns an active restaurant of the tenant or sql.ErrNoRows.
func (r *DirectoryRepository) GetRestaurant(ctx context.Context, tenantID, id string) (*models.Restaurant, error) {
	const query = `SELECT id, tenant_id, name, city, active, created_at FROM restaurants WHERE id = $1 AND tenant_id = $2 AND active = TRUE`
	var restaurant models.Restaurant
	if err := r.db.GetContext(ctx, &restaurant, query, id, tenantID); err != nil {
		return nil, err
	}
	return &restaurant, nil
}

// GetUser returns an active user of the tenant or sql.ErrNoRows.
func (r *DirectoryRepository) GetUser(ctx context.Context, tenantID, id string) (*models.DirectoryUser, error) {
	const query = `SELECT id, tenant_id, full_name, email, role, active FROM users WHERE id = $1 AND tenant_id = $2 AND active = TRUE`
	var user models.DirectoryUser
	if err := r.db.GetContext(ctx, &user, query, id, tenantID); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}
