package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edulocus/cbt-session-service/internal/model"
)

// AdminRepository handles proctor/operator account data access.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// GetByID retrieves an admin by ID.
func (r *AdminRepository) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	a := &model.Admin{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, name, password_hash, permissions, created_at, updated_at
		 FROM admins WHERE id = $1`, id,
	).Scan(&a.ID, &a.Username, &a.Name, &a.PasswordHash, &a.Permissions, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByUsername retrieves an admin by their unique username.
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*model.Admin, error) {
	a := &model.Admin{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, name, password_hash, permissions, created_at, updated_at
		 FROM admins WHERE username = $1`, username,
	).Scan(&a.ID, &a.Username, &a.Name, &a.PasswordHash, &a.Permissions, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new admin.
func (r *AdminRepository) Create(ctx context.Context, a *model.Admin) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO admins (username, name, password_hash, permissions)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		a.Username, a.Name, a.PasswordHash, a.Permissions,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}
