package service

import (
	"context"

	"github.com/edulocus/cbt-session-service/internal/model"
	"github.com/edulocus/cbt-session-service/internal/repository"
)

// AdminService handles proctor/operator account lookups.
type AdminService struct {
	adminRepo *repository.AdminRepository
}

// NewAdminService creates a new AdminService.
func NewAdminService(adminRepo *repository.AdminRepository) *AdminService {
	return &AdminService{adminRepo: adminRepo}
}

// GetByID retrieves an admin by ID.
func (s *AdminService) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return s.adminRepo.GetByID(ctx, id)
}

// GetByUsername retrieves an admin by username.
func (s *AdminService) GetByUsername(ctx context.Context, username string) (*model.Admin, error) {
	return s.adminRepo.GetByUsername(ctx, username)
}

// Create inserts a new admin account. PasswordHash must already be hashed.
func (s *AdminService) Create(ctx context.Context, a *model.Admin) error {
	return s.adminRepo.Create(ctx, a)
}
