package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/donation-ledger/models"
	"gorm.io/gorm"
)

// AdminRepositoryImpl implements AdminRepository interface
type AdminRepositoryImpl struct {
	*BaseRepository[models.Admin, models.AdminFilter]
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &AdminRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Admin, models.AdminFilter](db),
	}
}

// ByUsername retrieves an admin by username
func (r *AdminRepositoryImpl) ByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	err := r.getDB(ctx).Where("username = ?", username).Last(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find admin by username: %w", err)
	}
	return &admin, nil
}

// UpdateLastLogin stamps the last successful login time
func (r *AdminRepositoryImpl) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.write(ctx, func(db *gorm.DB) error {
		return db.Model(&models.Admin{}).
			Where("id = ?", id).
			Updates(map[string]any{"last_login_at": at, "updated_at": at}).Error
	})
}
