package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/donation-ledger/models"
	"gorm.io/gorm"
)

// AuditLogRepositoryImpl implements AuditLogRepository interface
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, models.AuditLogFilter]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, models.AuditLogFilter](db),
	}
}

// ByFilter retrieves audit logs based on filter criteria, newest first by default
func (r *AuditLogRepositoryImpl) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	query := r.getDB(ctx).Model(&models.AuditLog{})

	if filter.ActorType != nil {
		query = query.Where("actor_type = ?", *filter.ActorType)
	}
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.DonationID != nil {
		query = query.Where("donation_id = ?", *filter.DonationID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}

	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	query = query.Order(orderBy)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var logs []*models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}
