package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	parsed, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}
	campaigns, err := r.ByFilter(ctx, models.CampaignFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return nil, nil
	}
	return campaigns[0], nil
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Campaign{}), filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var campaigns []*models.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// IncrementRaised atomically adds amount to raised_amount
func (r *CampaignRepositoryImpl) IncrementRaised(ctx context.Context, id uint, amount decimal.Decimal) (bool, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Campaign{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"raised_amount": gorm.Expr("raised_amount + CAST(? AS numeric)", amount),
				"total_donors":  gorm.Expr("total_donors + 1"),
				"updated_at":    utils.UTCNow(),
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to credit campaign %d: %w", id, err)
	}
	return affected == 1, nil
}

// IncrementDisbursedIfAvailable atomically debits the available balance. The
// guard predicate and the increment run in one UPDATE so concurrent callers
// are serialized by the row lock.
func (r *CampaignRepositoryImpl) IncrementDisbursedIfAvailable(ctx context.Context, id uint, amount decimal.Decimal) (bool, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Campaign{}).
			Where("id = ? AND disbursed_amount + CAST(? AS numeric) <= raised_amount", id, amount).
			Updates(map[string]any{
				"disbursed_amount": gorm.Expr("disbursed_amount + CAST(? AS numeric)", amount),
				"updated_at":       utils.UTCNow(),
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to debit campaign %d: %w", id, err)
	}
	return affected == 1, nil
}

func (r *CampaignRepositoryImpl) applyFilter(query *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
