package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DonationRepositoryImpl implements DonationRepository interface
type DonationRepositoryImpl struct {
	*BaseRepository[models.Donation, models.DonationFilter]
}

// NewDonationRepository creates a new donation repository
func NewDonationRepository(db *gorm.DB) DonationRepository {
	return &DonationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Donation, models.DonationFilter](db),
	}
}

// ByUUID retrieves a donation by UUID
func (r *DonationRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Donation, error) {
	parsed, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}
	return r.first(ctx, models.DonationFilter{UUID: &parsed})
}

// ByGatewayOrderID retrieves the donation opened for a gateway order
func (r *DonationRepositoryImpl) ByGatewayOrderID(ctx context.Context, orderID string) (*models.Donation, error) {
	return r.first(ctx, models.DonationFilter{GatewayOrderID: &orderID})
}

// ByGatewayPaymentID retrieves the donation that claimed a gateway payment
func (r *DonationRepositoryImpl) ByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Donation, error) {
	var donation models.Donation
	err := r.getDB(ctx).Where("gateway_payment_id = ?", paymentID).Last(&donation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find donation by payment id: %w", err)
	}
	return &donation, nil
}

func (r *DonationRepositoryImpl) first(ctx context.Context, filter models.DonationFilter) (*models.Donation, error) {
	donations, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(donations) == 0 {
		return nil, nil
	}
	return donations[0], nil
}

// ByFilter retrieves donations based on filter criteria
func (r *DonationRepositoryImpl) ByFilter(ctx context.Context, filter models.DonationFilter, orderBy string, limit, offset int) ([]*models.Donation, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Donation{}), filter)

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

	var donations []*models.Donation
	if err := query.Find(&donations).Error; err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	return donations, nil
}

// Count returns the number of donations matching the filter
func (r *DonationRepositoryImpl) Count(ctx context.Context, filter models.DonationFilter) (int64, error) {
	var count int64
	query := r.applyFilter(r.getDB(ctx).Model(&models.Donation{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count donations: %w", err)
	}
	return count, nil
}

// CompleteIfInitiated is the compare-and-swap that decides which confirmation wins
func (r *DonationRepositoryImpl) CompleteIfInitiated(ctx context.Context, id uint, completedAt time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":       models.DonationStatusCompleted,
		"completed_at": completedAt,
		"updated_at":   completedAt,
	})
}

// FailIfInitiated marks an INITIATED donation as FAILED
func (r *DonationRepositoryImpl) FailIfInitiated(ctx context.Context, id uint, reason string, failedAt time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":         models.DonationStatusFailed,
		"failure_reason": reason,
		"failed_at":      failedAt,
		"updated_at":     failedAt,
	})
}

func (r *DonationRepositoryImpl) transition(ctx context.Context, id uint, changes map[string]any) (bool, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&models.Donation{}).
			Where("id = ? AND status = ?", id, models.DonationStatusInitiated).
			Updates(changes)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to transition donation %d: %w", id, err)
	}
	return affected == 1, nil
}

// AttachGatewayPayment stores the gateway payment id; the unique index rejects reuse
func (r *DonationRepositoryImpl) AttachGatewayPayment(ctx context.Context, id uint, paymentID, signature string) error {
	err := r.write(ctx, func(db *gorm.DB) error {
		return db.Model(&models.Donation{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"gateway_payment_id": paymentID,
				"gateway_signature":  signature,
				"updated_at":         utils.UTCNow(),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to attach gateway payment to donation %d: %w", id, err)
	}
	return nil
}

// SumCompletedByCampaign returns the total of COMPLETED donations for a campaign
func (r *DonationRepositoryImpl) SumCompletedByCampaign(ctx context.Context, campaignID uint) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.getDB(ctx).Model(&models.Donation{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("campaign_id = ? AND status = ?", campaignID, models.DonationStatusCompleted).
		Row().
		Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum donations for campaign %d: %w", campaignID, err)
	}
	return total, nil
}

func (r *DonationRepositoryImpl) applyFilter(query *gorm.DB, filter models.DonationFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.DonorID != nil {
		query = query.Where("donor_id = ?", *filter.DonorID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.GatewayOrderID != nil {
		query = query.Where("gateway_order_id = ?", *filter.GatewayOrderID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
