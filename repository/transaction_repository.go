package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/donation-ledger/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionRepositoryImpl implements TransactionRepository. It exposes no
// update or delete: ledger rows are immutable once written.
type TransactionRepositoryImpl struct {
	*BaseRepository[models.Transaction, models.TransactionFilter]
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &TransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Transaction, models.TransactionFilter](db),
	}
}

// ByTransactionID retrieves a ledger entry by its public identifier
func (r *TransactionRepositoryImpl) ByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.getDB(ctx).Where("transaction_id = ?", transactionID).Last(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	return &txn, nil
}

// ExistsByTransactionID reports whether an identifier is already taken
func (r *TransactionRepositoryImpl) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := r.getDB(ctx).Model(&models.Transaction{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check transaction id: %w", err)
	}
	return count > 0, nil
}

// ByFilter retrieves transactions based on filter criteria
func (r *TransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.TransactionFilter, orderBy string, limit, offset int) ([]*models.Transaction, error) {
	query := r.applyFilter(r.getDB(ctx).Model(&models.Transaction{}), filter)

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

	var txns []*models.Transaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// Count returns the number of transactions matching the filter
func (r *TransactionRepositoryImpl) Count(ctx context.Context, filter models.TransactionFilter) (int64, error) {
	var count int64
	query := r.applyFilter(r.getDB(ctx).Model(&models.Transaction{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// SumByCampaign totals ledger entries of one type and status for a campaign
func (r *TransactionRepositoryImpl) SumByCampaign(ctx context.Context, campaignID uint, txType models.TransactionType, status models.TransactionStatus) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.getDB(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("campaign_id = ? AND type = ? AND status = ?", campaignID, txType, status).
		Row().
		Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions for campaign %d: %w", campaignID, err)
	}
	return total, nil
}

func (r *TransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.TransactionFilter) *gorm.DB {
	if filter.TransactionID != nil {
		query = query.Where("transaction_id = ?", *filter.TransactionID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.DonorID != nil {
		query = query.Where("donor_id = ?", *filter.DonorID)
	}
	if filter.DonationID != nil {
		query = query.Where("donation_id = ?", *filter.DonationID)
	}
	if filter.DisbursedBy != nil {
		query = query.Where("disbursed_by = ?", *filter.DisbursedBy)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
