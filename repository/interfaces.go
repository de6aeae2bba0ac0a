package repository

import (
	"context"
	"time"

	"github.com/amirphl/donation-ledger/models"
	"github.com/shopspring/decimal"
)

type contextKey string

// TxContextKey carries the active *gorm.DB transaction in a context
const TxContextKey contextKey = "tx"

// Transactor runs fn as one atomic unit of work. Repository calls made with
// txCtx join the same transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
	// WithinReadSnapshot runs fn in a read-only transaction whose reads all
	// see the same committed state.
	WithinReadSnapshot(ctx context.Context, fn func(txCtx context.Context) error) error
}

// CampaignRepository defines operations on campaign fund aggregates.
// Fund columns are only changed through the atomic increment methods.
type CampaignRepository interface {
	ByID(ctx context.Context, id uint) (*models.Campaign, error)
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	// IncrementRaised adds amount to raised_amount and bumps total_donors.
	// Returns false when the campaign does not exist.
	IncrementRaised(ctx context.Context, id uint, amount decimal.Decimal) (bool, error)
	// IncrementDisbursedIfAvailable adds amount to disbursed_amount only when
	// disbursed_amount + amount <= raised_amount. Returns false otherwise.
	IncrementDisbursedIfAvailable(ctx context.Context, id uint, amount decimal.Decimal) (bool, error)
}

// DonationRepository defines operations on donation records
type DonationRepository interface {
	ByID(ctx context.Context, id uint) (*models.Donation, error)
	ByUUID(ctx context.Context, uuid string) (*models.Donation, error)
	ByGatewayOrderID(ctx context.Context, orderID string) (*models.Donation, error)
	ByGatewayPaymentID(ctx context.Context, paymentID string) (*models.Donation, error)
	ByFilter(ctx context.Context, filter models.DonationFilter, orderBy string, limit, offset int) ([]*models.Donation, error)
	Count(ctx context.Context, filter models.DonationFilter) (int64, error)
	Save(ctx context.Context, donation *models.Donation) error
	// CompleteIfInitiated moves the donation INITIATED -> COMPLETED. Returns
	// false when another caller already moved it out of INITIATED.
	CompleteIfInitiated(ctx context.Context, id uint, completedAt time.Time) (bool, error)
	// FailIfInitiated moves the donation INITIATED -> FAILED
	FailIfInitiated(ctx context.Context, id uint, reason string, failedAt time.Time) (bool, error)
	// AttachGatewayPayment records the gateway payment id and signature. A
	// payment id already held by another donation yields gorm.ErrDuplicatedKey.
	AttachGatewayPayment(ctx context.Context, id uint, paymentID, signature string) error
	SumCompletedByCampaign(ctx context.Context, campaignID uint) (decimal.Decimal, error)
}

// TransactionRepository defines append-only ledger storage
type TransactionRepository interface {
	Save(ctx context.Context, txn *models.Transaction) error
	ByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error)
	ByFilter(ctx context.Context, filter models.TransactionFilter, orderBy string, limit, offset int) ([]*models.Transaction, error)
	Count(ctx context.Context, filter models.TransactionFilter) (int64, error)
	SumByCampaign(ctx context.Context, campaignID uint, txType models.TransactionType, status models.TransactionStatus) (decimal.Decimal, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Save(ctx context.Context, log *models.AuditLog) error
	ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error)
}

// AdminRepository defines operations for admins
type AdminRepository interface {
	ByID(ctx context.Context, id uint) (*models.Admin, error)
	ByUsername(ctx context.Context, username string) (*models.Admin, error)
	Save(ctx context.Context, admin *models.Admin) error
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
}
