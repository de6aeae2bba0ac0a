package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/amirphl/donation-ledger/utils"
)

const maxTransactionIDAttempts = 5

// TransactionLedger is the append-only record of money movements
type TransactionLedger interface {
	Append(ctx context.Context, txn *models.Transaction) (string, error)
	Get(ctx context.Context, transactionID string) (*models.Transaction, error)
	ListByCampaign(ctx context.Context, campaignID uint, txType *models.TransactionType, limit, offset int) ([]*models.Transaction, int64, error)
	ListByDonor(ctx context.Context, donorID uint, limit, offset int) ([]*models.Transaction, int64, error)
}

type TransactionLedgerImpl struct {
	transactionRepo repository.TransactionRepository
}

func NewTransactionLedger(transactionRepo repository.TransactionRepository) TransactionLedger {
	return &TransactionLedgerImpl{transactionRepo: transactionRepo}
}

// Append assigns a fresh transaction id and inserts the row
func (l *TransactionLedgerImpl) Append(ctx context.Context, txn *models.Transaction) (string, error) {
	if txn == nil {
		return "", fmt.Errorf("nil transaction")
	}
	if !txn.Type.Valid() {
		return "", fmt.Errorf("invalid transaction type %q", txn.Type)
	}
	if err := validateLedgerAmount(txn.Amount); err != nil {
		return "", err
	}

	id, err := l.uniqueTransactionID(ctx)
	if err != nil {
		return "", err
	}
	txn.TransactionID = id

	if txn.Status == "" {
		txn.Status = models.TransactionStatusPending
	}
	if txn.Currency == "" {
		txn.Currency = utils.RupeeCurrency
	}
	if txn.TransactionDate.IsZero() {
		txn.TransactionDate = utils.UTCNow()
	}

	if err := l.transactionRepo.Save(ctx, txn); err != nil {
		return "", err
	}
	return txn.TransactionID, nil
}

func (l *TransactionLedgerImpl) uniqueTransactionID(ctx context.Context) (string, error) {
	for i := 0; i < maxTransactionIDAttempts; i++ {
		candidate := models.NewTransactionID()
		exists, err := l.transactionRepo.ExistsByTransactionID(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique transaction id after %d attempts", maxTransactionIDAttempts)
}

func (l *TransactionLedgerImpl) Get(ctx context.Context, transactionID string) (*models.Transaction, error) {
	if !models.IsValidTransactionID(transactionID) {
		return nil, ErrTransactionNotFound
	}
	txn, err := l.transactionRepo.ByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

func (l *TransactionLedgerImpl) ListByCampaign(ctx context.Context, campaignID uint, txType *models.TransactionType, limit, offset int) ([]*models.Transaction, int64, error) {
	filter := models.TransactionFilter{CampaignID: &campaignID, Type: txType}
	return l.list(ctx, filter, limit, offset)
}

func (l *TransactionLedgerImpl) ListByDonor(ctx context.Context, donorID uint, limit, offset int) ([]*models.Transaction, int64, error) {
	filter := models.TransactionFilter{DonorID: &donorID}
	return l.list(ctx, filter, limit, offset)
}

func (l *TransactionLedgerImpl) list(ctx context.Context, filter models.TransactionFilter, limit, offset int) ([]*models.Transaction, int64, error) {
	items, err := l.transactionRepo.ByFilter(ctx, filter, "transaction_date DESC, id DESC", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.transactionRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
