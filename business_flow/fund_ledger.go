package businessflow

import (
	"context"

	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/shopspring/decimal"
)

// FundLedger owns the raised and disbursed aggregates of each campaign.
// Every mutation is a single conditional UPDATE so concurrent credits and
// debits on one campaign serialize on its row.
type FundLedger interface {
	Credit(ctx context.Context, campaignID uint, amount decimal.Decimal) error
	ReserveAndDebit(ctx context.Context, campaignID uint, amount decimal.Decimal) error
	Balance(ctx context.Context, campaignID uint) (*models.Campaign, error)
}

type FundLedgerImpl struct {
	campaignRepo repository.CampaignRepository
}

func NewFundLedger(campaignRepo repository.CampaignRepository) FundLedger {
	return &FundLedgerImpl{campaignRepo: campaignRepo}
}

// Credit adds a completed donation to raised_amount
func (l *FundLedgerImpl) Credit(ctx context.Context, campaignID uint, amount decimal.Decimal) error {
	if err := validateLedgerAmount(amount); err != nil {
		return err
	}

	ok, err := l.campaignRepo.IncrementRaised(ctx, campaignID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCampaignNotFound
	}
	return nil
}

// ReserveAndDebit moves amount from available into disbursed, or fails with
// ErrInsufficientFunds leaving the campaign untouched
func (l *FundLedgerImpl) ReserveAndDebit(ctx context.Context, campaignID uint, amount decimal.Decimal) error {
	if err := validateLedgerAmount(amount); err != nil {
		return err
	}

	ok, err := l.campaignRepo.IncrementDisbursedIfAvailable(ctx, campaignID, amount)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	campaign, err := l.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}
	return ErrInsufficientFunds
}

func (l *FundLedgerImpl) Balance(ctx context.Context, campaignID uint) (*models.Campaign, error) {
	return getCampaign(ctx, l.campaignRepo, campaignID)
}
