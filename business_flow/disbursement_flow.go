package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/shopspring/decimal"
)

// DisbursementFlow moves raised funds out of a campaign
type DisbursementFlow interface {
	Disburse(ctx context.Context, req *dto.DisburseRequest, metadata *ClientMetadata) (*dto.DisburseResponse, error)
	DisburseFunds(ctx context.Context, campaignID uint, amount decimal.Decimal, method, reference string, actorID uint, metadata *ClientMetadata) (*models.Transaction, error)
}

type DisbursementFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	auditRepo     repository.AuditLogRepository
	transactor    repository.Transactor
	fundLedger    FundLedger
	txnLedger     TransactionLedger
	locker        services.CampaignLocker
	notifications services.NotificationService
}

func NewDisbursementFlow(
	campaignRepo repository.CampaignRepository,
	auditRepo repository.AuditLogRepository,
	transactor repository.Transactor,
	fundLedger FundLedger,
	txnLedger TransactionLedger,
	locker services.CampaignLocker,
	notifications services.NotificationService,
) DisbursementFlow {
	if locker == nil {
		locker = services.NoopCampaignLocker{}
	}
	return &DisbursementFlowImpl{
		campaignRepo:  campaignRepo,
		auditRepo:     auditRepo,
		transactor:    transactor,
		fundLedger:    fundLedger,
		txnLedger:     txnLedger,
		locker:        locker,
		notifications: notifications,
	}
}

func (f *DisbursementFlowImpl) Disburse(ctx context.Context, req *dto.DisburseRequest, metadata *ClientMetadata) (*dto.DisburseResponse, error) {
	txn, err := f.DisburseFunds(ctx, req.CampaignID, req.Amount, req.Method, req.Reference, req.AdminID, metadata)
	if err != nil {
		return nil, NewBusinessError("DISBURSEMENT_FAILED", "Disbursement failed", err)
	}

	resp := &dto.DisburseResponse{
		TransactionID: txn.TransactionID,
		Transaction:   ToTransactionDTO(*txn),
	}
	if campaign, err := f.campaignRepo.ByID(ctx, req.CampaignID); err == nil && campaign != nil {
		resp.Funds = ToCampaignFundsDTO(*campaign)
	}
	return resp, nil
}

// DisburseFunds debits the campaign and appends the DISBURSEMENT entry in one
// transaction. InsufficientFunds leaves both untouched.
func (f *DisbursementFlowImpl) DisburseFunds(ctx context.Context, campaignID uint, amount decimal.Decimal, method, reference string, actorID uint, metadata *ClientMetadata) (*models.Transaction, error) {
	if err := validateLedgerAmount(amount); err != nil {
		disbursementsTotal.WithLabelValues(outcomeError).Inc()
		return nil, err
	}
	if method == "" {
		method = models.DisbursementMethodBankTransfer
	}
	if !isDisbursementMethod(method) {
		disbursementsTotal.WithLabelValues(outcomeError).Inc()
		return nil, ErrInvalidDisbursementMethod
	}

	campaign, err := getCampaign(ctx, f.campaignRepo, campaignID)
	if err != nil {
		disbursementsTotal.WithLabelValues(outcomeError).Inc()
		return nil, err
	}

	release, err := f.locker.Acquire(ctx, campaignID)
	if err != nil {
		disbursementsTotal.WithLabelValues(outcomeError).Inc()
		if errors.Is(err, services.ErrLockNotAcquired) {
			return nil, ErrLedgerBusy
		}
		return nil, err
	}
	defer release()

	var txn *models.Transaction
	err = f.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := f.fundLedger.ReserveAndDebit(txCtx, campaignID, amount); err != nil {
			return err
		}

		txn = &models.Transaction{
			Type:                  models.TransactionTypeDisbursement,
			Status:                models.TransactionStatusCompleted,
			Amount:                amount,
			Currency:              campaign.Currency,
			CampaignID:            campaignID,
			DisbursedBy:           &actorID,
			DisbursementMethod:    utils.ToPtr(method),
			DisbursementReference: utils.ToPtr(reference),
			Description:           fmt.Sprintf("Fund disbursement for %s", campaign.Title),
			TransactionDate:       utils.UTCNow(),
		}
		_, err := f.txnLedger.Append(txCtx, txn)
		return err
	})
	if err != nil {
		outcome := outcomeError
		if errors.Is(err, ErrInsufficientFunds) {
			outcome = outcomeInsufficient
		}
		disbursementsTotal.WithLabelValues(outcome).Inc()

		errMsg := err.Error()
		_ = createAuditLog(ctx, f.auditRepo, auditEntry{
			actorType:  models.AuditActorAdmin,
			actorID:    &actorID,
			campaignID: &campaignID,
			action:     models.AuditActionDisbursementFailed,
			desc:       fmt.Sprintf("Disbursement of %s via %s failed", amount.StringFixed(2), method),
			success:    false,
			errMsg:     &errMsg,
		}, metadata)
		return nil, err
	}

	disbursementsTotal.WithLabelValues(outcomeCompleted).Inc()
	_ = createAuditLog(ctx, f.auditRepo, auditEntry{
		actorType:  models.AuditActorAdmin,
		actorID:    &actorID,
		campaignID: &campaignID,
		action:     models.AuditActionDisbursementCompleted,
		desc:       fmt.Sprintf("Disbursed %s %s via %s", amount.StringFixed(2), campaign.Currency, method),
		success:    true,
		metadata:   map[string]any{"transaction_id": txn.TransactionID, "reference": reference},
	}, metadata)
	f.notifyBeneficiary(campaign, txn)

	return txn, nil
}

func (f *DisbursementFlowImpl) notifyBeneficiary(campaign *models.Campaign, txn *models.Transaction) {
	if f.notifications == nil || campaign.BeneficiaryEmail == nil || *campaign.BeneficiaryEmail == "" {
		return
	}
	subject := fmt.Sprintf("Funds disbursed for %s", campaign.Title)
	body := fmt.Sprintf("%s %s has been disbursed.\nTransaction: %s", txn.Amount.StringFixed(2), txn.Currency, txn.TransactionID)
	if err := f.notifications.SendEmail(*campaign.BeneficiaryEmail, subject, body); err != nil {
		log.Printf("disbursement email for campaign %d failed: %v", campaign.ID, err)
	}
}

func isDisbursementMethod(method string) bool {
	switch method {
	case models.DisbursementMethodBankTransfer, models.DisbursementMethodUPI, models.DisbursementMethodCheque:
		return true
	}
	return false
}
