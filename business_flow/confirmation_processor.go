package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/amirphl/donation-ledger/app/services"
	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/amirphl/donation-ledger/utils"
)

// SecretKind selects which shared secret authenticates a confirmation
type SecretKind string

const (
	SecretKindCheckout SecretKind = "checkout"
	SecretKindWebhook  SecretKind = "webhook"
)

// OutcomeKind is the non-error result of a confirmation
type OutcomeKind string

const (
	OutcomeCompleted        OutcomeKind = "completed"
	OutcomeAlreadyProcessed OutcomeKind = "already_processed"
)

const signatureFailureReason = "payment signature verification failed"

// ConfirmRequest identifies a donation and the gateway proof of payment.
// Payload is the raw webhook body and is only read for SecretKindWebhook.
type ConfirmRequest struct {
	DonationID       uint
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	SecretKind       SecretKind
	Payload          []byte
}

type ConfirmOutcome struct {
	Kind        OutcomeKind
	Donation    *models.Donation
	Transaction *models.Transaction
}

// ConfirmationProcessor turns a verified gateway payment into exactly one
// credit no matter how many times, or through how many channels, it arrives
type ConfirmationProcessor interface {
	Confirm(ctx context.Context, req ConfirmRequest, metadata *ClientMetadata) (*ConfirmOutcome, error)
}

type ConfirmationProcessorImpl struct {
	donationRepo  repository.DonationRepository
	campaignRepo  repository.CampaignRepository
	auditRepo     repository.AuditLogRepository
	transactor    repository.Transactor
	fundLedger    FundLedger
	txnLedger     TransactionLedger
	verifier      services.SignatureVerifier
	notifications services.NotificationService
}

func NewConfirmationProcessor(
	donationRepo repository.DonationRepository,
	campaignRepo repository.CampaignRepository,
	auditRepo repository.AuditLogRepository,
	transactor repository.Transactor,
	fundLedger FundLedger,
	txnLedger TransactionLedger,
	verifier services.SignatureVerifier,
	notifications services.NotificationService,
) ConfirmationProcessor {
	return &ConfirmationProcessorImpl{
		donationRepo:  donationRepo,
		campaignRepo:  campaignRepo,
		auditRepo:     auditRepo,
		transactor:    transactor,
		fundLedger:    fundLedger,
		txnLedger:     txnLedger,
		verifier:      verifier,
		notifications: notifications,
	}
}

func (p *ConfirmationProcessorImpl) Confirm(ctx context.Context, req ConfirmRequest, metadata *ClientMetadata) (*ConfirmOutcome, error) {
	channel := string(req.SecretKind)

	donation, err := p.donationRepo.ByID(ctx, req.DonationID)
	if err != nil {
		confirmationsTotal.WithLabelValues(channel, outcomeError).Inc()
		return nil, err
	}
	if donation == nil {
		confirmationsTotal.WithLabelValues(channel, outcomeNotFound).Inc()
		return nil, ErrDonationNotFound
	}
	if req.GatewayOrderID != donation.GatewayOrderID {
		confirmationsTotal.WithLabelValues(channel, outcomeOrderMismatch).Inc()
		return nil, ErrOrderMismatch
	}
	if req.GatewayPaymentID == "" {
		confirmationsTotal.WithLabelValues(channel, outcomeMissingPaymentID).Inc()
		return nil, ErrMissingPaymentID
	}

	if !p.verify(req) {
		return p.rejectSignature(ctx, donation, req, metadata)
	}

	var txn *models.Transaction
	won := false
	err = p.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		now := utils.UTCNow()

		changed, err := p.donationRepo.CompleteIfInitiated(txCtx, donation.ID, now)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		won = true

		if err := p.donationRepo.AttachGatewayPayment(txCtx, donation.ID, req.GatewayPaymentID, req.Signature); err != nil {
			if repository.IsDuplicateKey(err) {
				return ErrDuplicateGatewayPayment
			}
			return err
		}

		campaign, err := getCampaign(txCtx, p.campaignRepo, donation.CampaignID)
		if err != nil {
			return err
		}

		if err := p.fundLedger.Credit(txCtx, donation.CampaignID, donation.Amount); err != nil {
			return err
		}

		donorID := donation.DonorID
		donationID := donation.ID
		txn = &models.Transaction{
			CorrelationID:        donation.CorrelationID,
			Type:                 models.TransactionTypeDonation,
			Status:               models.TransactionStatusCompleted,
			Amount:               donation.Amount,
			Currency:             donation.Currency,
			CampaignID:           donation.CampaignID,
			DonorID:              &donorID,
			DonationID:           &donationID,
			PaymentGateway:       utils.ToPtr(models.PaymentGatewayRazorpay),
			GatewayTransactionID: utils.ToPtr(req.GatewayPaymentID),
			GatewayOrderID:       utils.ToPtr(donation.GatewayOrderID),
			Description:          fmt.Sprintf("Donation to %s", campaign.Title),
			TransactionDate:      now,
		}
		_, err = p.txnLedger.Append(txCtx, txn)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateGatewayPayment) {
			confirmationsTotal.WithLabelValues(channel, outcomeDuplicatePayment).Inc()
			log.Printf("integrity: gateway payment %s for donation %d is already attached to another donation", req.GatewayPaymentID, donation.ID)
			errMsg := err.Error()
			_ = createAuditLog(ctx, p.auditRepo, auditEntry{
				actorType:  actorForChannel(req.SecretKind),
				campaignID: &donation.CampaignID,
				donationID: &donation.ID,
				action:     models.AuditActionDonationDuplicatePayment,
				desc:       fmt.Sprintf("Payment %s already claimed by another donation", req.GatewayPaymentID),
				success:    false,
				errMsg:     &errMsg,
				metadata:   map[string]any{"gateway_payment_id": req.GatewayPaymentID, "channel": channel},
			}, metadata)
			return nil, err
		}
		confirmationsTotal.WithLabelValues(channel, outcomeError).Inc()
		return nil, err
	}

	current, err := p.donationRepo.ByID(ctx, donation.ID)
	if err != nil || current == nil {
		current = donation
	}

	if !won {
		confirmationsTotal.WithLabelValues(channel, outcomeAlreadyProcessed).Inc()
		return &ConfirmOutcome{Kind: OutcomeAlreadyProcessed, Donation: current}, nil
	}

	confirmationsTotal.WithLabelValues(channel, outcomeCompleted).Inc()
	_ = createAuditLog(ctx, p.auditRepo, auditEntry{
		actorType:  actorForChannel(req.SecretKind),
		actorID:    actorIDForChannel(req.SecretKind, current.DonorID),
		campaignID: &current.CampaignID,
		donationID: &current.ID,
		action:     models.AuditActionDonationCompleted,
		desc:       fmt.Sprintf("Donation of %s %s completed", current.Amount.StringFixed(2), current.Currency),
		success:    true,
		metadata: map[string]any{
			"transaction_id":     txn.TransactionID,
			"gateway_payment_id": req.GatewayPaymentID,
			"channel":            channel,
		},
	}, metadata)
	p.sendReceipt(current, txn)

	return &ConfirmOutcome{Kind: OutcomeCompleted, Donation: current, Transaction: txn}, nil
}

func (p *ConfirmationProcessorImpl) verify(req ConfirmRequest) bool {
	switch req.SecretKind {
	case SecretKindCheckout:
		return p.verifier.VerifyCheckout(req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	case SecretKindWebhook:
		return p.verifier.VerifyWebhook(req.Payload, req.Signature)
	default:
		return false
	}
}

// rejectSignature fails a still-pending donation. A donation that already
// reached a terminal state is left alone and reported as already processed.
func (p *ConfirmationProcessorImpl) rejectSignature(ctx context.Context, donation *models.Donation, req ConfirmRequest, metadata *ClientMetadata) (*ConfirmOutcome, error) {
	channel := string(req.SecretKind)

	changed, err := p.donationRepo.FailIfInitiated(ctx, donation.ID, signatureFailureReason, utils.UTCNow())
	if err != nil {
		confirmationsTotal.WithLabelValues(channel, outcomeError).Inc()
		return nil, err
	}

	if !changed {
		confirmationsTotal.WithLabelValues(channel, outcomeAlreadyProcessed).Inc()
		current, err := p.donationRepo.ByID(ctx, donation.ID)
		if err != nil || current == nil {
			current = donation
		}
		return &ConfirmOutcome{Kind: OutcomeAlreadyProcessed, Donation: current}, nil
	}

	confirmationsTotal.WithLabelValues(channel, outcomeSignatureInvalid).Inc()
	log.Printf("donation %d failed signature verification via %s", donation.ID, channel)
	errMsg := ErrSignatureInvalid.Error()
	_ = createAuditLog(ctx, p.auditRepo, auditEntry{
		actorType:  actorForChannel(req.SecretKind),
		actorID:    actorIDForChannel(req.SecretKind, donation.DonorID),
		campaignID: &donation.CampaignID,
		donationID: &donation.ID,
		action:     models.AuditActionDonationSignatureInvalid,
		desc:       "Payment signature did not match",
		success:    false,
		errMsg:     &errMsg,
		metadata:   map[string]any{"gateway_payment_id": req.GatewayPaymentID, "channel": channel},
	}, metadata)

	return nil, ErrSignatureInvalid
}

func (p *ConfirmationProcessorImpl) sendReceipt(donation *models.Donation, txn *models.Transaction) {
	if p.notifications == nil || donation.DonorEmail == "" || txn == nil {
		return
	}
	subject := "Thank you for your donation"
	body := fmt.Sprintf("We received your donation of %s %s.\nTransaction: %s", donation.Amount.StringFixed(2), donation.Currency, txn.TransactionID)
	if err := p.notifications.SendEmail(donation.DonorEmail, subject, body); err != nil {
		log.Printf("donation receipt email for donation %d failed: %v", donation.ID, err)
	}
}

func actorForChannel(kind SecretKind) string {
	if kind == SecretKindWebhook {
		return models.AuditActorGateway
	}
	return models.AuditActorDonor
}

func actorIDForChannel(kind SecretKind, donorID uint) *uint {
	if kind == SecretKindWebhook {
		return nil
	}
	return &donorID
}
