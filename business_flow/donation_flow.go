package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	"github.com/amirphl/donation-ledger/config"
	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/google/uuid"
)

const EventPaymentCaptured = "payment.captured"

// DonationFlow handles the donor-facing payment lifecycle
type DonationFlow interface {
	CreateOrder(ctx context.Context, req *dto.CreateDonationOrderRequest, metadata *ClientMetadata) (*dto.CreateDonationOrderResponse, error)
	VerifyPayment(ctx context.Context, req *dto.VerifyPaymentRequest, metadata *ClientMetadata) (*dto.VerifyPaymentResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string, metadata *ClientMetadata) (*dto.WebhookResult, error)
	GetDonation(ctx context.Context, req *dto.GetDonationRequest) (*dto.DonationDTO, error)
	ListMyDonations(ctx context.Context, req *dto.ListMyDonationsRequest) (*dto.ListDonationsResponse, error)
}

type DonationFlowImpl struct {
	donationRepo    repository.DonationRepository
	campaignRepo    repository.CampaignRepository
	transactionRepo repository.TransactionRepository
	auditRepo       repository.AuditLogRepository
	gateway         services.PaymentGateway
	verifier        services.SignatureVerifier
	processor       ConfirmationProcessor

	donationCfg config.DonationConfig
	razorpayCfg config.RazorpayConfig
}

func NewDonationFlow(
	donationRepo repository.DonationRepository,
	campaignRepo repository.CampaignRepository,
	transactionRepo repository.TransactionRepository,
	auditRepo repository.AuditLogRepository,
	gateway services.PaymentGateway,
	verifier services.SignatureVerifier,
	processor ConfirmationProcessor,
	donationCfg config.DonationConfig,
	razorpayCfg config.RazorpayConfig,
) DonationFlow {
	return &DonationFlowImpl{
		donationRepo:    donationRepo,
		campaignRepo:    campaignRepo,
		transactionRepo: transactionRepo,
		auditRepo:       auditRepo,
		gateway:         gateway,
		verifier:        verifier,
		processor:       processor,
		donationCfg:     donationCfg,
		razorpayCfg:     razorpayCfg,
	}
}

// CreateOrder opens a gateway order and records an INITIATED donation. The
// gateway is called first so a failed call leaves no local state behind.
func (f *DonationFlowImpl) CreateOrder(ctx context.Context, req *dto.CreateDonationOrderRequest, metadata *ClientMetadata) (*dto.CreateDonationOrderResponse, error) {
	if err := f.validateDonationAmount(req); err != nil {
		return nil, NewBusinessError("DONATION_VALIDATION_FAILED", "Donation validation failed", err)
	}

	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if !campaign.IsAcceptingDonations() {
		return nil, NewBusinessError("CAMPAIGN_NOT_ACTIVE", "Campaign is not accepting donations", ErrCampaignNotActive)
	}

	currency := f.donationCfg.Currency
	if currency == "" {
		currency = utils.RupeeCurrency
	}

	donationUUID := uuid.New()
	notes := map[string]string{
		"campaign_id": strconv.FormatUint(uint64(campaign.ID), 10),
		"donor_id":    strconv.FormatUint(uint64(req.DonorID), 10),
	}
	if req.DonorEmail != "" {
		notes["donor_email"] = req.DonorEmail
	}

	orderCtx := ctx
	if f.donationCfg.OrderTimeout > 0 {
		var cancel context.CancelFunc
		orderCtx, cancel = context.WithTimeout(ctx, f.donationCfg.OrderTimeout)
		defer cancel()
	}

	order, err := f.gateway.CreateOrder(orderCtx, services.CreateOrderInput{
		AmountMinor: models.ToMinorUnits(req.Amount),
		Currency:    currency,
		Receipt:     donationUUID.String(),
		Notes:       notes,
	})
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, f.auditRepo, auditEntry{
			actorType:  models.AuditActorDonor,
			actorID:    &req.DonorID,
			campaignID: &campaign.ID,
			action:     models.AuditActionDonationOrderFailed,
			desc:       fmt.Sprintf("Gateway order creation failed for %s %s", req.Amount.StringFixed(2), currency),
			success:    false,
			errMsg:     &errMsg,
		}, metadata)
		return nil, NewBusinessError("GATEWAY_UNAVAILABLE", "Payment gateway is unavailable", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err))
	}

	donation := &models.Donation{
		UUID:           donationUUID,
		CampaignID:     campaign.ID,
		DonorID:        req.DonorID,
		DonorName:      req.DonorName,
		DonorEmail:     req.DonorEmail,
		DonorPhone:     req.DonorPhone,
		Amount:         req.Amount,
		Currency:       currency,
		GatewayOrderID: order.ID,
		Status:         models.DonationStatusInitiated,
		IsAnonymous:    req.IsAnonymous,
		Message:        req.Message,
	}
	if err := f.donationRepo.Save(ctx, donation); err != nil {
		return nil, NewBusinessError("DONATION_CREATE_FAILED", "Failed to record donation", err)
	}

	_ = createAuditLog(ctx, f.auditRepo, auditEntry{
		actorType:  models.AuditActorDonor,
		actorID:    &req.DonorID,
		campaignID: &campaign.ID,
		donationID: &donation.ID,
		action:     models.AuditActionDonationOrderCreated,
		desc:       fmt.Sprintf("Order %s created for %s %s", order.ID, req.Amount.StringFixed(2), currency),
		success:    true,
	}, metadata)

	return &dto.CreateDonationOrderResponse{
		OrderID:     order.ID,
		DonationID:  donation.UUID.String(),
		Amount:      donation.Amount,
		AmountMinor: donation.AmountInMinorUnits(),
		Currency:    currency,
		KeyID:       f.razorpayCfg.KeyID,
	}, nil
}

func (f *DonationFlowImpl) validateDonationAmount(req *dto.CreateDonationOrderRequest) error {
	if req == nil {
		return ErrInvalidAmount
	}
	if err := validateLedgerAmount(req.Amount); err != nil {
		return err
	}
	if f.donationCfg.MinAmount.IsPositive() && req.Amount.LessThan(f.donationCfg.MinAmount) {
		return ErrAmountTooLow
	}
	if f.donationCfg.MaxAmount.IsPositive() && req.Amount.GreaterThan(f.donationCfg.MaxAmount) {
		return ErrAmountTooHigh
	}
	return nil
}

// VerifyPayment confirms a donation from the checkout callback
func (f *DonationFlowImpl) VerifyPayment(ctx context.Context, req *dto.VerifyPaymentRequest, metadata *ClientMetadata) (*dto.VerifyPaymentResponse, error) {
	donation, err := f.donationRepo.ByUUID(ctx, req.DonationID)
	if err != nil {
		return nil, NewBusinessError("DONATION_LOOKUP_FAILED", "Failed to load donation", err)
	}
	if donation == nil || (req.DonorID != 0 && donation.DonorID != req.DonorID) {
		return nil, NewBusinessError("DONATION_NOT_FOUND", "Donation not found", ErrDonationNotFound)
	}

	outcome, err := f.processor.Confirm(ctx, ConfirmRequest{
		DonationID:       donation.ID,
		GatewayOrderID:   req.OrderID,
		GatewayPaymentID: req.PaymentID,
		Signature:        req.Signature,
		SecretKind:       SecretKindCheckout,
	}, metadata)
	if err != nil {
		return nil, NewBusinessError("PAYMENT_VERIFICATION_FAILED", "Payment verification failed", err)
	}

	resp := toVerifyPaymentResponse(outcome)
	if resp.TransactionID == "" && outcome.Donation != nil && outcome.Donation.Status == models.DonationStatusCompleted {
		resp.TransactionID = f.donationTransactionID(ctx, outcome.Donation.ID)
	}
	return resp, nil
}

// donationTransactionID finds the ledger entry written by an earlier confirm
func (f *DonationFlowImpl) donationTransactionID(ctx context.Context, donationID uint) string {
	txType := models.TransactionTypeDonation
	txns, err := f.transactionRepo.ByFilter(ctx, models.TransactionFilter{DonationID: &donationID, Type: &txType}, "", 1, 0)
	if err != nil || len(txns) == 0 {
		return ""
	}
	return txns[0].TransactionID
}

// HandleWebhook authenticates a gateway delivery, then confirms the donation
// behind a captured payment. Deliveries for other events are acknowledged.
func (f *DonationFlowImpl) HandleWebhook(ctx context.Context, body []byte, signature string, metadata *ClientMetadata) (*dto.WebhookResult, error) {
	if !f.verifier.VerifyWebhook(body, signature) {
		confirmationsTotal.WithLabelValues(string(SecretKindWebhook), outcomeSignatureInvalid).Inc()
		log.Printf("webhook rejected: signature mismatch (request %s)", requestIDOf(metadata))
		return nil, NewBusinessError("WEBHOOK_SIGNATURE_INVALID", "Webhook signature is invalid", ErrSignatureInvalid)
	}

	var event dto.RazorpayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, NewBusinessError("WEBHOOK_MALFORMED", "Webhook payload is malformed", fmt.Errorf("%w: %v", ErrMalformedWebhook, err))
	}
	if event.Event != EventPaymentCaptured {
		webhookEventsTotal.WithLabelValues(event.Event, "false").Inc()
		return &dto.WebhookResult{Event: event.Event, Handled: false}, nil
	}
	webhookEventsTotal.WithLabelValues(event.Event, "true").Inc()

	payment := event.Payload.Payment.Entity
	if payment.ID == "" || payment.OrderID == "" {
		return nil, NewBusinessError("WEBHOOK_MALFORMED", "Webhook payload is malformed", ErrMalformedWebhook)
	}

	donation, err := f.donationRepo.ByGatewayOrderID(ctx, payment.OrderID)
	if err != nil {
		return nil, NewBusinessError("DONATION_LOOKUP_FAILED", "Failed to load donation", err)
	}
	if donation == nil {
		return nil, NewBusinessError("DONATION_NOT_FOUND", "Donation not found", ErrDonationNotFound)
	}
	if payment.Amount != donation.AmountInMinorUnits() {
		return f.ackAmountMismatch(ctx, event.Event, donation, payment, metadata), nil
	}

	outcome, err := f.processor.Confirm(ctx, ConfirmRequest{
		DonationID:       donation.ID,
		GatewayOrderID:   payment.OrderID,
		GatewayPaymentID: payment.ID,
		Signature:        signature,
		SecretKind:       SecretKindWebhook,
		Payload:          body,
	}, metadata)
	if err != nil {
		return nil, NewBusinessError("PAYMENT_VERIFICATION_FAILED", "Payment verification failed", err)
	}

	return &dto.WebhookResult{Event: event.Event, Handled: true, Status: string(outcome.Kind)}, nil
}

// ackAmountMismatch records a signed capture whose amount disagrees with the
// order. The donation stays INITIATED and the delivery is acknowledged, since
// a retry of the same payload can never succeed.
func (f *DonationFlowImpl) ackAmountMismatch(ctx context.Context, eventName string, donation *models.Donation, payment dto.RazorpayPaymentEntity, metadata *ClientMetadata) *dto.WebhookResult {
	expected := donation.AmountInMinorUnits()
	log.Printf("webhook amount mismatch for order %s: captured %d, expected %d", payment.OrderID, payment.Amount, expected)
	confirmationsTotal.WithLabelValues(string(SecretKindWebhook), outcomeAmountMismatch).Inc()

	errMsg := ErrCapturedAmountMismatch.Error()
	_ = createAuditLog(ctx, f.auditRepo, auditEntry{
		actorType:  models.AuditActorGateway,
		campaignID: &donation.CampaignID,
		donationID: &donation.ID,
		action:     models.AuditActionDonationAmountMismatch,
		desc:       fmt.Sprintf("Payment %s captured %d minor units for order %s, expected %d", payment.ID, payment.Amount, payment.OrderID, expected),
		success:    false,
		errMsg:     &errMsg,
		metadata: map[string]any{
			"gateway_payment_id": payment.ID,
			"captured_minor":     payment.Amount,
			"expected_minor":     expected,
		},
	}, metadata)

	return &dto.WebhookResult{Event: eventName, Handled: false, Status: outcomeAmountMismatch}
}

func (f *DonationFlowImpl) GetDonation(ctx context.Context, req *dto.GetDonationRequest) (*dto.DonationDTO, error) {
	donation, err := f.donationRepo.ByUUID(ctx, req.DonationID)
	if err != nil {
		return nil, NewBusinessError("DONATION_LOOKUP_FAILED", "Failed to load donation", err)
	}
	if donation == nil || donation.DonorID != req.DonorID {
		return nil, NewBusinessError("DONATION_NOT_FOUND", "Donation not found", ErrDonationNotFound)
	}
	out := ToDonationDTO(*donation)
	out.DonorName = donation.DonorName
	return &out, nil
}

func (f *DonationFlowImpl) ListMyDonations(ctx context.Context, req *dto.ListMyDonationsRequest) (*dto.ListDonationsResponse, error) {
	limit, offset := utils.Paginate(req.Page, req.PageSize)
	page := req.Page
	if page < 1 {
		page = 1
	}

	filter := models.DonationFilter{DonorID: &req.DonorID}
	if req.Status != nil {
		status := models.DonationStatus(*req.Status)
		filter.Status = &status
	}

	donations, err := f.donationRepo.ByFilter(ctx, filter, "", limit, offset)
	if err != nil {
		return nil, NewBusinessError("DONATION_LIST_FAILED", "Failed to list donations", err)
	}
	total, err := f.donationRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("DONATION_LIST_FAILED", "Failed to list donations", err)
	}

	items := make([]dto.DonationDTO, 0, len(donations))
	for _, d := range donations {
		item := ToDonationDTO(*d)
		item.DonorName = d.DonorName
		items = append(items, item)
	}

	return &dto.ListDonationsResponse{
		Items:      items,
		Pagination: dto.NewPaginationInfo(page, limit, total),
	}, nil
}

func toVerifyPaymentResponse(outcome *ConfirmOutcome) *dto.VerifyPaymentResponse {
	resp := &dto.VerifyPaymentResponse{Status: dto.ConfirmStatusCompleted}
	if outcome.Kind == OutcomeAlreadyProcessed {
		resp.Status = dto.ConfirmStatusAlreadyProcessed
	}
	if outcome.Transaction != nil {
		resp.TransactionID = outcome.Transaction.TransactionID
	}
	if outcome.Donation != nil {
		resp.Donation = ToDonationDTO(*outcome.Donation)
	}
	return resp
}

func requestIDOf(metadata *ClientMetadata) string {
	if metadata == nil {
		return ""
	}
	return metadata.RequestID
}
